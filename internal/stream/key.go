package stream

import "encoding/json"

// truckKey returns the shard key for a message: the transport key when the
// producer set one, otherwise the truck_id field of the JSON payload.
// Undecodable payloads share the empty key; the handler rejects them anyway.
func truckKey(key []byte, payload []byte) string {
	if len(key) > 0 {
		return string(key)
	}
	var probe struct {
		TruckID string `json:"truck_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.TruckID
}
