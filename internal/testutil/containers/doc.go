// Package containers starts the backing services of the alert pipeline in
// Docker for integration tests:
//
//   - MySQL 8.0 holding the fleet schema
//   - Redis 7 for the shared cooldown gate
//   - Eclipse Mosquitto as telemetry source and alert sink
//
// Tests that use this package carry the "integration" build tag and usually
// start one container per package from TestMain:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    broker, err := containers.NewMosquittoContainer(ctx, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(ctx)
//	    os.Exit(code)
//	}
//
// Run them with:
//
//	go test -tags=integration ./...
package containers
