package alerting

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/datastore/repository"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// Directory resolves truck-group membership and rule recipients through the
// fleet repository, caching answers for ttl. A nil repository answers "no
// groups" and "owner only".
type Directory struct {
	repo       repository.Directory
	groups     *cache.Cache
	recipients *cache.Cache
	log        logger.Logger
}

// NewDirectory creates a Directory.
func NewDirectory(repo repository.Directory, ttl time.Duration, log logger.Logger) *Directory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{
		repo:       repo,
		groups:     cache.New(ttl, 2*ttl),
		recipients: cache.New(ttl, 2*ttl),
		log:        log,
	}
}

// TruckGroups returns the groups truckID belongs to.
func (d *Directory) TruckGroups(ctx context.Context, truckID string) ([]string, error) {
	if d.repo == nil {
		return nil, nil
	}
	if v, ok := d.groups.Get(truckID); ok {
		return v.([]string), nil
	}
	groups, err := d.repo.TruckGroups(ctx, truckID)
	if err != nil {
		return nil, err
	}
	d.groups.SetDefault(truckID, groups)
	return groups, nil
}

// Recipients returns the rule owner followed by the subscribed users, without
// duplicates. Lookup failures degrade to the owner alone.
func (d *Directory) Recipients(ctx context.Context, rule *entities.AlertRule) []string {
	var out []string
	if rule.OwnerID != "" {
		out = append(out, rule.OwnerID)
	}
	if d.repo == nil {
		return out
	}

	var subscribers []string
	if v, ok := d.recipients.Get(rule.ID); ok {
		subscribers = v.([]string)
	} else {
		users, err := d.repo.RuleRecipients(ctx, rule.ID)
		if err != nil {
			d.log.Warn("failed to resolve rule recipients",
				logger.String("rule_id", rule.ID),
				logger.Error(err))
			return out
		}
		d.recipients.SetDefault(rule.ID, users)
		subscribers = users
	}

	for _, u := range subscribers {
		if u != "" && !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// Flush drops all cached answers.
func (d *Directory) Flush() {
	d.groups.Flush()
	d.recipients.Flush()
}

// Len returns the number of cached trucks and rules.
func (d *Directory) Len() int {
	return d.groups.ItemCount() + d.recipients.ItemCount()
}
