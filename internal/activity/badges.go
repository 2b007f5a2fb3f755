/**
 * @description
 * Badge ledger: makes badge earned status monotonic across evaluation runs.
 *
 * Task evaluation is a pure recomputation from the latest data pull, so an
 * incomplete pull could briefly show a completed task as incomplete. Earned
 * badges are therefore carried forward explicitly: once a badge is recorded
 * here it stays earned, whatever later evaluations say.
 *
 * @dependencies
 * - backend/internal/cache (in-memory for tests, Redis in production)
 */

package activity

import (
	"context"
	"strings"
	"time"

	"github.com/veristat-project/backend/internal/cache"
	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/models"
)

// BadgeLedger persists the per-user earned-badge set through the cache component.
type BadgeLedger struct {
	store *cache.Cache
	now   func() time.Time
}

// NewBadgeLedger creates a ledger over the given cache.
func NewBadgeLedger(store *cache.Cache) *BadgeLedger {
	return &BadgeLedger{store: store, now: time.Now}
}

func ledgerKey(user string) string {
	return "badges:" + strings.ToLower(user)
}

// Merge folds a fresh evaluation into the persisted set: newly earned badges
// are recorded with a timestamp, previously earned ones are re-applied even if
// the fresh evaluation no longer shows them earned.
func (l *BadgeLedger) Merge(ctx context.Context, user string, badges []models.Badge) []models.Badge {
	earned := make(map[string]time.Time)
	if _, ok, err := l.store.Get(ctx, ledgerKey(user), &earned); err != nil {
		logger.Error("badges: ledger read for %s failed: %v", user, err)
	} else if !ok {
		earned = make(map[string]time.Time)
	}

	changed := false
	out := make([]models.Badge, len(badges))
	for i, badge := range badges {
		if badge.Earned {
			if _, ok := earned[badge.ID]; !ok {
				earned[badge.ID] = l.now().UTC()
				changed = true
			}
		}
		if at, ok := earned[badge.ID]; ok {
			badge.Earned = true
			earnedAt := at
			badge.EarnedAt = &earnedAt
		}
		out[i] = badge
	}

	if changed {
		// Earned badges never expire.
		if err := l.store.Put(ctx, ledgerKey(user), earned, 0); err != nil {
			logger.Error("badges: ledger write for %s failed: %v", user, err)
		}
	}

	return out
}
