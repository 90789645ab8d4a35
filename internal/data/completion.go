package data

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/metrics"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// statusWriter is the conditional status write CompletionStore relies on.
type statusWriter interface {
	TransitionStatus(ctx context.Context, id string, from, to Status, collectorID string) error
}

// pointsAwarder credits and revokes eco points keyed by pickup.
type pointsAwarder interface {
	AwardEcoPoints(ctx context.Context, userID, pickupID string, points int) error
	RevokeEcoPoints(ctx context.Context, userID, pickupID string, points int) error
}

// CompletionStore applies the transition into collected together with the
// eco point award for the owning household.
//
// With transactions enabled both writes run inside one MongoDB transaction
// (requires a replica set). Otherwise the status write goes first, the award
// is retried a bounded number of times, and if it still fails the status
// write is reverted before the error is returned. Awards are keyed by pickup,
// so a retry after an ambiguous failure never credits twice.
type CompletionStore struct {
	client        *mongo.Client
	pickups       statusWriter
	users         pointsAwarder
	transactional bool
	attempts      int
	backoff       time.Duration
}

// NewCompletionStore wires the pickups and users stores for completion.
// client may be nil when transactional is false.
func NewCompletionStore(client *mongo.Client, pickups statusWriter, users pointsAwarder, transactional bool) *CompletionStore {
	return &CompletionStore{
		client:        client,
		pickups:       pickups,
		users:         users,
		transactional: transactional,
		attempts:      3,
		backoff:       100 * time.Millisecond,
	}
}

// CompletePickup moves p from the given status to collected and credits
// points to p.UserID. It returns nil only when both writes were applied.
func (c *CompletionStore) CompletePickup(ctx context.Context, p *Pickup, from Status, points int) error {
	if c.transactional {
		return c.completeInTransaction(ctx, p, from, points)
	}
	return c.completeWithCompensation(ctx, p, from, points)
}

func (c *CompletionStore) completeInTransaction(ctx context.Context, p *Pickup, from Status, points int) error {
	sess, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if err := c.pickups.TransitionStatus(ctx, p.ID, from, StatusCollected, ""); err != nil {
			return nil, err
		}
		if err := c.users.AwardEcoPoints(ctx, p.UserID, p.ID, points); err != nil {
			return nil, fmt.Errorf("award eco points: %w", err)
		}
		return nil, nil
	})
	return err
}

func (c *CompletionStore) completeWithCompensation(ctx context.Context, p *Pickup, from Status, points int) error {
	if err := c.pickups.TransitionStatus(ctx, p.ID, from, StatusCollected, ""); err != nil {
		return err
	}

	var awardErr error
retry:
	for attempt := 1; ; attempt++ {
		awardErr = c.users.AwardEcoPoints(ctx, p.UserID, p.ID, points)
		if awardErr == nil {
			return nil
		}
		if errors.Is(awardErr, ErrUserNotFound) || attempt >= c.attempts {
			break
		}
		log.Printf("award eco points for pickup %s failed (attempt %d/%d): %v", p.ID, attempt, c.attempts, awardErr)

		select {
		case <-ctx.Done():
			awardErr = ctx.Err()
			break retry
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}

	// the request context may already be gone; the revert must still run
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.pickups.TransitionStatus(revertCtx, p.ID, StatusCollected, from, ""); err != nil {
		log.Printf("revert of pickup %s to %s failed: %v", p.ID, from, err)
		return fmt.Errorf("award eco points: %w (status revert failed: %v)", awardErr, err)
	}
	// a failed attempt may still have landed on the server
	if err := c.users.RevokeEcoPoints(revertCtx, p.UserID, p.ID, points); err != nil {
		log.Printf("revoke of eco points for pickup %s failed: %v", p.ID, err)
	}
	metrics.CompletionCompensations.Inc()
	return fmt.Errorf("award eco points: %w", awardErr)
}
