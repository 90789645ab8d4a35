package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
)

// openStatuses are the non-terminal statuses a household still waits on.
var openStatuses = []data.Status{data.StatusPending, data.StatusAssigned, data.StatusOnTheWay}

// HouseholdStats summarizes a household's own pickups.
type HouseholdStats struct {
	TotalPickups     int64 `json:"total_pickups"`
	CompletedPickups int64 `json:"completed_pickups"`
	PendingPickups   int64 `json:"pending_pickups"`
	EcoPoints        int   `json:"eco_points"`
}

// CollectorStats summarizes a collector's bound work and ratings.
type CollectorStats struct {
	TotalPickups       int64   `json:"total_pickups"`
	CompletedPickups   int64   `json:"completed_pickups"`
	AverageRating      float64 `json:"average_rating"`
	PendingAssignments int64   `json:"pending_assignments"`
}

// AdminStats summarizes the whole platform.
type AdminStats struct {
	TotalUsers       int64   `json:"total_users"`
	TotalCollectors  int64   `json:"total_collectors"`
	TotalPickups     int64   `json:"total_pickups"`
	CompletedPickups int64   `json:"completed_pickups"`
	CompletionRate   float64 `json:"completion_rate"`
}

// Stats holds the aggregate for the caller's role; exactly one field is set.
type Stats struct {
	Household *HouseholdStats
	Collector *CollectorStats
	Admin     *AdminStats
}

// Value returns whichever aggregate is set, for serialization.
func (s *Stats) Value() any {
	switch {
	case s.Household != nil:
		return s.Household
	case s.Collector != nil:
		return s.Collector
	default:
		return s.Admin
	}
}

// Stats returns the role-dependent dashboard aggregate for caller.
func (c *Controller) Stats(ctx context.Context, caller Caller) (*Stats, error) {
	if err := authorize(OpStats, caller); err != nil {
		return nil, err
	}

	var (
		out Stats
		err error
	)
	switch caller.Role {
	case data.RoleHousehold:
		out.Household, err = c.householdStats(ctx, caller.ID)
	case data.RoleCollector:
		out.Collector, err = c.collectorStats(ctx, caller.ID)
	default:
		out.Admin, err = c.adminStats(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Controller) householdStats(ctx context.Context, userID string) (*HouseholdStats, error) {
	var s HouseholdStats
	var err error

	if s.TotalPickups, err = c.count(ctx, data.PickupFilter{UserID: userID}); err != nil {
		return nil, err
	}
	if s.CompletedPickups, err = c.count(ctx, data.PickupFilter{UserID: userID, Statuses: []data.Status{data.StatusCollected}}); err != nil {
		return nil, err
	}
	if s.PendingPickups, err = c.count(ctx, data.PickupFilter{UserID: userID, Statuses: openStatuses}); err != nil {
		return nil, err
	}

	// read points from the store; the token may predate the last award
	u, err := c.users.GetUserByID(ctx, userID)
	if errors.Is(err, data.ErrUserNotFound) {
		return nil, fail(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	s.EcoPoints = u.EcoPoints
	return &s, nil
}

func (c *Controller) collectorStats(ctx context.Context, collectorID string) (*CollectorStats, error) {
	var s CollectorStats
	var err error

	if s.TotalPickups, err = c.count(ctx, data.PickupFilter{CollectorID: collectorID}); err != nil {
		return nil, err
	}
	if s.CompletedPickups, err = c.count(ctx, data.PickupFilter{CollectorID: collectorID, Statuses: []data.Status{data.StatusCollected}}); err != nil {
		return nil, err
	}
	if s.PendingAssignments, err = c.count(ctx, data.PickupFilter{Statuses: []data.Status{data.StatusPending}}); err != nil {
		return nil, err
	}

	ratings, err := c.pickups.CollectorRatings(ctx, collectorID)
	if err != nil {
		return nil, fmt.Errorf("collector ratings: %w", err)
	}
	s.AverageRating = AverageRating(ratings)
	return &s, nil
}

func (c *Controller) adminStats(ctx context.Context) (*AdminStats, error) {
	var s AdminStats
	var err error

	if s.TotalUsers, err = c.users.CountByRole(ctx, data.RoleHousehold); err != nil {
		return nil, fmt.Errorf("count households: %w", err)
	}
	if s.TotalCollectors, err = c.users.CountByRole(ctx, data.RoleCollector); err != nil {
		return nil, fmt.Errorf("count collectors: %w", err)
	}
	if s.TotalPickups, err = c.count(ctx, data.PickupFilter{}); err != nil {
		return nil, err
	}
	if s.CompletedPickups, err = c.count(ctx, data.PickupFilter{Statuses: []data.Status{data.StatusCollected}}); err != nil {
		return nil, err
	}
	s.CompletionRate = CompletionRate(s.CompletedPickups, s.TotalPickups)
	return &s, nil
}

func (c *Controller) count(ctx context.Context, f data.PickupFilter) (int64, error) {
	n, err := c.pickups.CountPickups(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count pickups: %w", err)
	}
	return n, nil
}

// AverageRating is the mean rounded to two decimals, 0 for no ratings.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return round2(float64(sum) / float64(len(ratings)))
}

// CompletionRate is completed/total as a percentage rounded to two
// decimals, 0 when there are no pickups.
func CompletionRate(completed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(completed) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
