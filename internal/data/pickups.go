package data

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PickupFilter selects pickups. Zero fields do not constrain the result.
type PickupFilter struct {
	UserID      string
	CollectorID string
	// IncludePending widens a CollectorID filter so that every pending
	// pickup also matches (unclaimed work is visible to all collectors).
	IncludePending bool
	Statuses       []Status
}

// BSON renders the filter as a MongoDB query document.
func (f PickupFilter) BSON() bson.M {
	q := bson.M{}
	if f.UserID != "" {
		q["user_id"] = f.UserID
	}
	if f.CollectorID != "" {
		if f.IncludePending {
			q["$or"] = bson.A{
				bson.M{"collector_id": f.CollectorID},
				bson.M{"status": StatusPending},
			}
		} else {
			q["collector_id"] = f.CollectorID
		}
	}
	if len(f.Statuses) == 1 {
		q["status"] = f.Statuses[0]
	} else if len(f.Statuses) > 1 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	return q
}

// Matches evaluates the filter against a single pickup in memory, with the
// same semantics as the query produced by BSON.
func (f PickupFilter) Matches(p *Pickup) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.CollectorID != "" {
		if p.CollectorID != f.CollectorID && !(f.IncludePending && p.Status == StatusPending) {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if p.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// PickupsStore performs pickup DB operations.
type PickupsStore struct {
	coll *mongo.Collection
}

// NewPickupsStore returns a PickupsStore using the provided collection.
func NewPickupsStore(coll *mongo.Collection) *PickupsStore {
	return &PickupsStore{coll: coll}
}

// InsertPickup stores a new pickup. ID and timestamps are assigned here and
// an empty status defaults to pending.
func (s *PickupsStore) InsertPickup(ctx context.Context, p *Pickup) error {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = StatusPending
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.coll.InsertOne(ctx, p)
	return err
}

// GetPickup finds a pickup by id.
func (s *PickupsStore) GetPickup(ctx context.Context, id string) (*Pickup, error) {
	var p Pickup
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPickupNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindPickups returns pickups matching f, newest first.
func (s *PickupsStore) FindPickups(ctx context.Context, f PickupFilter) ([]*Pickup, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := s.coll.Find(ctx, f.BSON(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pickups []*Pickup
	if err := cursor.All(ctx, &pickups); err != nil {
		return nil, err
	}
	return pickups, nil
}

// CountPickups counts pickups matching f.
func (s *PickupsStore) CountPickups(ctx context.Context, f PickupFilter) (int64, error) {
	return s.coll.CountDocuments(ctx, f.BSON())
}

// TransitionStatus moves a pickup from one status to another as a single
// conditional write. A non-empty collectorID is bound in the same write.
// ErrStatusConflict means the pickup is missing or no longer in from.
func (s *PickupsStore) TransitionStatus(ctx context.Context, id string, from, to Status, collectorID string) error {
	set := bson.M{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if collectorID != "" {
		set["collector_id"] = collectorID
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetRating records the owner's rating on a collected, not yet rated pickup.
// ErrStatusConflict means one of those preconditions no longer holds.
func (s *PickupsStore) SetRating(ctx context.Context, id, userID string, rating int, feedback string) error {
	set := bson.M{
		"rating":     rating,
		"updated_at": time.Now().UTC(),
	}
	if feedback != "" {
		set["feedback"] = feedback
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			"_id":     id,
			"user_id": userID,
			"status":  StatusCollected,
			"rating":  bson.M{"$exists": false},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrStatusConflict
	}
	return nil
}

// CollectorRatings returns every rating given to pickups handled by the collector.
func (s *PickupsStore) CollectorRatings(ctx context.Context, collectorID string) ([]int, error) {
	opts := options.Find().SetProjection(bson.M{"rating": 1})

	cursor, err := s.coll.Find(ctx,
		bson.M{"collector_id": collectorID, "rating": bson.M{"$exists": true}},
		opts,
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Rating *int `bson:"rating"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ratings := make([]int, 0, len(rows))
	for _, r := range rows {
		if r.Rating != nil {
			ratings = append(ratings, *r.Rating)
		}
	}
	return ratings, nil
}
