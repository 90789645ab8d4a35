// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/normalize"
	"github.com/google/uuid"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is the "users" collection; documents are keyed by a uuid string _id
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user document. The password must already be hashed.
// ID, CreatedAt and IsActive are assigned here; the email is normalized.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	user.ID = uuid.NewString()
	user.Email = normalize.Email(user.Email)
	user.IsActive = true
	user.CreatedAt = time.Now().UTC()

	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		// unique index on email turns a duplicate registration into a write error
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// GetUserByEmail finds a user by (normalized) email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by id.
func (u *UsersStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns every user ordered by creation time. Password hashes are
// projected out so they never leave the store.
func (u *UsersStore) ListUsers(ctx context.Context) ([]*User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetProjection(bson.M{"password": 0, "awarded_pickups": 0})

	cursor, err := u.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AwardEcoPoints credits points to the user for pickupID. The award is keyed
// by pickup, so repeating it for the same pickup is a no-op.
func (u *UsersStore) AwardEcoPoints(ctx context.Context, id, pickupID string, points int) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": id, "awarded_pickups": bson.M{"$ne": pickupID}},
		bson.M{
			"$inc":      bson.M{"eco_points": points},
			"$addToSet": bson.M{"awarded_pickups": pickupID},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// either already awarded or no such user
	n, err := u.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RevokeEcoPoints undoes an award made for pickupID. It is a no-op when no
// such award exists.
func (u *UsersStore) RevokeEcoPoints(ctx context.Context, id, pickupID string, points int) error {
	_, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": id, "awarded_pickups": pickupID},
		bson.M{
			"$inc":  bson.M{"eco_points": -points},
			"$pull": bson.M{"awarded_pickups": pickupID},
		},
	)
	return err
}

// SetActive sets the user's active flag.
func (u *UsersStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_active": active}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountByRole counts users holding the given role.
func (u *UsersStore) CountByRole(ctx context.Context, role Role) (int64, error) {
	return u.coll.CountDocuments(ctx, bson.M{"role": role})
}
