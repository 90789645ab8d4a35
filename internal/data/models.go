package data

import (
	"time"
)

// Role identifies what a user is allowed to do on the platform.
type Role string

const (
	RoleHousehold Role = "household"
	RoleCollector Role = "collector"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHousehold, RoleCollector, RoleAdmin:
		return true
	}
	return false
}

// Status is the lifecycle state of a pickup.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusOnTheWay  Status = "on_the_way"
	StatusCollected Status = "collected"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusOnTheWay, StatusCollected, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCollected || s == StatusFailed
}

// WasteType is the category of waste a household wants collected.
type WasteType string

const (
	WasteDry        WasteType = "dry"
	WasteWet        WasteType = "wet"
	WasteElectronic WasteType = "electronic"
	WasteMedical    WasteType = "medical"
	WasteRecyclable WasteType = "recyclable"
)

// Valid reports whether w is one of the known waste types.
func (w WasteType) Valid() bool {
	switch w {
	case WasteDry, WasteWet, WasteElectronic, WasteMedical, WasteRecyclable:
		return true
	}
	return false
}

// User maps to the users collection. Password holds the bcrypt hash and is
// never serialized to JSON.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Phone     string    `bson:"phone" json:"phone"`
	Role      Role      `bson:"role" json:"role"`
	Address   string    `bson:"address,omitempty" json:"address,omitempty"`
	Password  string    `bson:"password" json:"-"`
	EcoPoints int       `bson:"eco_points" json:"eco_points"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	// AwardedPickups lists the pickups already credited to EcoPoints.
	AwardedPickups []string `bson:"awarded_pickups,omitempty" json:"-"`
}

// Pickup maps to the pickups collection.
type Pickup struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	CollectorID string    `bson:"collector_id,omitempty" json:"collector_id,omitempty"`
	WasteType   WasteType `bson:"waste_type" json:"waste_type"`
	PickupDate  time.Time `bson:"pickup_date" json:"pickup_date"`
	PickupTime  string    `bson:"pickup_time" json:"pickup_time"`
	Location    string    `bson:"location" json:"location"`
	Address     string    `bson:"address" json:"address"`
	PhotoURL    string    `bson:"photo_url,omitempty" json:"photo_url,omitempty"`
	Notes       string    `bson:"notes,omitempty" json:"notes,omitempty"`
	Status      Status    `bson:"status" json:"status"`
	Rating      *int      `bson:"rating,omitempty" json:"rating,omitempty"`
	Feedback    string    `bson:"feedback,omitempty" json:"feedback,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// ChatMessage maps to the chat_messages collection. Messages are never
// updated once inserted.
type ChatMessage struct {
	ID         string    `bson:"_id" json:"id"`
	PickupID   string    `bson:"pickup_id" json:"pickup_id"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	SenderRole Role      `bson:"sender_role" json:"sender_role"`
	Message    string    `bson:"message" json:"message"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}
