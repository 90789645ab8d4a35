// Package lifecycle implements pickup request authorization and the pickup
// status state machine, including the eco point award on completion.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/metrics"
)

// UserStore is the subset of data.UsersStore the controller uses.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*data.User, error)
	ListUsers(ctx context.Context) ([]*data.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	CountByRole(ctx context.Context, role data.Role) (int64, error)
}

// PickupStore is the subset of data.PickupsStore the controller uses.
type PickupStore interface {
	InsertPickup(ctx context.Context, p *data.Pickup) error
	GetPickup(ctx context.Context, id string) (*data.Pickup, error)
	FindPickups(ctx context.Context, f data.PickupFilter) ([]*data.Pickup, error)
	CountPickups(ctx context.Context, f data.PickupFilter) (int64, error)
	TransitionStatus(ctx context.Context, id string, from, to data.Status, collectorID string) error
	SetRating(ctx context.Context, id, userID string, rating int, feedback string) error
	CollectorRatings(ctx context.Context, collectorID string) ([]int, error)
}

// MessageStore is the subset of data.MessagesStore the controller uses.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *data.ChatMessage) (*data.ChatMessage, error)
	ListMessages(ctx context.Context, pickupID string) ([]*data.ChatMessage, error)
}

// Completer applies the transition into collected together with the point
// award; it returns nil only if both were applied.
type Completer interface {
	CompletePickup(ctx context.Context, p *data.Pickup, from data.Status, points int) error
}

const maxMessageLength = 2000

// Controller validates permissions, enforces the status state machine and
// applies side effects through the injected stores.
type Controller struct {
	users     UserStore
	pickups   PickupStore
	messages  MessageStore
	completer Completer
}

// New returns a Controller over the given stores. Their lifecycle is owned
// by the caller.
func New(users UserStore, pickups PickupStore, messages MessageStore, completer Completer) *Controller {
	return &Controller{
		users:     users,
		pickups:   pickups,
		messages:  messages,
		completer: completer,
	}
}

// CreateRequest is a household's pickup request.
type CreateRequest struct {
	WasteType  data.WasteType
	PickupDate time.Time
	PickupTime string
	Location   string
	Address    string
	PhotoURL   string
	Notes      string
}

func (r *CreateRequest) validate() error {
	r.Location = strings.TrimSpace(r.Location)
	r.Address = strings.TrimSpace(r.Address)
	r.PickupTime = strings.TrimSpace(r.PickupTime)

	switch {
	case !r.WasteType.Valid():
		return fail(ErrInvalidInput, "unknown waste type %q", r.WasteType)
	case r.PickupDate.IsZero():
		return fail(ErrInvalidInput, "pickup_date is required")
	case r.PickupTime == "":
		return fail(ErrInvalidInput, "pickup_time is required")
	case r.Location == "":
		return fail(ErrInvalidInput, "location is required")
	case r.Address == "":
		return fail(ErrInvalidInput, "address is required")
	}
	return nil
}

// PickupView is a pickup enriched with the public profiles of the household
// and the bound collector.
type PickupView struct {
	*data.Pickup
	User      *data.User `json:"user,omitempty"`
	Collector *data.User `json:"collector,omitempty"`
}

// StatusChange describes a successful UpdateStatus.
type StatusChange struct {
	Pickup        *data.Pickup
	Previous      data.Status
	PointsAwarded int
}

// Create stores a new pending pickup owned by the calling household.
func (c *Controller) Create(ctx context.Context, caller Caller, req CreateRequest) (*data.Pickup, error) {
	if err := authorize(OpCreate, caller); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &data.Pickup{
		UserID:     caller.ID,
		WasteType:  req.WasteType,
		PickupDate: req.PickupDate,
		PickupTime: req.PickupTime,
		Location:   req.Location,
		Address:    req.Address,
		PhotoURL:   req.PhotoURL,
		Notes:      req.Notes,
		Status:     data.StatusPending,
	}
	if err := c.pickups.InsertPickup(ctx, p); err != nil {
		return nil, fmt.Errorf("insert pickup: %w", err)
	}

	metrics.PickupsCreated.Inc()
	return p, nil
}

// visibility returns the filter selecting the pickups caller may see:
// households their own, collectors their assigned ones plus unclaimed work,
// admins everything.
func visibility(caller Caller) data.PickupFilter {
	switch caller.Role {
	case data.RoleHousehold:
		return data.PickupFilter{UserID: caller.ID}
	case data.RoleCollector:
		return data.PickupFilter{CollectorID: caller.ID, IncludePending: true}
	default:
		return data.PickupFilter{}
	}
}

// List returns the pickups visible to caller, newest first.
func (c *Controller) List(ctx context.Context, caller Caller) ([]*PickupView, error) {
	if err := authorize(OpList, caller); err != nil {
		return nil, err
	}

	pickups, err := c.pickups.FindPickups(ctx, visibility(caller))
	if err != nil {
		return nil, fmt.Errorf("find pickups: %w", err)
	}
	return c.enrich(ctx, pickups)
}

// Get returns one pickup if caller may see it. Invisible pickups are
// reported as not found.
func (c *Controller) Get(ctx context.Context, caller Caller, id string) (*PickupView, error) {
	if err := authorize(OpList, caller); err != nil {
		return nil, err
	}

	p, err := c.loadPickup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility(caller).Matches(p) {
		return nil, fail(ErrNotFound, "pickup not found")
	}

	views, err := c.enrich(ctx, []*data.Pickup{p})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// Assign moves a pending pickup to assigned. A collector binds itself; an
// admin dispatches without binding a collector.
func (c *Controller) Assign(ctx context.Context, caller Caller, id string) (*data.Pickup, error) {
	if err := authorize(OpAssign, caller); err != nil {
		return nil, err
	}

	p, err := c.loadPickup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != data.StatusPending {
		return nil, fail(ErrInvalidTransition, "pickup already assigned or completed")
	}

	var collectorID string
	if caller.Role == data.RoleCollector {
		collectorID = caller.ID
	}

	err = c.pickups.TransitionStatus(ctx, p.ID, data.StatusPending, data.StatusAssigned, collectorID)
	if errors.Is(err, data.ErrStatusConflict) {
		// another request moved the pickup between our read and write
		return nil, c.lostRace(ctx, p.ID, "pickup already assigned or completed")
	}
	if err != nil {
		return nil, fmt.Errorf("assign pickup %s: %w", p.ID, err)
	}

	p.Status = data.StatusAssigned
	p.CollectorID = collectorID
	p.UpdatedAt = time.Now().UTC()
	metrics.StatusTransitions.WithLabelValues(string(data.StatusAssigned)).Inc()
	return p, nil
}

// UpdateStatus moves a pickup to target. A collector may only move pickups
// bound to it; households and admins are not restricted by binding. Moving
// into collected credits the owning household's eco points in the same unit.
func (c *Controller) UpdateStatus(ctx context.Context, caller Caller, id string, target data.Status) (*StatusChange, error) {
	if err := authorize(OpUpdateStatus, caller); err != nil {
		return nil, err
	}

	p, err := c.loadPickup(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role == data.RoleCollector && p.CollectorID != caller.ID {
		return nil, fail(ErrForbidden, "you can only update your assigned pickups")
	}
	if err := checkTransition(p.Status, target); err != nil {
		return nil, err
	}

	change := &StatusChange{Pickup: p, Previous: p.Status}

	if target == data.StatusCollected {
		change.PointsAwarded = PointsFor(p.WasteType)
		err = c.completer.CompletePickup(ctx, p, p.Status, change.PointsAwarded)
	} else {
		err = c.pickups.TransitionStatus(ctx, p.ID, p.Status, target, "")
	}
	if errors.Is(err, data.ErrStatusConflict) {
		return nil, c.lostRace(ctx, p.ID, "pickup status changed; reload and retry")
	}
	if err != nil {
		return nil, fmt.Errorf("update pickup %s to %s: %w", p.ID, target, err)
	}

	p.Status = target
	p.UpdatedAt = time.Now().UTC()
	metrics.StatusTransitions.WithLabelValues(string(target)).Inc()
	if change.PointsAwarded > 0 {
		metrics.EcoPointsAwarded.WithLabelValues(string(p.WasteType)).Add(float64(change.PointsAwarded))
	}
	return change, nil
}

// Rate records the owning household's rating of a collected pickup. Pickups
// the caller does not own are reported as not found.
func (c *Controller) Rate(ctx context.Context, caller Caller, id string, rating int, feedback string) (*data.Pickup, error) {
	if err := authorize(OpRate, caller); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, fail(ErrInvalidInput, "rating must be between 1 and 5")
	}
	feedback = strings.TrimSpace(feedback)

	p, err := c.pickups.GetPickup(ctx, id)
	if errors.Is(err, data.ErrPickupNotFound) || (err == nil && p.UserID != caller.ID) {
		return nil, fail(ErrNotFound, "pickup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load pickup %s: %w", id, err)
	}
	if p.Status != data.StatusCollected {
		return nil, fail(ErrInvalidTransition, "can only rate completed pickups")
	}
	if p.Rating != nil {
		return nil, fail(ErrInvalidTransition, "pickup already rated")
	}

	err = c.pickups.SetRating(ctx, p.ID, caller.ID, rating, feedback)
	if errors.Is(err, data.ErrStatusConflict) {
		return nil, fail(ErrInvalidTransition, "pickup already rated")
	}
	if err != nil {
		return nil, fmt.Errorf("rate pickup %s: %w", p.ID, err)
	}

	p.Rating = &rating
	p.Feedback = feedback
	p.UpdatedAt = time.Now().UTC()
	return p, nil
}

// SendMessage appends a chat message to the pickup's conversation. Only the
// owning household and the bound collector take part.
func (c *Controller) SendMessage(ctx context.Context, caller Caller, id, text string) (*data.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fail(ErrInvalidInput, "message is required")
	}
	if !utf8.ValidString(text) {
		return nil, fail(ErrInvalidInput, "message is not valid UTF-8")
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, fail(ErrInvalidInput, "message exceeds %d characters", maxMessageLength)
	}

	p, err := c.conversation(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	msg, err := c.messages.SaveMessage(ctx, &data.ChatMessage{
		PickupID:   p.ID,
		SenderID:   caller.ID,
		SenderRole: caller.Role,
		Message:    text,
	})
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the pickup's conversation oldest first.
func (c *Controller) ListMessages(ctx context.Context, caller Caller, id string) ([]*data.ChatMessage, error) {
	p, err := c.conversation(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	msgs, err := c.messages.ListMessages(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (c *Controller) conversation(ctx context.Context, caller Caller, id string) (*data.Pickup, error) {
	if err := authorize(OpChat, caller); err != nil {
		return nil, err
	}

	p, err := c.loadPickup(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.ID != p.UserID && (p.CollectorID == "" || caller.ID != p.CollectorID) {
		return nil, fail(ErrForbidden, "you are not involved in this pickup")
	}
	return p, nil
}

// ListUsers returns every account for admins.
func (c *Controller) ListUsers(ctx context.Context, caller Caller) ([]*data.User, error) {
	if err := authorize(OpManageUsers, caller); err != nil {
		return nil, err
	}

	users, err := c.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ToggleUser flips a user's active flag and returns the updated user.
func (c *Controller) ToggleUser(ctx context.Context, caller Caller, id string) (*data.User, error) {
	if err := authorize(OpManageUsers, caller); err != nil {
		return nil, err
	}
	if id == caller.ID {
		return nil, fail(ErrInvalidInput, "admins cannot deactivate their own account")
	}

	u, err := c.users.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrUserNotFound) {
		return nil, fail(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}

	if err := c.users.SetActive(ctx, u.ID, !u.IsActive); err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			return nil, fail(ErrNotFound, "user not found")
		}
		return nil, fmt.Errorf("toggle user %s: %w", u.ID, err)
	}
	u.IsActive = !u.IsActive
	u.Password = ""
	return u, nil
}

func (c *Controller) loadPickup(ctx context.Context, id string) (*data.Pickup, error) {
	p, err := c.pickups.GetPickup(ctx, id)
	if errors.Is(err, data.ErrPickupNotFound) {
		return nil, fail(ErrNotFound, "pickup not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load pickup %s: %w", id, err)
	}
	return p, nil
}

// lostRace re-reads a pickup after a conditional write matched nothing, so
// the caller sees not found if it vanished and an invalid transition otherwise.
func (c *Controller) lostRace(ctx context.Context, id, msg string) error {
	if _, err := c.loadPickup(ctx, id); err != nil {
		return err
	}
	return fail(ErrInvalidTransition, "%s", msg)
}

// enrich attaches household and collector profiles. A profile that no
// longer exists is left empty rather than failing the listing.
func (c *Controller) enrich(ctx context.Context, pickups []*data.Pickup) ([]*PickupView, error) {
	profiles := map[string]*data.User{}
	lookup := func(id string) (*data.User, error) {
		if id == "" {
			return nil, nil
		}
		if u, ok := profiles[id]; ok {
			return u, nil
		}
		u, err := c.users.GetUserByID(ctx, id)
		if errors.Is(err, data.ErrUserNotFound) {
			profiles[id] = nil
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", id, err)
		}
		u.Password = ""
		profiles[id] = u
		return u, nil
	}

	views := make([]*PickupView, 0, len(pickups))
	for _, p := range pickups {
		household, err := lookup(p.UserID)
		if err != nil {
			return nil, err
		}
		collector, err := lookup(p.CollectorID)
		if err != nil {
			return nil, err
		}
		views = append(views, &PickupView{Pickup: p, User: household, Collector: collector})
	}
	return views, nil
}
