package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
	"github.com/go-chi/chi/v5"
)

type createPickupRequest struct {
	WasteType  data.WasteType `json:"waste_type"`
	PickupDate string         `json:"pickup_date"`
	PickupTime string         `json:"pickup_time"`
	Location   string         `json:"location"`
	Address    string         `json:"address"`
	PhotoURL   string         `json:"photo_url"`
	Notes      string         `json:"notes"`
}

// pickupDateLayouts are tried in order; date-only values mean midnight UTC.
var pickupDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parsePickupDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range pickupDateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("pickup_date %q is not a date", v)
}

// caller returns the authenticated caller; authMiddleware guarantees one.
func caller(r *http.Request) lifecycle.Caller {
	c, _ := callerFromContext(r.Context())
	return c
}

func (s *Server) handleCreatePickup(w http.ResponseWriter, r *http.Request) {
	var req createPickupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	date, err := parsePickupDate(req.PickupDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	p, err := s.ctrl.Create(r.Context(), caller(r), lifecycle.CreateRequest{
		WasteType:  req.WasteType,
		PickupDate: date,
		PickupTime: req.PickupTime,
		Location:   req.Location,
		Address:    req.Address,
		PhotoURL:   strings.TrimSpace(req.PhotoURL),
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Pickup request created",
		"pickup_id": p.ID,
		"pickup":    p,
	})
}

func (s *Server) handleListPickups(w http.ResponseWriter, r *http.Request) {
	pickups, err := s.ctrl.List(r.Context(), caller(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickups)
}

func (s *Server) handleGetPickup(w http.ResponseWriter, r *http.Request) {
	p, err := s.ctrl.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAssignPickup(w http.ResponseWriter, r *http.Request) {
	p, err := s.ctrl.Assign(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Pickup assigned successfully",
		"pickup":  p,
	})
}

// handleUpdateStatus takes the target from ?status= or a {"status"} body.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status data.Status `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	target := data.Status(r.URL.Query().Get("status"))
	if target == "" {
		target = body.Status
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "status is required")
		return
	}

	change, err := s.ctrl.UpdateStatus(r.Context(), caller(r), chi.URLParam(r, "id"), target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Status updated successfully",
		"status":          change.Pickup.Status,
		"previous_status": change.Previous,
		"points_awarded":  change.PointsAwarded,
	})
}

// handleRatePickup takes rating and feedback from the query string or a JSON body.
func (s *Server) handleRatePickup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating   *int   `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}

	q := r.URL.Query()
	if v := q.Get("rating"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "rating must be an integer")
			return
		}
		body.Rating = &n
	}
	if q.Has("feedback") {
		body.Feedback = q.Get("feedback")
	}
	if body.Rating == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "rating is required")
		return
	}

	if _, err := s.ctrl.Rate(r.Context(), caller(r), chi.URLParam(r, "id"), *body.Rating, body.Feedback); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rating submitted successfully"})
}

// handleSendMessage takes the text from ?message= or a {"message"} body.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	if v := r.URL.Query().Get("message"); v != "" {
		body.Message = v
	}

	msg, err := s.ctrl.SendMessage(r.Context(), caller(r), chi.URLParam(r, "id"), body.Message)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Message sent successfully",
		"message_id": msg.ID,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.ctrl.ListMessages(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.Stats(r.Context(), caller(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.Value())
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.ctrl.ListUsers(r.Context(), caller(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.ctrl.ToggleUser(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	verb := "deactivated"
	if u.IsActive {
		verb = "activated"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "User " + verb + " successfully",
		"is_active": u.IsActive,
	})
}
