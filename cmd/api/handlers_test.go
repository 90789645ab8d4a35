package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/auth"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data/datatest"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t     *testing.T
	h     http.Handler
	store *datatest.MemStore
	jwt   *auth.JWTManager
}

func setupAPI(t *testing.T, limiter middleware.Limiter) *testAPI {
	t.Helper()
	store := datatest.New()
	if limiter == nil {
		ls := middleware.NewLimiterStore(1000, 1000, time.Minute)
		t.Cleanup(ls.Stop)
		limiter = ls
	}
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	ctrl := lifecycle.New(store, store, store, store)
	srv := newServer(store, ctrl, jwtMgr, limiter, store)
	return &testAPI{t: t, h: srv.Router(), store: store, jwt: jwtMgr}
}

// do sends a request with an optional JSON body and bearer token.
func (a *testAPI) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	return rr
}

// register creates an account over HTTP and returns its token and id.
func (a *testAPI) register(email string, role data.Role) (string, string) {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/register", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
		"name":     "Test " + string(role),
		"phone":    "+91 90000 00000",
		"role":     string(role),
	})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp tokenResponse
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.AccessToken, resp.User.ID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]errorBody](t, rr)["error"].Code
}

func TestRegisterAndLogin(t *testing.T) {
	api := setupAPI(t, nil)

	token, id := api.register("  Asha@Example.com ", data.RoleHousehold)
	assert.NotEmpty(t, token)

	claims, err := api.jwt.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "asha@example.com", claims.Email)
	assert.Equal(t, data.RoleHousehold, claims.Role)

	// duplicate email, differently cased
	rr := api.do(http.MethodPost, "/api/register", "", map[string]string{
		"email": "ASHA@example.com", "password": "another-pass", "name": "Asha", "role": "household",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "conflict", errorCode(t, rr))

	rr = api.do(http.MethodPost, "/api/login", "", loginRequest{Email: "asha@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rr))

	rr = api.do(http.MethodPost, "/api/login", "", loginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodPost, "/api/login", "", loginRequest{Email: "Asha@example.com", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[tokenResponse](t, rr)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, id, resp.User.ID)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestRegisterValidation(t *testing.T) {
	api := setupAPI(t, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "nope", "password": "long-enough", "name": "A", "role": "household"}},
		{"short password", map[string]string{"email": "a@b.c", "password": "short", "name": "A", "role": "household"}},
		{"no name", map[string]string{"email": "a@b.c", "password": "long-enough", "role": "household"}},
		{"unknown role", map[string]string{"email": "a@b.c", "password": "long-enough", "name": "A", "role": "mayor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(http.MethodPost, "/api/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_input", errorCode(t, rr))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	api := setupAPI(t, nil)
	adminToken, _ := api.register("admin@example.com", data.RoleAdmin)
	token, id := api.register("home@example.com", data.RoleHousehold)

	rr := api.do(http.MethodGet, "/api/pickups", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodGet, "/api/pickups", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	other := auth.NewJWTManager("other-secret", time.Hour)
	forged, _, err := other.GenerateToken(id, "home@example.com", data.RoleAdmin)
	require.NoError(t, err)
	rr = api.do(http.MethodGet, "/api/admin/users", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// a token for an id that does not exist
	ghost, _, err := api.jwt.GenerateToken("ghost", "ghost@example.com", data.RoleAdmin)
	require.NoError(t, err)
	rr = api.do(http.MethodGet, "/api/pickups", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// role comes from the store, not from the token
	elevated, _, err := api.jwt.GenerateToken(id, "home@example.com", data.RoleAdmin)
	require.NoError(t, err)
	rr = api.do(http.MethodGet, "/api/admin/users", elevated, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(http.MethodPut, "/api/admin/users/"+id+"/toggle", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, rr)["is_active"])

	rr = api.do(http.MethodGet, "/api/pickups", token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(http.MethodPost, "/api/login", "", loginRequest{Email: "home@example.com", Password: "correct-horse"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestPickupFlowOverHTTP(t *testing.T) {
	api := setupAPI(t, nil)
	home, homeID := api.register("home@example.com", data.RoleHousehold)
	collector, collectorID := api.register("collector@example.com", data.RoleCollector)

	rr := api.do(http.MethodPost, "/api/pickups", home, createPickupRequest{
		WasteType:  data.WasteDry,
		PickupDate: "2026-03-02",
		PickupTime: "10:00",
		Location:   "Sector 5",
		Address:    "12 Green Lane",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	pickupID := decode[map[string]interface{}](t, rr)["pickup_id"].(string)

	rr = api.do(http.MethodGet, "/api/pickups", collector, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]map[string]interface{}](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "pending", list[0]["status"])
	assert.Equal(t, homeID, list[0]["user"].(map[string]interface{})["id"])
	assert.NotContains(t, list[0]["user"], "password")

	rr = api.do(http.MethodPut, "/api/pickups/"+pickupID+"/assign", collector, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(http.MethodPut, "/api/pickups/"+pickupID+"/status?status=on_the_way", collector, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// the body form is accepted too
	rr = api.do(http.MethodPut, "/api/pickups/"+pickupID+"/status", collector, map[string]string{"status": "collected"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	change := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "collected", change["status"])
	assert.Equal(t, "on_the_way", change["previous_status"])
	assert.EqualValues(t, 10, change["points_awarded"])
	assert.Equal(t, 10, api.store.Points(homeID))

	rr = api.do(http.MethodPost, "/api/pickups/"+pickupID+"/rate?rating=5&feedback=Good", home, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(http.MethodGet, "/api/pickups/"+pickupID, home, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[map[string]interface{}](t, rr)
	assert.EqualValues(t, 5, got["rating"])
	assert.Equal(t, "Good", got["feedback"])
	assert.Equal(t, "collected", got["status"])
	assert.Equal(t, collectorID, got["collector_id"])

	rr = api.do(http.MethodGet, "/api/stats/user", home, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, lifecycle.HouseholdStats{TotalPickups: 1, CompletedPickups: 1, EcoPoints: 10}, decode[lifecycle.HouseholdStats](t, rr))

	rr = api.do(http.MethodGet, "/api/stats/user", collector, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5.0, decode[lifecycle.CollectorStats](t, rr).AverageRating)
}

func TestErrorMapping(t *testing.T) {
	api := setupAPI(t, nil)
	home, _ := api.register("home@example.com", data.RoleHousehold)
	collector, _ := api.register("collector@example.com", data.RoleCollector)

	rr := api.do(http.MethodPost, "/api/pickups", collector, createPickupRequest{WasteType: data.WasteDry})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", errorCode(t, rr))

	rr = api.do(http.MethodPost, "/api/pickups", home, createPickupRequest{WasteType: data.WasteDry, PickupDate: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rr))

	rr = api.do(http.MethodPut, "/api/pickups/missing/assign", collector, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", errorCode(t, rr))

	rr = api.do(http.MethodPost, "/api/pickups", home, createPickupRequest{
		WasteType: data.WasteWet, PickupDate: "2026-03-02T09:30:00Z", PickupTime: "09:30", Location: "L", Address: "A",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[map[string]interface{}](t, rr)["pickup_id"].(string)

	rr = api.do(http.MethodPut, "/api/pickups/"+id+"/status?status=collected", home, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, rr))

	rr = api.do(http.MethodPut, "/api/pickups/"+id+"/status", home, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodPost, "/api/pickups/"+id+"/rate?rating=five", home, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodGet, "/api/admin/users", home, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChatOverHTTP(t *testing.T) {
	api := setupAPI(t, nil)
	home, _ := api.register("home@example.com", data.RoleHousehold)
	collector, _ := api.register("collector@example.com", data.RoleCollector)
	stranger, _ := api.register("stranger@example.com", data.RoleHousehold)

	rr := api.do(http.MethodPost, "/api/pickups", home, createPickupRequest{
		WasteType: data.WasteElectronic, PickupDate: "2026-03-02", PickupTime: "18:00", Location: "L", Address: "A",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[map[string]interface{}](t, rr)["pickup_id"].(string)

	rr = api.do(http.MethodPut, "/api/pickups/"+id+"/assign", collector, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(http.MethodPost, "/api/chat/"+id+"?message=ring%20twice", home, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotEmpty(t, decode[map[string]interface{}](t, rr)["message_id"])

	rr = api.do(http.MethodPost, "/api/chat/"+id, collector, map[string]string{"message": "on my way"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(http.MethodPost, "/api/chat/"+id, home, map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(http.MethodGet, "/api/chat/"+id, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(http.MethodGet, "/api/chat/"+id, home, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	msgs := decode[[]data.ChatMessage](t, rr)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ring twice", msgs[0].Message)
	assert.Equal(t, data.RoleCollector, msgs[1].SenderRole)
}

func TestLoginRateLimited(t *testing.T) {
	ls := middleware.NewLimiterStore(1, 2, time.Minute)
	t.Cleanup(ls.Stop)
	api := setupAPI(t, ls)

	creds := loginRequest{Email: "victim@example.com", Password: "guess"}
	for i := 0; i < 2; i++ {
		rr := api.do(http.MethodPost, "/api/login", "", creds)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := api.do(http.MethodPost, "/api/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// other accounts are unaffected
	rr = api.do(http.MethodPost, "/api/login", "", loginRequest{Email: "someone@example.com", Password: "guess"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoint(t *testing.T) {
	api := setupAPI(t, nil)
	rr := api.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode[map[string]interface{}](t, rr)["status"])

	srv := &Server{db: downDB{}}
	rr = httptest.NewRecorder()
	srv.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRespondErrorHidesInternals(t *testing.T) {
	rr := httptest.NewRecorder()
	respondError(rr, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("mongo: connection pool exhausted"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "mongo")
}

func TestParsePickupDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-02", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), false},
		{"2026-03-02T09:30:00Z", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), false},
		{"2026-03-02T15:00:00+05:30", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), false},
		{"2026-03-02T09:30:00.123", time.Date(2026, 3, 2, 9, 30, 0, 123000000, time.UTC), false},
		{"", time.Time{}, false},
		{"02/03/2026", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parsePickupDate(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}
}

func TestCORSPreflight(t *testing.T) {
	api := setupAPI(t, nil)
	rr := api.do(http.MethodOptions, "/api/pickups", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownEmailStillComparesPassword(t *testing.T) {
	cost, err := bcrypt.Cost([]byte(dummyHash()))
	require.NoError(t, err, "dummy hash must be a real bcrypt hash")
	assert.Equal(t, bcrypt.DefaultCost, cost)

	assert.ErrorIs(t, checkCredentials(nil, "anything"), errInvalidCredentials)

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	user := &data.User{Password: hash}
	assert.NoError(t, checkCredentials(user, "correct-horse"))
	assert.Error(t, checkCredentials(user, "wrong-horse"))
}
