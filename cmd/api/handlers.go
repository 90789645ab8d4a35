package main

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/auth"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/normalize"
)

const minPasswordLength = 8

var errInvalidCredentials = errors.New("invalid credentials")

// dummyHash is compared against when the email is unknown so that both login
// failures cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword("bhangaar-waala-unknown-user")
	if err != nil {
		log.Printf("dummy password hash: %v", err)
	}
	return h
})

func checkCredentials(user *data.User, password string) error {
	if user == nil {
		_ = auth.CheckPassword(dummyHash(), password)
		return errInvalidCredentials
	}
	return auth.CheckPassword(user.Password, password)
}

type registerRequest struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Role     data.Role `json:"role"`
	Address  string    `json:"address"`
}

func (r *registerRequest) validate() string {
	r.Email = normalize.Email(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)

	switch {
	case r.Email == "" || !strings.Contains(r.Email, "@"):
		return "a valid email is required"
	case len(r.Password) < minPasswordLength:
		return "password must be at least 8 characters"
	case r.Name == "":
		return "name is required"
	case !r.Role.Valid():
		return "role must be household, collector or admin"
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// publicUser is the user summary returned alongside a token.
type publicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      data.Role `json:"role"`
	EcoPoints int       `json:"eco_points"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        publicUser `json:"user"`
}

// Register handles user registration: hashes password, stores user, returns JWT token
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_input", msg)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), &data.User{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		Address:  req.Address,
		Password: hashed,
	})
	if errors.Is(err, data.ErrUserExists) {
		writeError(w, http.StatusBadRequest, "conflict", "email already registered")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.issueToken(w, r, http.StatusCreated, user)
}

// Login authenticates a user and returns a JWT token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, data.ErrUserNotFound) {
		respondError(w, r, err)
		return
	}
	// same answer for unknown email and wrong password
	if checkCredentials(user, req.Password) != nil {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "invalid credentials")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "forbidden", "account is deactivated")
		return
	}

	s.issueToken(w, r, http.StatusOK, user)
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, status int, user *data.User) {
	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	log.Printf("issued token for %s (%s)", user.ID, user.Role)

	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.UTC(),
		User: publicUser{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Role:      user.Role,
			EcoPoints: user.EcoPoints,
		},
	})
}
