package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"erp-server/internal/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// jwtClaims is the JWT payload struct used for signing and parsing. The user id
// travels in the standard sub claim.
type jwtClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

func (h *Handler) issueToken(u core.User) (tokenResponse, error) {
	now := time.Now().UTC()
	expires := now.Add(h.tokenTTL)
	claims := &jwtClaims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenResponse{Token: signed, ExpiresAt: expires, User: u}, nil
}

func (h *Handler) parseToken(raw string) (core.Actor, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return core.Actor{}, errors.New("invalid or expired token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return core.Actor{}, errors.New("invalid token subject")
	}
	return core.Actor{ID: id, Username: claims.Username, Role: claims.Role}, nil
}

// RequireAuth is chi middleware that validates the bearer token and stores the
// caller as the core.Actor of the request context. Returns 401 if the token is
// absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		actor, err := h.parseToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, err.Error(), "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(core.WithActor(r.Context(), actor)))
	})
}

// login handles POST /auth/login.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			writeError(w, r, "invalid username or password", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		h.fail(w, r, err)
		return
	}
	resp, err := h.issueToken(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Str("username", user.Username).Msg("user logged in")
	writeJSON(w, http.StatusOK, resp)
}

// register handles POST /auth/register. New users get the User role.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.Users.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.issueToken(user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// me handles GET /auth/me and returns the current user's profile.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Users.GetByID(r.Context(), core.ActorFrom(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
