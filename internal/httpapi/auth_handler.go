package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"calorieTracker/internal/auth"
	"calorieTracker/models"
	"calorieTracker/repository"
)

const minPasswordLength = 6

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type sessionResponse struct {
	User  userView `json:"user"`
	Token string   `json:"token"`
}

type authCheckResponse struct {
	Authenticated bool      `json:"authenticated"`
	User          *userView `json:"user,omitempty"`
}

func viewOf(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return ErrBadRequest("Username and password are required")
	}
	if len(req.Password) < minPasswordLength {
		return ErrBadRequest("Password must be at least 6 characters")
	}

	existing, err := a.deps.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		return ErrInternalWrap("lookup user", err)
	}
	if existing != nil {
		return ErrConflict("Username already exists")
	}

	stored, err := a.deps.Passwords.Hash(req.Password)
	if err != nil {
		return ErrInternalWrap("hash password", err)
	}
	user, err := a.deps.Users.Create(r.Context(), req.Username, stored)
	if errors.Is(err, repository.ErrConflict) {
		return ErrConflict("Username already exists")
	}
	if err != nil {
		return ErrInternalWrap("create user", err)
	}
	a.deps.Log.Info(r.Context(), "user registered", "user_id", user.ID)
	return a.startSession(w, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return ErrBadRequest("Username and password are required")
	}

	user, err := a.deps.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		return ErrInternalWrap("lookup user", err)
	}
	if user == nil {
		a.deps.Passwords.Compare(a.dummyHash, req.Password)
		return ErrUnauthorized("Invalid credentials")
	}
	if !a.deps.Passwords.Compare(user.Password, req.Password) {
		return ErrUnauthorized("Invalid credentials")
	}
	return a.startSession(w, user)
}

func (a *API) startSession(w http.ResponseWriter, user *models.User) error {
	token, err := a.deps.Tokens.Generate(*user)
	if err != nil {
		return ErrInternalWrap("generate token", err)
	}
	auth.SetSessionCookie(w, token, a.deps.Tokens.TTL(), a.deps.CookieSecure)
	respondJSON(w, http.StatusOK, sessionResponse{User: viewOf(user), Token: token})
	return nil
}

func (a *API) handleLogout(w http.ResponseWriter, _ *http.Request) error {
	auth.ClearSessionCookie(w, a.deps.CookieSecure)
	respondJSON(w, http.StatusOK, messageBody{Message: "Logged out"})
	return nil
}

// handleAuthCheck reports whether the request carries a valid session whose
// user still exists.
func (a *API) handleAuthCheck(w http.ResponseWriter, r *http.Request) error {
	p, ok := a.guard.Authenticate(r)
	if !ok {
		respondJSON(w, http.StatusUnauthorized, authCheckResponse{})
		return nil
	}
	user, err := a.deps.Users.GetByID(r.Context(), p.UserID)
	if err != nil {
		return ErrInternalWrap("lookup user", err)
	}
	if user == nil {
		respondJSON(w, http.StatusUnauthorized, authCheckResponse{})
		return nil
	}
	v := viewOf(user)
	respondJSON(w, http.StatusOK, authCheckResponse{Authenticated: true, User: &v})
	return nil
}
