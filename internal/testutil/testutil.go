package testutil

import (
	"database/sql"
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"calorieTracker/internal/db"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The database is closed via t.Cleanup. Use a distinct name per test so
// shared-cache databases do not leak rows between tests.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// SignToken returns an HS256 token carrying the claims the API expects,
// expiring after ttl (negative ttl yields an already expired token).
func SignToken(t *testing.T, secret, issuer string, userID int64, username string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      issuer,
		"sub":      strconv.FormatInt(userID, 10),
		"user_id":  userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
