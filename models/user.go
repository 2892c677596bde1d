package models

// User represents a registered account.
// It maps to the `users` table in SQLite. Password holds whatever the
// configured password scheme stores and is never serialized.
type User struct {
	ID        int64  `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	Password  string `db:"password" json:"-"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
