package domain

// Profile is the part of a user that other users are allowed to see.
type Profile struct {
	ID          int64  `db:"id"`
	DisplayName string `db:"display_name"`
	Email       string `db:"email"`
}
