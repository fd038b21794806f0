package domain

import "time"

const (
	// GuestUsername is the identity of a request without a valid session.
	GuestUsername = "Guest"

	// SystemUsername authors room announcements.
	SystemUsername = "System"
)

// User is a registered account.
type User struct {
	Username       string
	PasswordDigest string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Group is a chat group. Its name doubles as the room key and the broker
// broadcast channel name.
type Group struct {
	Name string `json:"name"`
}
