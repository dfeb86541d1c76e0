package models

import "time"

// RefreshToken is a stored refresh token. Only the SHA-256 of the token
// itself is kept.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	Expires   time.Time
	CreatedAt time.Time
}
