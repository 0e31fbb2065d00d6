package models

import "time"

// Connection is a mutual-contact relationship between two users. Once it
// exists the pair can message each other without further wallet charges.
type Connection struct {
	ID        string    `json:"id" db:"id"`
	UserA     string    `json:"user_a" db:"user_a"`
	UserB     string    `json:"user_b" db:"user_b"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DirectMessage is the first message delivered when a paid unlock
// creates a connection. Subsequent chat traffic is owned by the
// messaging service, not the wallet.
type DirectMessage struct {
	ID           string    `json:"id" db:"id"`
	ConnectionID string    `json:"connection_id" db:"connection_id"`
	SenderID     string    `json:"sender_id" db:"sender_id"`
	Body         string    `json:"body" db:"body"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
