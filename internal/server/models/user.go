// Package models defines the relay's persisted records.
package models

import "time"

// User is a registered account. Username keeps the form it was registered
// with; lookups go through the lower-cased key.
type User struct {
	Username  string    `json:"username"`
	Salt      []byte    `json:"salt"`
	Hash      []byte    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}
