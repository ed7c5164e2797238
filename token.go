package account

import "github.com/google/uuid"

// NewEmailCheckToken returns a fresh random verification token
func NewEmailCheckToken() string {
	return uuid.NewString()
}
