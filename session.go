package account

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionClaims are the JWT claims carried by the session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"uid"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email,omitempty"`
}

func (c *SessionClaims) GetAccountID() string {
	return c.AccountID
}

func (c *SessionClaims) GetNickname() string {
	return c.Nickname
}

func (c *SessionClaims) GetEmail() string {
	return c.Email
}

// ToSession converts claims into a SessionObject holding token
func (c *SessionClaims) ToSession(token string) *SessionObject {
	s := &SessionObject{
		AccountID: c.AccountID,
		Nickname:  c.Nickname,
		Email:     c.Email,
		Issuer:    c.Issuer,
		Token:     token,
	}
	if c.IssuedAt != nil {
		t := c.IssuedAt.Time
		s.IssuedAt = &t
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.Time
		s.ExpiresAt = &t
	}
	return s
}

type SessionObject struct {
	AccountID string     `json:"account_id,omitempty"`
	Nickname  string     `json:"nickname,omitempty"`
	Email     string     `json:"email,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	Token     string     `json:"-"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *SessionObject) GetAccountID() string {
	return s.AccountID
}

func (s *SessionObject) GetAccountUUID() (uuid.UUID, error) {
	return uuid.Parse(s.AccountID)
}

func (s *SessionObject) GetNickname() string {
	return s.Nickname
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetToken() string {
	return s.Token
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiresAt() *time.Time {
	return s.ExpiresAt
}
