package account

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

// VerificationSubject is the subject line of the sign-up verification message
const VerificationSubject = "StudyOlle sign-up verification"

// CheckEmailTokenPath is the route that consumes verification links
const CheckEmailTokenPath = "/check-email-token"

// VerificationMessage is the out of band message carrying the
// verification link for a new account.
type VerificationMessage struct {
	AccountID string     `json:"account_id"`
	To        string     `json:"email"`
	Nickname  string     `json:"nickname"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// VerificationPath returns the relative verification path for token and email
func VerificationPath(token, email string) string {
	return CheckEmailTokenPath + "?token=" + url.QueryEscape(token) + "&email=" + url.QueryEscape(email)
}

// NewVerificationMessage builds the message for account. host is
// prepended to the verification path when set.
func NewVerificationMessage(account *Account, host string, ttl time.Duration) VerificationMessage {
	path := VerificationPath(account.EmailCheckToken, account.Email)
	link := strings.TrimRight(host, "/") + path

	var expiresAt *time.Time
	if ttl > 0 && account.EmailCheckTokenGeneratedAt != nil {
		at := account.EmailCheckTokenGeneratedAt.Add(ttl)
		expiresAt = &at
	}

	return VerificationMessage{
		AccountID: account.ID.String(),
		To:        account.Email,
		Nickname:  account.Nickname,
		Subject:   VerificationSubject,
		Body:      link,
		Link:      link,
		Token:     account.EmailCheckToken,
		ExpiresAt: expiresAt,
	}
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, msg VerificationMessage) error

func (f NotifierFunc) SendVerification(ctx context.Context, msg VerificationMessage) error {
	return f(ctx, msg)
}

// LogNotifier prints verification messages instead of delivering them.
// Useful for local development.
type LogNotifier struct {
	Logger Logger
	Pretty bool
}

func (n LogNotifier) SendVerification(_ context.Context, msg VerificationMessage) error {
	logger := normalizeLogger(n.Logger)
	if n.Pretty {
		fmt.Println(print.MaybePrettyJSON(msg))
	}
	logger.Info("verification email",
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
	)
	return nil
}
