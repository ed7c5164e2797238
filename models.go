package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationState is the email verification dimension of an account
type VerificationState string

const (
	// StateUnverified is the initial state of every new account
	StateUnverified VerificationState = "unverified"
	// StateVerified is reached once the emailed token is presented back
	StateVerified VerificationState = "verified"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Nickname      string    `bun:"nickname,notnull,unique" json:"nickname,omitempty"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`

	EmailVerified              bool       `bun:"email_verified,notnull,default:false" json:"email_verified"`
	EmailCheckToken            string     `bun:"email_check_token" json:"-"`
	EmailCheckTokenGeneratedAt *time.Time `bun:"email_check_token_generated_at,nullzero" json:"-"`
	ConfirmEmailSentAt         *time.Time `bun:"confirm_email_sent_at,nullzero" json:"-"`
	JoinedAt                   *time.Time `bun:"joined_at,nullzero" json:"joined_at,omitempty"`

	Bio          string `bun:"bio" json:"bio,omitempty"`
	URL          string `bun:"url" json:"url,omitempty"`
	Occupation   string `bun:"occupation" json:"occupation,omitempty"`
	Location     string `bun:"location" json:"location,omitempty"`
	ProfileImage string `bun:"profile_image" json:"profile_image,omitempty"`

	NotificationSettings

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NotificationSettings holds the study notification preferences,
// split by delivery channel.
type NotificationSettings struct {
	StudyCreatedByEmail          bool `bun:"study_created_by_email,notnull,default:false" json:"study_created_by_email"`
	StudyCreatedByWeb            bool `bun:"study_created_by_web,notnull,default:false" json:"study_created_by_web"`
	StudyEnrollmentResultByEmail bool `bun:"study_enrollment_result_by_email,notnull,default:false" json:"study_enrollment_result_by_email"`
	StudyEnrollmentResultByWeb   bool `bun:"study_enrollment_result_by_web,notnull,default:false" json:"study_enrollment_result_by_web"`
	StudyUpdatedByEmail          bool `bun:"study_updated_by_email,notnull,default:false" json:"study_updated_by_email"`
	StudyUpdatedByWeb            bool `bun:"study_updated_by_web,notnull,default:false" json:"study_updated_by_web"`
}

// DefaultNotificationSettings enables the web channel and
// leaves email notifications off.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		StudyCreatedByWeb:          true,
		StudyEnrollmentResultByWeb: true,
		StudyUpdatedByWeb:          true,
	}
}

// State returns the current verification state
func (a *Account) State() VerificationState {
	if a == nil || !a.EmailVerified {
		return StateUnverified
	}
	return StateVerified
}

// IsVerified reports whether the account email was confirmed
func (a *Account) IsVerified() bool {
	return a.State() == StateVerified
}

// HasPendingToken reports whether a verification token is waiting to be used
func (a *Account) HasPendingToken() bool {
	return a != nil && a.EmailCheckToken != ""
}

// IsTokenExpired checks the token age against ttl. Accounts with no
// generation timestamp are treated as expired.
func (a *Account) IsTokenExpired(now time.Time, ttl time.Duration) bool {
	if a == nil || a.EmailCheckTokenGeneratedAt == nil {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return !a.EmailCheckTokenGeneratedAt.Add(ttl).After(now)
}

func (a *Account) setEmailCheckToken(token string, at time.Time) {
	a.EmailCheckToken = token
	a.EmailCheckTokenGeneratedAt = &at
}

// setConfirmEmailSent records a successful hand-off of the verification message
func (a *Account) setConfirmEmailSent(at time.Time) {
	a.ConfirmEmailSentAt = &at
}

func (a *Account) markVerified(at time.Time) {
	a.EmailVerified = true
	a.JoinedAt = &at
	a.EmailCheckToken = ""
	a.EmailCheckTokenGeneratedAt = nil
}
