package callerid

import (
	"fmt"
	"strings"
	"time"
)

// Status values are stored uppercase; ParseStatus rejects anything else.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusExpired  Status = "EXPIRED"
	StatusFailed   Status = "FAILED"
)

// MaxAttempts caps code submissions per record.
const MaxAttempts = 3

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusVerified, StatusExpired, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("callerid: unknown status %q", s)
}

// CallerID is a number a user asked to present on outbound calls.
// EXPIRED and FAILED are final; retrying means adding the number again.
type CallerID struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"` // E.164
	Country     string `json:"country"`      // ISO2
	Status      Status `json:"status"`

	Code          string     `json:"-"`
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty"`
	Attempts      int        `json:"attempts"`

	IsActive   bool       `json:"is_active"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c CallerID) expired(now time.Time) bool {
	return c.CodeExpiresAt == nil || now.After(*c.CodeExpiresAt)
}

func throttleKey(userID, phone string) string {
	return "callerid:resend:" + userID + ":" + strings.TrimPrefix(phone, "+")
}
