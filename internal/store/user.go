package store

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lower-cases and trims an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", Invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Invalid("malformed email %q", email)
	}
	return email, nil
}

// PrepareNewsletter validates a newsletter log entry and fills in its
// defaults.
func PrepareNewsletter(e *NewsletterLogEntry) error {
	if e.UserID == "" {
		return Invalid("user id is required")
	}
	if e.Persona == "" {
		return Invalid("persona is required")
	}
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = Now()
	}
	return nil
}
