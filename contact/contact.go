// Package contact stores contact-form submissions.
package contact

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/storage"
)

// Contact is one stored submission. Rows are never modified after insert.
type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Submission is the public form payload.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// One @, no whitespace, and a dot somewhere after the @.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func (s Submission) validate() (Submission, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Message = strings.TrimSpace(s.Message)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", s.Name},
		{"email", s.Email},
		{"message", s.Message},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Submission{}, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !ValidEmail(s.Email) {
		return Submission{}, apperr.Validation("invalid email address")
	}
	return s, nil
}

// Schema returns the contacts table for dialect d.
func Schema(d storage.Dialect) storage.Table {
	create := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS contacts (
    %s,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL,
    message TEXT NOT NULL,
    created_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, d.AutoID(), d.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at)`,
	}
	return storage.Table{
		Name:   "contacts",
		Create: append(create, d.TouchUpdatedAt("contacts")...),
	}
}
