// Package blog stores blog posts and enforces their visibility rules:
// published posts are public, drafts are only visible to administrative
// reads.
package blog

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/storage"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Blog is a full post row.
type Blog struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content"`
	CoverImage  *string   `json:"cover_image"`
	AuthorName  string    `json:"author_name"`
	AuthorImage *string   `json:"author_image"`
	AuthorRole  string    `json:"author_role"`
	Category    string    `json:"category"`
	ReadTime    string    `json:"read_time"`
	Tags        Tags      `json:"tags"`
	PublishedAt Date      `json:"published_at"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the public listing projection of a post: everything except the
// content and the status.
type Summary struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	CoverImage  *string   `json:"cover_image"`
	AuthorName  string    `json:"author_name"`
	AuthorImage *string   `json:"author_image"`
	AuthorRole  string    `json:"author_role"`
	Category    string    `json:"category"`
	ReadTime    string    `json:"read_time"`
	Tags        Tags      `json:"tags"`
	PublishedAt Date      `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input carries the writable fields for create and update.
type Input struct {
	Slug        string  `json:"slug"`
	Title       string  `json:"title"`
	Excerpt     string  `json:"excerpt"`
	Content     string  `json:"content"`
	CoverImage  *string `json:"cover_image"`
	AuthorName  string  `json:"author_name"`
	AuthorImage *string `json:"author_image"`
	AuthorRole  string  `json:"author_role"`
	Category    string  `json:"category"`
	ReadTime    string  `json:"read_time"`
	Tags        Tags    `json:"tags"`
	PublishedAt string  `json:"published_at"`
	Status      Status  `json:"status"`
}

// Created is returned by Store.Create.
type Created struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// record is a validated Input ready to be written.
type record struct {
	Input
	publishedAt Date
}

// validate checks required fields and fills defaults. Required text fields
// are trimmed; content is stored as given.
func (in Input) validate() (record, error) {
	in.Slug = strings.TrimSpace(in.Slug)
	in.Title = strings.TrimSpace(in.Title)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	in.AuthorRole = strings.TrimSpace(in.AuthorRole)
	in.Category = strings.TrimSpace(in.Category)
	in.ReadTime = strings.TrimSpace(in.ReadTime)
	in.PublishedAt = strings.TrimSpace(in.PublishedAt)

	required := []struct {
		name  string
		value string
	}{
		{"slug", in.Slug},
		{"title", in.Title},
		{"excerpt", in.Excerpt},
		{"content", strings.TrimSpace(in.Content)},
		{"author_name", in.AuthorName},
		{"author_role", in.AuthorRole},
		{"category", in.Category},
		{"read_time", in.ReadTime},
		{"published_at", in.PublishedAt},
	}
	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return record{}, apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	published, err := ParseDate(in.PublishedAt)
	if err != nil {
		return record{}, apperr.Validation("published_at must be a date (YYYY-MM-DD)")
	}

	switch in.Status {
	case "":
		in.Status = StatusDraft
	case StatusDraft, StatusPublished:
	default:
		return record{}, apperr.Validation("status must be %q or %q", StatusDraft, StatusPublished)
	}

	if in.Tags == nil {
		in.Tags = Tags{}
	}
	in.CoverImage = emptyToNil(in.CoverImage)
	in.AuthorImage = emptyToNil(in.AuthorImage)

	return record{Input: in, publishedAt: published}, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// Tags is an ordered list of tags stored as JSON text. Scanning accepts the
// JSON text form as well as an already decoded sequence, so drivers that
// decode JSON columns themselves work unchanged.
type Tags []string

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	tags, err := NormalizeTags(src)
	if err != nil {
		return err
	}
	*t = tags
	return nil
}

// Value implements driver.Valuer; nil is stored as an empty list.
func (t Tags) Value() (driver.Value, error) {
	return t.Encode()
}

// Encode serialises t as JSON text.
func (t Tags) Encode() (string, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalJSON always emits an array, never null.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts an array of strings or a string holding a JSON
// array, which is what clients that pre-serialise the column send.
func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		tags, err := NormalizeTags(s)
		if err != nil {
			return err
		}
		*t = tags
		return nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return fmt.Errorf("tags must be an array of strings: %w", err)
	}
	*t = tags
	return nil
}

// NormalizeTags converts a stored tags value into a list. It accepts JSON
// text (string or bytes) and structured sequences ([]string, []any of
// strings). NULL and empty text yield an empty list.
func NormalizeTags(src any) (Tags, error) {
	switch v := src.(type) {
	case nil:
		return Tags{}, nil
	case Tags:
		return v, nil
	case []string:
		return Tags(v), nil
	case []any:
		out := make(Tags, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("blog: tag %v is %T, not a string", item, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return decodeTags([]byte(v))
	case []byte:
		return decodeTags(v)
	}
	return nil, fmt.Errorf("blog: cannot read tags from %T", src)
}

func decodeTags(b []byte) (Tags, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Tags{}, nil
	}
	var tags []string
	if err := json.Unmarshal(b, &tags); err != nil {
		return nil, fmt.Errorf("blog: decode tags: %w", err)
	}
	if tags == nil {
		return Tags{}, nil
	}
	return Tags(tags), nil
}

const dateLayout = "2006-01-02"

// Date is a calendar date rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp, keeping the date.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, err
	}
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	t, ok := src.(time.Time)
	if !ok {
		var err error
		if t, err = storage.ParseTime(src); err != nil {
			return err
		}
	}
	y, m, day := t.Date()
	d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
