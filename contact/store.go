package contact

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eringen/pubapi/access"
	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/storage"
)

// Store is the contact repository.
type Store struct {
	db     *storage.DB
	tracer trace.Tracer
}

func NewStore(db *storage.DB) *Store {
	return &Store{db: db, tracer: otel.Tracer("github.com/eringen/pubapi/contact")}
}

// Submit validates and stores a submission, returning the stored row with
// its generated id and creation time.
func (s *Store) Submit(ctx context.Context, sub Submission) (Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contact.Submit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	sub, err := sub.validate()
	if err != nil {
		return Contact{}, err
	}

	c := Contact{Name: sub.Name, Email: sub.Email, Message: sub.Message}
	var created storage.Timestamp
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO contacts (name, email, message) VALUES (?, ?, ?) RETURNING id, created_at`,
		c.Name, c.Email, c.Message,
	).Scan(&c.ID, &created)
	if err != nil {
		return Contact{}, s.storeErr(span, "insert contact", err)
	}
	c.CreatedAt = created.Time
	c.UpdatedAt = created.Time
	return c, nil
}

// List returns every submission, most recent first. Administrative.
func (s *Store) List(ctx context.Context) ([]Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contact.List", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	if err := access.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, message, created_at, updated_at FROM contacts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, s.storeErr(span, "list contacts", err)
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		var c Contact
		var created, updated storage.Timestamp
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Message, &created, &updated); err != nil {
			return nil, s.storeErr(span, "scan contact", err)
		}
		c.CreatedAt = created.Time
		c.UpdatedAt = updated.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeErr(span, "list contacts", err)
	}
	span.SetAttributes(attribute.Int("contact.count", len(out)))
	return out, nil
}

func (s *Store) storeErr(span trace.Span, op string, err error) error {
	err = apperr.Store(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
