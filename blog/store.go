package blog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eringen/pubapi/access"
	"github.com/eringen/pubapi/apperr"
	"github.com/eringen/pubapi/storage"
)

// Schema returns the blogs table for dialect d. cover_image and author_image
// shipped after the first release, so older databases get them added.
func Schema(d storage.Dialect) storage.Table {
	create := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blogs (
    %s,
    slug VARCHAR(255) NOT NULL UNIQUE,
    title VARCHAR(500) NOT NULL,
    excerpt TEXT NOT NULL,
    content TEXT NOT NULL,
    cover_image TEXT,
    author_name VARCHAR(255) NOT NULL,
    author_image TEXT,
    author_role VARCHAR(255) NOT NULL,
    category VARCHAR(100) NOT NULL,
    read_time VARCHAR(50) NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    published_at DATE NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'published')),
    created_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at %[2]s NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, d.AutoID(), d.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_blogs_slug ON blogs(slug)`,
		`CREATE INDEX IF NOT EXISTS idx_blogs_category ON blogs(category)`,
		`CREATE INDEX IF NOT EXISTS idx_blogs_status ON blogs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_blogs_published_at ON blogs(published_at)`,
	}
	return storage.Table{
		Name:   "blogs",
		Create: append(create, d.TouchUpdatedAt("blogs")...),
		Added: []storage.Column{
			{Name: "author_image", Definition: "TEXT"},
			{Name: "cover_image", Definition: "TEXT"},
		},
	}
}

const (
	summaryColumns = `id, slug, title, excerpt, cover_image, author_name, author_image, author_role, category, read_time, tags, published_at, created_at, updated_at`
	blogColumns    = `id, slug, title, excerpt, content, cover_image, author_name, author_image, author_role, category, read_time, tags, published_at, status, created_at, updated_at`
)

// Store is the blog repository. It holds no rows in memory; every read goes
// to the database.
type Store struct {
	db     *storage.DB
	tracer trace.Tracer
}

// NewStore returns a Store on db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db, tracer: otel.Tracer("github.com/eringen/pubapi/blog")}
}

func (s *Store) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "blog."+op, trace.WithSpanKind(trace.SpanKindClient))
}

func fail(span trace.Span, err error) error {
	if err != nil && apperr.KindOf(err) == apperr.KindStore {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ListPublished returns published posts, newest publication date first.
func (s *Store) ListPublished(ctx context.Context) ([]Summary, error) {
	ctx, span := s.start(ctx, "ListPublished")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM blogs WHERE status = ? ORDER BY published_at DESC, id DESC`,
		string(StatusPublished))
	if err != nil {
		return nil, fail(span, apperr.Store("list published blogs", err))
	}
	defer rows.Close()

	posts := []Summary{}
	for rows.Next() {
		var p Summary
		var created, updated storage.Timestamp
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Excerpt, &p.CoverImage, &p.AuthorName,
			&p.AuthorImage, &p.AuthorRole, &p.Category, &p.ReadTime, &p.Tags, &p.PublishedAt,
			&created, &updated); err != nil {
			return nil, fail(span, apperr.Store("scan blog summary", err))
		}
		p.CreatedAt = created.Time
		p.UpdatedAt = updated.Time
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, apperr.Store("list published blogs", err))
	}
	span.SetAttributes(attribute.Int("blog.count", len(posts)))
	return posts, nil
}

// GetBySlug returns the published post with slug. A draft with that slug is
// reported as not found.
func (s *Store) GetBySlug(ctx context.Context, slug string) (Blog, error) {
	ctx, span := s.start(ctx, "GetBySlug")
	defer span.End()
	span.SetAttributes(attribute.String("blog.slug", slug))

	row := s.db.QueryRowContext(ctx,
		`SELECT `+blogColumns+` FROM blogs WHERE slug = ? AND status = ?`, slug, string(StatusPublished))
	b, err := scanBlog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Blog{}, apperr.NotFound("blog not found")
	}
	if err != nil {
		return Blog{}, fail(span, apperr.Store("get blog", err))
	}
	return b, nil
}

// ListAll returns every post regardless of status, newest first.
// Administrative.
func (s *Store) ListAll(ctx context.Context) ([]Blog, error) {
	ctx, span := s.start(ctx, "ListAll")
	defer span.End()
	if err := access.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+blogColumns+` FROM blogs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fail(span, apperr.Store("list blogs", err))
	}
	defer rows.Close()

	posts := []Blog{}
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, fail(span, apperr.Store("scan blog", err))
		}
		posts = append(posts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, apperr.Store("list blogs", err))
	}
	return posts, nil
}

// Create validates in and inserts it. A slug that already exists is a
// conflict; uniqueness is left to the table constraint.
func (s *Store) Create(ctx context.Context, in Input) (Created, error) {
	ctx, span := s.start(ctx, "Create")
	defer span.End()
	if err := access.RequireAdmin(ctx); err != nil {
		return Created{}, err
	}
	rec, err := in.validate()
	if err != nil {
		return Created{}, err
	}
	span.SetAttributes(attribute.String("blog.slug", rec.Slug))

	var id int64
	err = s.db.QueryRowContext(ctx, `INSERT INTO blogs
    (slug, title, excerpt, content, cover_image, author_name, author_image, author_role, category, read_time, tags, published_at, status)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    RETURNING id`,
		rec.Slug, rec.Title, rec.Excerpt, rec.Content, rec.CoverImage, rec.AuthorName, rec.AuthorImage,
		rec.AuthorRole, rec.Category, rec.ReadTime, rec.Tags, rec.publishedAt, string(rec.Status),
	).Scan(&id)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return Created{}, apperr.Conflict("a blog with this slug already exists", err)
		}
		return Created{}, fail(span, apperr.Store("insert blog", err))
	}
	return Created{ID: id, Slug: rec.Slug}, nil
}

// Update replaces every writable field of post id.
func (s *Store) Update(ctx context.Context, id int64, in Input) error {
	ctx, span := s.start(ctx, "Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("blog.id", id))
	if err := access.RequireAdmin(ctx); err != nil {
		return err
	}
	rec, err := in.validate()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE blogs SET
    slug = ?, title = ?, excerpt = ?, content = ?, cover_image = ?, author_name = ?, author_image = ?,
    author_role = ?, category = ?, read_time = ?, tags = ?, published_at = ?, status = ?
    WHERE id = ?`,
		rec.Slug, rec.Title, rec.Excerpt, rec.Content, rec.CoverImage, rec.AuthorName, rec.AuthorImage,
		rec.AuthorRole, rec.Category, rec.ReadTime, rec.Tags, rec.publishedAt, string(rec.Status), id,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return apperr.Conflict("a blog with this slug already exists", err)
		}
		return fail(span, apperr.Store("update blog", err))
	}
	return affectedOne(span, res, "update blog")
}

// Delete removes post id permanently.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "Delete")
	defer span.End()
	span.SetAttributes(attribute.Int64("blog.id", id))
	if err := access.RequireAdmin(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id)
	if err != nil {
		return fail(span, apperr.Store("delete blog", err))
	}
	return affectedOne(span, res, "delete blog")
}

func affectedOne(span trace.Span, res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, apperr.Store(op, err))
	}
	if n == 0 {
		return apperr.NotFound("blog not found")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlog(row scanner) (Blog, error) {
	var b Blog
	var status string
	var created, updated storage.Timestamp
	err := row.Scan(&b.ID, &b.Slug, &b.Title, &b.Excerpt, &b.Content, &b.CoverImage, &b.AuthorName,
		&b.AuthorImage, &b.AuthorRole, &b.Category, &b.ReadTime, &b.Tags, &b.PublishedAt, &status,
		&created, &updated)
	if err != nil {
		return Blog{}, err
	}
	b.Status = Status(status)
	b.CreatedAt = created.Time
	b.UpdatedAt = updated.Time
	return b, nil
}
