package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"postcms/internal/domain"
)

// PostStore implements domain.PostStore over SQL. The block list is stored
// as one JSON column so it round-trips without reordering or losing fields.
type PostStore struct {
	db  *DB
	now func() time.Time
}

func NewPostStore(db *DB) *PostStore {
	return &PostStore{db: db, now: time.Now}
}

func (s *PostStore) SavePost(ctx context.Context, p *domain.Post) error {
	if p.ID == "" {
		return fmt.Errorf("save post: missing id")
	}
	if err := domain.ValidateBlocks(p.Blocks); err != nil {
		return fmt.Errorf("save post %s: %w", p.ID, err)
	}
	blocksJSON, err := domain.EncodeBlocks(p.Blocks)
	if err != nil {
		return fmt.Errorf("save post %s: %w", p.ID, err)
	}
	// TIMESTAMPTZ and DATETIME(6) keep microseconds.
	now := s.now().UTC().Truncate(time.Microsecond)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Slug == "" {
		p.Slug = domain.Slugify(p.Title)
	}

	q := s.db.dialect.upsert("posts", "id",
		[]string{"id", "title", "slug", "blocks_json", "created_at", "updated_at"},
		[]string{"title", "slug", "blocks_json", "updated_at"},
	)
	if _, err := s.db.exec(ctx, q, p.ID, p.Title, p.Slug, blocksJSON, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("save post %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	p := &domain.Post{}
	var blocksJSON string
	err := s.db.queryRow(ctx,
		`SELECT id, title, slug, blocks_json, created_at, updated_at FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Slug, &blocksJSON, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get post %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(blocksJSON), &p.Blocks); err != nil {
		return nil, fmt.Errorf("get post %s: decode blocks: %w", id, err)
	}
	return p, nil
}

func (s *PostStore) ListPosts(ctx context.Context) ([]domain.PostSummary, error) {
	rows, err := s.db.query(ctx,
		`SELECT id, title, slug, blocks_json, updated_at FROM posts ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.PostSummary
	for rows.Next() {
		var (
			ps         domain.PostSummary
			blocksJSON string
		)
		if err := rows.Scan(&ps.ID, &ps.Title, &ps.Slug, &blocksJSON, &ps.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		ps.BlockCount = countBlocks(blocksJSON)
		posts = append(posts, ps)
	}
	return posts, rows.Err()
}

func (s *PostStore) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.exec(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete post %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func countBlocks(blocksJSON string) int {
	var list []json.RawMessage
	if json.Unmarshal([]byte(blocksJSON), &list) != nil {
		return 0
	}
	return len(list)
}
