package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"postcms/internal/domain"
)

// MaxRevisions is how many revisions are kept per post.
const MaxRevisions = 40

// RevisionStore keeps a post's save history as a chain of snapshots with a
// current-position pointer.
type RevisionStore struct {
	db  *DB
	max int
	now func() time.Time
}

func NewRevisionStore(db *DB) *RevisionStore {
	return &RevisionStore{db: db, max: MaxRevisions, now: time.Now}
}

// LoadHistory returns the post's revisions, oldest first. A post without
// revisions yields nil.
func (s *RevisionStore) LoadHistory(ctx context.Context, postID string) (*domain.RevisionHistory, error) {
	rows, err := s.db.query(ctx,
		`SELECT id, post_id, parent_id, label, snapshot_json, created_at
		 FROM revisions WHERE post_id = ? ORDER BY seq ASC`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("load revisions: %w", err)
	}
	defer rows.Close()

	var revs []domain.Revision
	var rootID string
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		if r.ParentID == nil && rootID == "" {
			rootID = r.ID
		}
		revs = append(revs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, nil
	}

	var currentID string
	err = s.db.queryRow(ctx, `SELECT current_id FROM revision_state WHERE post_id = ?`, postID).Scan(&currentID)
	if err != nil {
		currentID = revs[len(revs)-1].ID
	}
	return &domain.RevisionHistory{Revisions: revs, CurrentID: currentID, RootID: rootID}, nil
}

func (s *RevisionStore) GetRevision(ctx context.Context, id string) (*domain.Revision, error) {
	row := s.db.queryRow(ctx,
		`SELECT id, post_id, parent_id, label, snapshot_json, created_at FROM revisions WHERE id = ?`, id)
	r, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get revision %s: %w", id, domain.ErrNotFound)
	}
	return r, err
}

// PushRevision appends a revision under parentID, makes it current and
// prunes the oldest revisions beyond the limit.
func (s *RevisionStore) PushRevision(ctx context.Context, postID, revisionID, parentID, label, snapshotJSON string) (*domain.Revision, error) {
	now := s.now().UTC()
	var pID *string
	if parentID != "" {
		pID = &parentID
	}

	err := s.db.withTx(ctx, func(tx *txHelper) error {
		var seq int64
		if err := tx.queryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM revisions WHERE post_id = ?`, postID).Scan(&seq); err != nil {
			return fmt.Errorf("next revision seq: %w", err)
		}
		if _, err := tx.exec(ctx,
			`INSERT INTO revisions (id, post_id, parent_id, seq, label, snapshot_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			revisionID, postID, pID, seq+1, label, snapshotJSON, now,
		); err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		if err := s.setCurrent(ctx, tx, postID, revisionID); err != nil {
			return err
		}
		return s.prune(ctx, tx, postID, revisionID)
	})
	if err != nil {
		return nil, err
	}
	return &domain.Revision{
		ID:           revisionID,
		PostID:       postID,
		ParentID:     pID,
		Label:        label,
		SnapshotJSON: snapshotJSON,
		CreatedAt:    now,
	}, nil
}

// GoTo moves the current position pointer.
func (s *RevisionStore) GoTo(ctx context.Context, postID, revisionID string) error {
	return s.db.withTx(ctx, func(tx *txHelper) error {
		var owner string
		err := tx.queryRow(ctx, `SELECT post_id FROM revisions WHERE id = ?`, revisionID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != postID) {
			return fmt.Errorf("revision %s of post %s: %w", revisionID, postID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("go to revision: %w", err)
		}
		return s.setCurrent(ctx, tx, postID, revisionID)
	})
}

// ClearPost removes all revision data for a post.
func (s *RevisionStore) ClearPost(ctx context.Context, postID string) error {
	return s.db.withTx(ctx, func(tx *txHelper) error {
		if _, err := tx.exec(ctx, `DELETE FROM revision_state WHERE post_id = ?`, postID); err != nil {
			return fmt.Errorf("clear revision state: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM revisions WHERE post_id = ?`, postID); err != nil {
			return fmt.Errorf("clear revisions: %w", err)
		}
		return nil
	})
}

func (s *RevisionStore) setCurrent(ctx context.Context, tx *txHelper, postID, revisionID string) error {
	q := s.db.dialect.upsert("revision_state", "post_id", []string{"post_id", "current_id"}, []string{"current_id"})
	if _, err := tx.exec(ctx, q, postID, revisionID); err != nil {
		return fmt.Errorf("update revision state: %w", err)
	}
	return nil
}

// prune removes the oldest revisions beyond the limit, never the current
// one. Children of a removed revision are re-parented to its parent.
func (s *RevisionStore) prune(ctx context.Context, tx *txHelper, postID, currentID string) error {
	var count int
	if err := tx.queryRow(ctx, `SELECT COUNT(*) FROM revisions WHERE post_id = ?`, postID).Scan(&count); err != nil {
		return fmt.Errorf("count revisions: %w", err)
	}
	if count <= s.max {
		return nil
	}

	// Collect victims first; the cursor must be closed before any write.
	rows, err := tx.query(ctx,
		`SELECT id, parent_id FROM revisions WHERE post_id = ? AND id <> ? ORDER BY seq ASC LIMIT ?`,
		postID, currentID, count-s.max)
	if err != nil {
		return fmt.Errorf("select revisions to prune: %w", err)
	}
	type victim struct {
		id     string
		parent sql.NullString
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.parent); err != nil {
			rows.Close()
			return fmt.Errorf("scan revision: %w", err)
		}
		victims = append(victims, v)
	}
	rows.Close()

	for _, v := range victims {
		var parent any
		if v.parent.Valid {
			parent = v.parent.String
		}
		if _, err := tx.exec(ctx, `UPDATE revisions SET parent_id = ? WHERE parent_id = ?`, parent, v.id); err != nil {
			return fmt.Errorf("reparent revisions: %w", err)
		}
		if _, err := tx.exec(ctx, `DELETE FROM revisions WHERE id = ?`, v.id); err != nil {
			return fmt.Errorf("delete revision: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var (
		r      domain.Revision
		parent sql.NullString
	)
	if err := row.Scan(&r.ID, &r.PostID, &parent, &r.Label, &r.SnapshotJSON, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan revision: %w", err)
	}
	if parent.Valid {
		p := parent.String
		r.ParentID = &p
	}
	return &r, nil
}
