package domain

import (
	"context"
	"time"
)

// Revision is one saved snapshot of a post's block list.
type Revision struct {
	ID           string    `json:"id"`
	PostID       string    `json:"postId"`
	ParentID     *string   `json:"parentId"`
	Label        string    `json:"label"`
	SnapshotJSON string    `json:"snapshotJson"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RevisionHistory is the full history of a post with its current position.
type RevisionHistory struct {
	Revisions []Revision `json:"revisions"`
	CurrentID string     `json:"currentId"`
	RootID    string     `json:"rootId"`
}

type RevisionStore interface {
	LoadHistory(ctx context.Context, postID string) (*RevisionHistory, error)
	GetRevision(ctx context.Context, id string) (*Revision, error)
	PushRevision(ctx context.Context, postID, revisionID, parentID, label, snapshotJSON string) (*Revision, error)
	GoTo(ctx context.Context, postID, revisionID string) error
	ClearPost(ctx context.Context, postID string) error
}
