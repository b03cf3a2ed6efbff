package domain

import (
	"context"
	"io"
	"time"
)

// MediaObject describes an uploaded file.
type MediaObject struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MediaStore holds uploaded media and publishes it under a stable public URL.
type MediaStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (*MediaObject, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]MediaObject, error)
}
