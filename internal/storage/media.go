package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"postcms/internal/domain"
)

// ErrInvalidMediaName is returned for names that are not a plain file name.
var ErrInvalidMediaName = errors.New("invalid media name")

// FileMediaStore implements domain.MediaStore on a local directory that a
// web server publishes under BaseURL. When db is set, uploads are also
// recorded in the media table and List reads from it.
type FileMediaStore struct {
	dir     string
	baseURL string
	db      *DB
	now     func() time.Time
}

func NewFileMediaStore(dir, baseURL string, db *DB) (*FileMediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &FileMediaStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), db: db, now: time.Now}, nil
}

// URL is the public URL of a stored name.
func (s *FileMediaStore) URL(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

// Dir is the directory files are written to.
func (s *FileMediaStore) Dir() string { return s.dir }

func (s *FileMediaStore) Put(ctx context.Context, name, contentType string, r io.Reader) (*domain.MediaObject, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, readerWithContext(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, fmt.Errorf("put %s: %w", name, err)
	}

	obj := &domain.MediaObject{
		Name:        name,
		URL:         s.URL(name),
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.now().UTC(),
	}
	if s.db != nil {
		q := s.db.dialect.upsert("media", "name",
			[]string{"name", "url", "content_type", "size", "created_at"},
			[]string{"url", "content_type", "size", "created_at"},
		)
		if _, err := s.db.exec(ctx, q, obj.Name, obj.URL, obj.ContentType, obj.Size, obj.CreatedAt); err != nil {
			return nil, fmt.Errorf("index %s: %w", name, err)
		}
	}
	return obj, nil
}

func (s *FileMediaStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("delete %s: %w", name, domain.ErrNotFound)
	} else if err != nil {
		err = fmt.Errorf("delete %s: %w", name, err)
	}
	if s.db != nil {
		if _, dbErr := s.db.exec(ctx, `DELETE FROM media WHERE name = ?`, name); dbErr != nil && err == nil {
			err = fmt.Errorf("unindex %s: %w", name, dbErr)
		}
	}
	return err
}

// List returns stored objects, oldest first.
func (s *FileMediaStore) List(ctx context.Context) ([]domain.MediaObject, error) {
	if s.db != nil {
		return s.listIndex(ctx)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	var out []domain.MediaObject
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, domain.MediaObject{
			Name:        e.Name(),
			URL:         s.URL(e.Name()),
			ContentType: mime.TypeByExtension(filepath.Ext(e.Name())),
			Size:        info.Size(),
			CreatedAt:   info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileMediaStore) listIndex(ctx context.Context) ([]domain.MediaObject, error) {
	rows, err := s.db.query(ctx, `SELECT name, url, content_type, size, created_at FROM media ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	var out []domain.MediaObject
	for rows.Next() {
		var m domain.MediaObject
		if err := rows.Scan(&m.Name, &m.URL, &m.ContentType, &m.Size, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("list media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidMediaName, name)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// readerWithContext stops a copy once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
