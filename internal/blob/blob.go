// Package blob stores customer attachments under a root afs URL
// (file:// in production, mem:// in tests).
package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Entry is one object below the storage root.
type Entry struct {
	Path     string    `json:"path"` // relative to the root
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	Dir      bool      `json:"dir"`
	Modified time.Time `json:"modified"`
}

// Store reads and writes attachment blobs.
type Store struct {
	fs   afs.Service
	root string
}

// Opts holds parameters for creating a Store.
type Opts struct {
	RootURL string
	FS      afs.Service // defaults to afs.New()
}

// New creates a Store rooted at opts.RootURL.
func New(opts Opts) (*Store, error) {
	root := strings.TrimRight(strings.TrimSpace(opts.RootURL), "/")
	if root == "" {
		return nil, fmt.Errorf("blob: root url is required")
	}
	// Plain paths are local directories.
	if !strings.Contains(root, "://") {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("blob: resolve %s: %w", root, err)
		}
		root = file.Scheme + "://" + filepath.ToSlash(abs)
	}
	fs := opts.FS
	if fs == nil {
		fs = afs.New()
	}
	return &Store{fs: fs, root: root}, nil
}

// Root returns the storage root URL.
func (s *Store) Root() string {
	return s.root
}

// URL returns the absolute URL of a relative path.
func (s *Store) URL(rel string) string {
	return url.Join(s.root, cleanRel(rel))
}

// Rel converts an absolute URL under the root back to a relative path.
func (s *Store) Rel(u string) string {
	return strings.TrimPrefix(strings.TrimPrefix(u, s.root), "/")
}

// Put writes data at rel and returns its URL.
func (s *Store) Put(ctx context.Context, rel string, data []byte) (string, error) {
	rel = cleanRel(rel)
	if rel == "" {
		return "", fmt.Errorf("blob: put: path is required")
	}
	dest := s.URL(rel)
	if err := s.fs.Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("blob: put %s: %w", rel, err)
	}
	return dest, nil
}

// Get reads the blob at rel.
func (s *Store) Get(ctx context.Context, rel string) ([]byte, error) {
	data, err := s.fs.DownloadWithURL(ctx, s.URL(rel))
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether rel is present.
func (s *Store) Exists(ctx context.Context, rel string) (bool, error) {
	ok, err := s.fs.Exists(ctx, s.URL(rel))
	if err != nil {
		return false, fmt.Errorf("blob: exists %s: %w", rel, err)
	}
	return ok, nil
}

// Move relocates a blob and returns its new URL.
func (s *Store) Move(ctx context.Context, fromRel, toRel string) (string, error) {
	dest := s.URL(toRel)
	if err := s.fs.Move(ctx, s.URL(fromRel), dest); err != nil {
		return "", fmt.Errorf("blob: move %s to %s: %w", fromRel, toRel, err)
	}
	return dest, nil
}

// Delete removes the blob or directory at rel.
func (s *Store) Delete(ctx context.Context, rel string) error {
	rel = cleanRel(rel)
	if rel == "" {
		return fmt.Errorf("blob: delete: refusing to delete the root")
	}
	if err := s.fs.Delete(ctx, s.URL(rel)); err != nil {
		return fmt.Errorf("blob: delete %s: %w", rel, err)
	}
	return nil
}

// Tree lists every object below prefix recursively, sorted by path.
// A missing prefix yields an empty tree.
func (s *Store) Tree(ctx context.Context, prefix string) ([]Entry, error) {
	base := s.URL(prefix)
	ok, err := s.fs.Exists(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("blob: tree %s: %w", prefix, err)
	}
	if !ok {
		return nil, nil
	}
	var out []Entry
	if err := s.walk(ctx, base, &out); err != nil {
		return nil, fmt.Errorf("blob: tree %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) walk(ctx context.Context, dirURL string, out *[]Entry) error {
	objects, err := s.fs.List(ctx, dirURL)
	if err != nil {
		return err
	}
	self := strings.TrimRight(dirURL, "/")
	for _, obj := range objects {
		u := strings.TrimRight(obj.URL(), "/")
		if u == self {
			continue
		}
		*out = append(*out, Entry{
			Path:     s.Rel(u),
			URL:      u,
			Size:     obj.Size(),
			Dir:      obj.IsDir(),
			Modified: obj.ModTime(),
		})
		if obj.IsDir() {
			if err := s.walk(ctx, u, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanRel normalizes a relative path and strips any attempt to climb
// above the root.
func cleanRel(rel string) string {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), "\\", "/")
	rel = path.Clean("/" + rel)
	return strings.TrimPrefix(rel, "/")
}

// SafeName reduces an uploaded file name to a storage-safe base name.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "archivo"
	}
	return out
}
