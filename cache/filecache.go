package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultDir is where snapshots live when no directory is configured.
const DefaultDir = "data"

const tmpMarker = ".tmp-"

// swapped in tests to simulate a crash between write and commit
var rename = os.Rename

// FileCache implements the Store interface with one JSON file per snapshot
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates a file-based store in dir, creating the directory if
// needed. Temp files left behind by an interrupted write are removed.
func NewFileCache(dir string, opts ...Option) (*FileCache, error) {
	if dir == "" {
		dir = DefaultDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create snapshot dir", goerr.V("dir", dir))
	}

	o := buildOptions(opts)
	fc := &FileCache{dir: dir, now: o.now}
	if err := fc.removeTemps(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Dir returns the directory snapshots are written to.
func (fc *FileCache) Dir() string {
	return fc.dir
}

// Read implements Reader interface
func (fc *FileCache) Read(ctx context.Context, name string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fc.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, goerr.Wrap(err, "read snapshot", goerr.V("name", name))
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.WrittenAt.IsZero() {
		return nil, goerr.Wrap(ErrCorrupt, "decode snapshot", goerr.V("name", name))
	}
	return &entry, nil
}

// WrittenAt implements Stamper interface. It decodes the envelope up to the
// written_at field and leaves the body unread.
func (fc *FileCache) WrittenAt(ctx context.Context, name string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	f, err := os.Open(fc.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, goerr.Wrap(err, "open snapshot", goerr.V("name", name))
	}
	defer f.Close()

	corrupt := goerr.Wrap(ErrCorrupt, "decode snapshot header", goerr.V("name", name))
	dec := json.NewDecoder(f)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return time.Time{}, corrupt
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return time.Time{}, corrupt
		}
		if key, _ := tok.(string); key != "written_at" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return time.Time{}, corrupt
			}
			continue
		}
		var written time.Time
		if err := dec.Decode(&written); err != nil || written.IsZero() {
			return time.Time{}, corrupt
		}
		return written, nil
	}
	return time.Time{}, corrupt
}

// Save implements Writer interface
func (fc *FileCache) Save(ctx context.Context, name string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return goerr.New("snapshot name is empty")
	}

	// Serialize fully before touching the filesystem
	body, err := json.Marshal(value)
	if err != nil {
		return goerr.Wrap(err, "marshal snapshot", goerr.V("name", name))
	}
	entry := Entry{Name: name, WrittenAt: fc.now().UTC(), Body: body}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "marshal envelope", goerr.V("name", name))
	}

	return fc.writeAtomic(name, data)
}

// Delete implements Writer interface
func (fc *FileCache) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(fc.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "delete snapshot", goerr.V("name", name))
	}
	return nil
}

// writeAtomic writes to a temporary file first, then renames it over the
// snapshot.
func (fc *FileCache) writeAtomic(name string, data []byte) error {
	target := fc.path(name)

	tmp, err := os.CreateTemp(fc.dir, filepath.Base(target)+tmpMarker+"*")
	if err != nil {
		return goerr.Wrap(err, "create temp file", goerr.V("name", name))
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "write temp file", goerr.V("name", name))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return goerr.Wrap(err, "sync temp file", goerr.V("name", name))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "close temp file", goerr.V("name", name))
	}

	if err := rename(tmpPath, target); err != nil {
		return goerr.Wrap(err, "commit snapshot", goerr.V("name", name))
	}
	committed = true
	return nil
}

func (fc *FileCache) removeTemps() error {
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		return goerr.Wrap(err, "list snapshot dir", goerr.V("dir", fc.dir))
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), tmpMarker) {
			continue
		}
		if err := os.Remove(filepath.Join(fc.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return goerr.Wrap(err, "remove stale temp file", goerr.V("file", e.Name()))
		}
	}
	return nil
}

// path generates the full filesystem path for a snapshot name
func (fc *FileCache) path(name string) string {
	return filepath.Join(fc.dir, FileName(name))
}
