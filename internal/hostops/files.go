package hostops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"dietpi-dashboard/internal/model"
)

const maxListEntries = 1000

// Files backs the file browser. Every path must resolve, symlinks
// included, to a location under root.
type Files struct {
	root  string
	limit int
}

func NewFiles(root string, limit int) *Files {
	root = filepath.Clean(root)
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	return &Files{root: root, limit: limit}
}

func (f *Files) List(ctx context.Context, path string) (model.DirListing, error) {
	if err := ctx.Err(); err != nil {
		return model.DirListing{}, fmt.Errorf("list %s: %w", path, model.ErrTimeout)
	}
	target, err := f.resolve(path)
	if err != nil {
		return model.DirListing{}, err
	}
	entries, err := os.ReadDir(target)
	if err != nil {
		return model.DirListing{}, fsError(path, err)
	}

	out := model.DirListing{Path: path, Entries: make([]model.FileEntry, 0, len(entries))}
	for _, e := range entries {
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		out.Entries = append(out.Entries, model.FileEntry{
			Name:    e.Name(),
			Dir:     e.IsDir(),
			Size:    info.Size(),
			Mode:    info.Mode().String(),
			ModTime: info.ModTime().UTC(),
		})
	}
	sortEntries(out.Entries)
	if len(out.Entries) > maxListEntries {
		out.Entries = out.Entries[:maxListEntries]
		out.Truncated = true
	}
	return out, nil
}

// Read returns a text file, cut at the output limit.
func (f *Files) Read(ctx context.Context, path string) (model.FileContent, error) {
	if err := ctx.Err(); err != nil {
		return model.FileContent{}, fmt.Errorf("read %s: %w", path, model.ErrTimeout)
	}
	target, err := f.resolve(path)
	if err != nil {
		return model.FileContent{}, err
	}
	file, err := os.Open(target)
	if err != nil {
		return model.FileContent{}, fsError(path, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return model.FileContent{}, fsError(path, err)
	}
	if info.IsDir() {
		return model.FileContent{}, fmt.Errorf("%s is a directory: %w", path, model.ErrCommandFailed)
	}
	data, err := io.ReadAll(io.LimitReader(file, int64(f.limit)+1))
	if err != nil {
		return model.FileContent{}, fsError(path, err)
	}
	out := model.FileContent{Path: path, Size: info.Size()}
	if len(data) > f.limit {
		data = data[:f.limit]
		out.Truncated = true
		// The cut may split a multi-byte rune.
		for i := 0; i < utf8.UTFMax && len(data) > 0 && !utf8.Valid(data); i++ {
			data = data[:len(data)-1]
		}
	}
	if !utf8.Valid(data) {
		return model.FileContent{}, fmt.Errorf("%s is not a text file: %w", path, model.ErrCommandFailed)
	}
	out.Content = string(data)
	return out, nil
}

// Write replaces the file content, creating it when missing. Existing files
// keep their mode.
func (f *Files) Write(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", path, model.ErrTimeout)
	}
	target, err := f.resolve(path)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fsError(path, err)
	}
	if _, err := file.WriteString(content); err != nil {
		_ = file.Close()
		return fsError(path, err)
	}
	if err := file.Close(); err != nil {
		return fsError(path, err)
	}
	return nil
}

func (f *Files) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, model.ErrTimeout)
	}
	target, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists: %w", path, model.ErrCommandFailed)
		}
		return fsError(path, err)
	}
	return nil
}

// resolve follows symlinks and checks the result stays under root. A
// missing final element is resolved through its parent directory.
func (f *Files) resolve(path string) (string, error) {
	target, err := filepath.EvalSymlinks(path)
	if errors.Is(err, fs.ErrNotExist) {
		dir, dirErr := filepath.EvalSymlinks(filepath.Dir(path))
		if dirErr != nil {
			return "", fsError(path, dirErr)
		}
		target, err = filepath.Join(dir, filepath.Base(path)), nil
	}
	if err != nil {
		return "", fsError(path, err)
	}
	if !within(f.root, target) {
		return "", fmt.Errorf("%s is outside %s: %w", path, f.root, model.ErrPermissionDenied)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// sortEntries puts directories first, then orders by name.
func sortEntries(entries []model.FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})
}

func fsError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, model.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, model.ErrPermissionDenied)
	}
	return fmt.Errorf("%s: %v: %w", path, err, model.ErrCommandFailed)
}
