package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FilesystemStore serves blobs from a directory tree. Blob names are
// slash-separated paths relative to the root.
type FilesystemStore struct {
	fsys fs.FS
}

// NewFilesystemStore serves blobs from the directory at root.
func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{fsys: os.DirFS(root)}
}

// NewFSStore serves blobs from an arbitrary fs.FS.
func NewFSStore(fsys fs.FS) *FilesystemStore {
	return &FilesystemStore{fsys: fsys}
}

// List walks the tree in lexical order and returns regular files whose name
// starts with prefix.
func (s *FilesystemStore) List(ctx context.Context, prefix string) ([]BlobRef, error) {
	var refs []BlobRef
	err := fs.WalkDir(s.fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		refs = append(refs, BlobRef{Name: name, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	return refs, nil
}

func (s *FilesystemStore) Download(_ context.Context, ref BlobRef) ([]byte, error) {
	if !fs.ValidPath(ref.Name) {
		return nil, fmt.Errorf("invalid blob name %q", ref.Name)
	}
	data, err := fs.ReadFile(s.fsys, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref.Name, err)
	}
	return data, nil
}
