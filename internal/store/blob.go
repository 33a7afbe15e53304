package store

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	synerrors "github.com/synthesis-kb/synthesis/internal/errors"
)

var (
	idPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)
)

// BlobStore keeps original document files on disk, laid out as
// <root>/<collection-id>/<document-id><ext>. Identifiers are validated
// so no request can escape the root.
type BlobStore struct {
	root string
}

// NewBlobStore creates the root directory if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, synerrors.Internal("failed to resolve storage root", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, synerrors.Internal("failed to create storage root", err)
	}
	return &BlobStore{root: abs}, nil
}

// Root returns the absolute storage root.
func (b *BlobStore) Root() string {
	return b.root
}

// ValidateID reports whether s is a safe collection or document ID.
func ValidateID(s string) bool {
	return idPattern.MatchString(s)
}

// ValidateExt reports whether s is a safe file extension (".pdf", ".md").
// The empty extension is allowed.
func ValidateExt(s string) bool {
	return s == "" || extPattern.MatchString(s)
}

// resolve builds and checks the on-disk path for a document file.
func (b *BlobStore) resolve(collectionID, documentID, ext string) (string, error) {
	if !ValidateID(collectionID) {
		return "", synerrors.InvalidInputf("invalid collection id %q", collectionID).
			WithSuggestion("collection ids may contain letters, digits, underscore, and hyphen")
	}
	if !ValidateID(documentID) {
		return "", synerrors.InvalidInputf("invalid document id %q", documentID).
			WithSuggestion("document ids may contain letters, digits, underscore, and hyphen")
	}
	if !ValidateExt(ext) {
		return "", synerrors.InvalidInputf("invalid file extension %q", ext)
	}

	path := filepath.Join(b.root, collectionID, documentID+ext)

	// Even with validated inputs, refuse anything that resolves outside root
	rel, err := filepath.Rel(b.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", synerrors.InvalidInput("path escapes storage root")
	}

	return path, nil
}

// Path returns the on-disk location for a document file without
// touching the filesystem.
func (b *BlobStore) Path(collectionID, documentID, ext string) (string, error) {
	return b.resolve(collectionID, documentID, ext)
}

// Save streams r into the document's file, creating the collection
// directory if needed. Writes go to a temp file first and are renamed
// into place so a crash never leaves a partial file. Returns bytes written.
func (b *BlobStore) Save(collectionID, documentID, ext string, r io.Reader) (int64, error) {
	path, err := b.resolve(collectionID, documentID, ext)
	if err != nil {
		return 0, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, synerrors.Internal("failed to create collection directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+documentID+".tmp-*")
	if err != nil {
		return 0, synerrors.Internal("failed to create temp file", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, synerrors.Internal("failed to write document file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, synerrors.Internal("failed to sync document file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, synerrors.Internal("failed to close document file", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return 0, synerrors.Internal("failed to finalize document file", err)
	}

	return n, nil
}

// Open returns a reader over a document's stored bytes.
func (b *BlobStore) Open(collectionID, documentID, ext string) (io.ReadCloser, error) {
	path, err := b.resolve(collectionID, documentID, ext)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, synerrors.NotFound("document file", documentID)
	}
	if err != nil {
		return nil, synerrors.Internal("failed to open document file", err)
	}
	return f, nil
}

// ReadAll returns a document's stored bytes.
func (b *BlobStore) ReadAll(collectionID, documentID, ext string) ([]byte, error) {
	f, err := b.Open(collectionID, documentID, ext)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, synerrors.Internal("failed to read document file", err)
	}
	return data, nil
}

// Delete removes a document's file. Missing files are not an error so
// delete stays idempotent.
func (b *BlobStore) Delete(collectionID, documentID, ext string) error {
	path, err := b.resolve(collectionID, documentID, ext)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return synerrors.Internal("failed to delete document file", err)
	}
	return nil
}

// DeleteCollection removes a collection's directory and every file in it.
func (b *BlobStore) DeleteCollection(collectionID string) error {
	if !ValidateID(collectionID) {
		return synerrors.InvalidInputf("invalid collection id %q", collectionID)
	}

	dir := filepath.Join(b.root, collectionID)
	if err := os.RemoveAll(dir); err != nil {
		return synerrors.Internal("failed to delete collection directory", err)
	}
	return nil
}
