package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bibbank/origination/internal/domain/apperr"
)

// FileStore serves documents written by PDFRenderer. It implements
// port.DocumentStore.
type FileStore struct {
	dir string
}

// NewFileStore reads documents from dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Open returns the document's bytes. References outside the store's
// directory are rejected.
func (s *FileStore) Open(_ context.Context, ref string) ([]byte, error) {
	name, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || name == "" || name != filepath.Base(name) {
		return nil, apperr.Validationf("invalid document reference %q", ref)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFoundf("document %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", ref, err)
	}
	return b, nil
}
