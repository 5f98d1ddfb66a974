package document

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Reader supplies document bytes by reference.
type Reader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// FileReader reads documents from local disk, optionally under Root.
type FileReader struct {
	Root string
}

// Read returns the contents of the file at ref.
func (r FileReader) Read(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "document: read cancelled")
	}
	path := ref
	if r.Root != "" && !filepath.IsAbs(ref) {
		path = filepath.Join(r.Root, ref)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "document: read %s", path)
	}
	return data, nil
}
