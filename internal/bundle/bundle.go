// Package bundle builds the ZIP archives handed to users: issued identities and document signatures.
// Archives are assembled in memory; nothing is written to disk.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Names of entries in bundles
const (
	CertificateFile     = "certificate.pem"
	ChainFile           = "chain.pem"
	PrivateKeyFile      = "private_key.pem"
	PublicKeyFile       = "public_key.pem"
	RootCertFile        = "root.pem"
	RootKeyFile         = "root_key.pem"
	IntermediateFile    = "intermediate.pem"
	IntermediateKeyFile = "intermediate_key.pem"
	IssuerCertFile      = "issuer.pem"
)

// ErrEmptyBundle is returned when a bundle has no entries.
var ErrEmptyBundle = errors.New("bundle has no entries")

// File is a single archive entry.
type File struct {
	Name string
	Data []byte
	Mode os.FileMode // 0 means 0644
}

// Secret returns an entry readable only by its owner.
func Secret(name string, data []byte) File {
	return File{Name: name, Data: data, Mode: 0o600}
}

// Public returns a world-readable entry.
func Public(name string, data []byte) File {
	return File{Name: name, Data: data, Mode: 0o644}
}

// Build writes files into a ZIP archive at best compression.
func Build(modified time.Time, files ...File) ([]byte, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBundle
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}

		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: modified,
		}
		hdr.SetMode(mode)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish bundle: %w", err)
	}

	return buf.Bytes(), nil
}

// Read returns the entries of a ZIP archive keyed by name.
func Read(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		entries[f.Name] = b
	}

	return entries, nil
}
