// Package ingest decodes uploaded files into dataset tables.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// Decoder turns raw upload bytes into a table.
type Decoder interface {
	CanDecode(filename string) bool
	Decode(filename string, data []byte) (*dataset.Table, error)
}

var registry []Decoder

// Register adds a decoder implementation to the registry.
func Register(d Decoder) {
	registry = append(registry, d)
}

// UnsupportedFileError is returned for uploads whose extension no decoder
// accepts. It is raised before any session is touched.
type UnsupportedFileError struct {
	Name string
}

func (e *UnsupportedFileError) Error() string {
	ext := filepath.Ext(e.Name)
	if ext == "" {
		return fmt.Sprintf("unsupported file %q: no extension", e.Name)
	}
	return fmt.Sprintf("unsupported file %q: %s is not a recognized tabular format", e.Name, ext)
}

// Supported reports whether some decoder accepts filename.
func Supported(filename string) bool {
	return pick(filename) != nil
}

// Decode selects a decoder by filename and decodes data.
func Decode(filename string, data []byte) (*dataset.Table, error) {
	d := pick(filename)
	if d == nil {
		return nil, &UnsupportedFileError{Name: filename}
	}
	t, err := d.Decode(filename, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(filename), err)
	}
	return t, nil
}

func pick(filename string) Decoder {
	for _, d := range registry {
		if d.CanDecode(filename) {
			return d
		}
	}
	return nil
}

func hasExt(filename string, exts ...string) bool {
	name := strings.ToLower(filename)
	for _, e := range exts {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

func init() {
	Register(csvDecoder{})
	Register(xlsxDecoder{})
}
