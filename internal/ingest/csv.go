package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// MaxRows caps how many data rows a decoder keeps.
const MaxRows = 1_000_000

type csvDecoder struct{}

func (csvDecoder) CanDecode(filename string) bool {
	return hasExt(filename, ".csv", ".tsv")
}

func (csvDecoder) Decode(filename string, data []byte) (*dataset.Table, error) {
	return ReadCSV(bytes.NewReader(data), filepath.Base(filename), sniffDelimiter(filename, data))
}

// ReadCSV reads a header row followed by data rows. Ragged rows are
// tolerated and normalized to the header width.
func ReadCSV(r io.Reader, name string, delim rune) (*dataset.Table, error) {
	br := bufio.NewReader(r)
	// Drop a UTF-8 BOM so the first column name stays clean.
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return dataset.New(name, nil, nil), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		if isBlank(rec) {
			continue
		}
		if len(rows) >= MaxRows {
			return nil, fmt.Errorf("file has more than %d rows", MaxRows)
		}
		rows = append(rows, rec)
	}
	return dataset.New(name, header, rows), nil
}

// sniffDelimiter prefers tab for .tsv, otherwise picks the most frequent of
// ',', ';' and tab on the first line.
func sniffDelimiter(filename string, data []byte) rune {
	if hasExt(filename, ".tsv") {
		return '\t'
	}
	first := string(data)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, bestN := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(first, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
