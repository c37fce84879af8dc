package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/datachat/internal/dataset"
)

// maxXMLPart caps how much of one workbook part is inflated.
const maxXMLPart = 256 << 20

type xlsxDecoder struct{}

func (xlsxDecoder) CanDecode(filename string) bool {
	return hasExt(filename, ".xlsx")
}

func (xlsxDecoder) Decode(filename string, data []byte) (*dataset.Table, error) {
	return ReadXLSX(data, filepath.Base(filename), "", 1)
}

// workbook parts, decoded with encoding/xml struct tags. Attributes without
// a namespace in the tag match any namespace, which covers r:id.
type (
	xlWorkbook struct {
		Sheets []xlSheet `xml:"sheets>sheet"`
	}
	xlSheet struct {
		Name string `xml:"name,attr"`
		ID   int    `xml:"sheetId,attr"`
		RID  string `xml:"id,attr"`
	}
	xlRels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	xlText struct {
		T    string `xml:"t"`
		Runs []struct {
			T string `xml:"t"`
		} `xml:"r"`
	}
	xlSST struct {
		Items []xlText `xml:"si"`
	}
	xlRow struct {
		Cells []xlCell `xml:"c"`
	}
	xlCell struct {
		Ref    string `xml:"r,attr"`
		Type   string `xml:"t,attr"`
		Value  string `xml:"v"`
		Inline xlText `xml:"is"`
	}
)

func (t xlText) String() string {
	if len(t.Runs) == 0 {
		return t.T
	}
	var b strings.Builder
	b.WriteString(t.T)
	for _, r := range t.Runs {
		b.WriteString(r.T)
	}
	return b.String()
}

// xlsxFile is an opened workbook archive.
type xlsxFile struct {
	zr     *zip.Reader
	shared []string
}

// ReadXLSX decodes one worksheet of an .xlsx workbook. The first row is the
// header. If sheetName is empty the sheet is picked by 1-based sheetIndex.
func ReadXLSX(data []byte, name, sheetName string, sheetIndex int) (*dataset.Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	f := &xlsxFile{zr: zr}

	var wb xlWorkbook
	if err := f.decodePart("xl/workbook.xml", &wb); err != nil {
		return nil, err
	}
	var rels xlRels
	if err := f.decodePart("xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, err
	}
	var sst xlSST
	if err := f.decodePart("xl/sharedStrings.xml", &sst); err != nil {
		return nil, err
	}
	for _, si := range sst.Items {
		f.shared = append(f.shared, si.String())
	}

	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		targets[r.ID] = normalizeRelPath(r.Target)
	}
	part, err := pickSheet(wb.Sheets, targets, sheetName, sheetIndex)
	if err != nil {
		return nil, err
	}
	return f.readSheet(part, name)
}

// pickSheet resolves the worksheet part. A name must match; an index tries
// declaration order, then sheetId, then the conventional part name.
func pickSheet(sheets []xlSheet, targets map[string]string, sheetName string, idx int) (string, error) {
	if sheetName != "" {
		names := make([]string, 0, len(sheets))
		for _, s := range sheets {
			if strings.EqualFold(s.Name, sheetName) && targets[s.RID] != "" {
				return targets[s.RID], nil
			}
			names = append(names, s.Name)
		}
		return "", fmt.Errorf("sheet %q not found; available sheets: %s", sheetName, strings.Join(names, ", "))
	}
	if idx <= 0 {
		idx = 1
	}
	if idx <= len(sheets) && targets[sheets[idx-1].RID] != "" {
		return targets[sheets[idx-1].RID], nil
	}
	for _, s := range sheets {
		if s.ID == idx && targets[s.RID] != "" {
			return targets[s.RID], nil
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), nil
}

func (f *xlsxFile) open(name string) (io.ReadCloser, error) {
	for _, zf := range f.zr.File {
		if zf.Name == name {
			rc, err := zf.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, nil
}

// decodePart unmarshals an optional part into v; a missing part leaves v
// zero.
func (f *xlsxFile) decodePart(name string, v any) error {
	rc, err := f.open(name)
	if err != nil || rc == nil {
		return err
	}
	defer rc.Close()
	if err := xml.NewDecoder(io.LimitReader(rc, maxXMLPart)).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// readSheet streams <row> elements so only one row is decoded at a time.
func (f *xlsxFile) readSheet(part, name string) (*dataset.Table, error) {
	rc, err := f.open(part)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, errors.New("workbook has no readable worksheet")
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxXMLPart))
	var header []string
	var rows [][]string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", part, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		var row xlRow
		if err := dec.DecodeElement(&row, &se); err != nil {
			return nil, fmt.Errorf("parse %s: %w", part, err)
		}
		rec := f.cells(row)
		switch {
		case header == nil:
			if len(rec) == 0 {
				return dataset.New(name, nil, nil), nil
			}
			header = rec
		case isBlank(rec):
		case len(rows) >= MaxRows:
			return nil, fmt.Errorf("sheet has more than %d rows", MaxRows)
		default:
			rows = append(rows, rec)
		}
	}
	if header == nil {
		return dataset.New(name, nil, nil), nil
	}
	return dataset.New(name, header, rows), nil
}

// cells places each cell at the column its reference names. Cells without
// a usable reference follow the previous one.
func (f *xlsxFile) cells(row xlRow) []string {
	var out []string
	for _, c := range row.Cells {
		col := len(out)
		if i := colIndexFromRef(c.Ref); i >= 0 {
			col = i
		}
		for len(out) <= col {
			out = append(out, "")
		}
		out[col] = f.cellValue(c)
	}
	return out
}

func (f *xlsxFile) cellValue(c xlCell) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(f.shared) {
			return ""
		}
		return f.shared[i]
	case "inlineStr":
		return c.Inline.String()
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	}
	return c.Value
}

// colIndexFromRef maps refs like "C12" to a 0-based column index, -1 when
// ref has no column letters.
func colIndexFromRef(ref string) int {
	idx := 0
	for _, r := range strings.ToUpper(ref) {
		if r < 'A' || r > 'Z' {
			break
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx - 1
}

// normalizeRelPath converts relationship targets to ZIP entry names, which
// never carry a leading slash and always use forward slashes.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
