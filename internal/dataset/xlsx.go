package dataset

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadXLSXFile loads one worksheet of a workbook. The first non-empty row
// is the header. Sheet selection follows opt.SheetName, then the 1-based
// opt.SheetIndex, then the first sheet.
func ReadXLSXFile(file string, opt Options) (*Table, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()

	var wb workbook
	if err := decodeZipXML(&zr.Reader, "xl/workbook.xml", &wb); err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	var rels relationships
	if err := decodeZipXML(&zr.Reader, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, fmt.Errorf("read workbook relationships: %w", err)
	}
	target, err := resolveSheet(wb, rels, opt)
	if err != nil {
		return nil, fmt.Errorf("%w in workbook '%s'", err, filepath.Base(file))
	}
	shared, err := readSharedStrings(&zr.Reader)
	if err != nil {
		return nil, fmt.Errorf("read shared strings: %w", err)
	}
	f := findZipFile(&zr.Reader, target)
	if f == nil {
		return nil, fmt.Errorf("worksheet %s missing from workbook '%s'", target, filepath.Base(file))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open worksheet: %w", err)
	}
	defer rc.Close()

	tbl := &Table{Name: filepath.Base(file)}
	rr := &sheetRows{dec: xml.NewDecoder(rc), shared: shared}
	for {
		cells, ok, err := rr.next()
		if err != nil {
			return nil, fmt.Errorf("read worksheet: %w", err)
		}
		if !ok {
			break
		}
		if tbl.Columns == nil {
			if blank(cells) {
				continue
			}
			tbl.Columns = normalizeHeader(cells)
			continue
		}
		row := buildRow(tbl.Columns, cells, opt)
		if row.Empty() {
			continue
		}
		tbl.Rows = append(tbl.Rows, row)
		if opt.MaxRows > 0 && len(tbl.Rows) >= opt.MaxRows {
			break
		}
	}
	return tbl, nil
}

type workbook struct {
	Sheets []struct {
		Name    string `xml:"name,attr"`
		SheetID int    `xml:"sheetId,attr"`
		RID     string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func (r relationships) target(id string) string {
	for _, it := range r.Items {
		if it.ID == id {
			return it.Target
		}
	}
	return ""
}

func resolveSheet(wb workbook, rels relationships, opt Options) (string, error) {
	if opt.SheetName != "" {
		names := make([]string, 0, len(wb.Sheets))
		for _, s := range wb.Sheets {
			if strings.EqualFold(s.Name, opt.SheetName) {
				if t := rels.target(s.RID); t != "" {
					return normalizeRelPath(t), nil
				}
			}
			names = append(names, s.Name)
		}
		return "", fmt.Errorf("sheet '%s' not found (available: %s)", opt.SheetName, strings.Join(names, ", "))
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	for _, s := range wb.Sheets {
		if s.SheetID == idx {
			if t := rels.target(s.RID); t != "" {
				return normalizeRelPath(t), nil
			}
		}
	}
	if idx <= len(wb.Sheets) {
		if t := rels.target(wb.Sheets[idx-1].RID); t != "" {
			return normalizeRelPath(t), nil
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), nil
}

// normalizeRelPath turns a relationship Target into a ZIP entry name.
// Targets may be absolute ("/xl/worksheets/sheet1.xml") or relative to xl/.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// decodeZipXML unmarshals an entry; a missing entry leaves v untouched.
func decodeZipXML(zr *zip.Reader, name string, v any) error {
	f := findZipFile(zr, name)
	if f == nil {
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	f := findZipFile(zr, "xl/sharedStrings.xml")
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var out []string
	var sb strings.Builder
	inT := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				sb.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, sb.String())
			}
		case xml.CharData:
			if inT {
				sb.Write(t)
			}
		}
	}
}

// sheetRows streams <row> elements of a worksheet as positional cells.
type sheetRows struct {
	dec    *xml.Decoder
	shared []string
}

func (r *sheetRows) next() ([]string, bool, error) {
	var cells []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "row":
				inRow = true
				cells = cells[:0]
			case inRow && t.Name.Local == "c":
				var ref, typ string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				val, err := r.cellValue(typ)
				if err != nil {
					return nil, false, err
				}
				col := len(cells)
				if ref != "" {
					if c := colIndexFromRef(ref); c >= 0 {
						col = c
					}
				}
				for len(cells) <= col {
					cells = append(cells, "")
				}
				cells[col] = val
			}
		case xml.EndElement:
			if t.Name.Local == "row" {
				return cells, true, nil
			}
		}
	}
}

// cellValue consumes tokens up to </c> and returns the text of <v> or
// inline <is><t>, resolving shared-string indices.
func (r *sheetRows) cellValue(typ string) (string, error) {
	var sb strings.Builder
	capture := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "v" || t.Name.Local == "t" {
				capture = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				capture = false
			case "c":
				val := sb.String()
				if typ == "s" {
					i, err := strconv.Atoi(strings.TrimSpace(val))
					if err != nil || i < 0 || i >= len(r.shared) {
						return "", nil
					}
					return r.shared[i], nil
				}
				return val, nil
			}
		case xml.CharData:
			if capture {
				sb.Write(t)
			}
		}
	}
}

// colIndexFromRef maps "C12" to 2.
func colIndexFromRef(ref string) int {
	idx := 0
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case c >= 'A' && c <= 'Z':
			idx = idx*26 + int(c-'A'+1)
		case c >= 'a' && c <= 'z':
			idx = idx*26 + int(c-'a'+1)
		default:
			return idx - 1
		}
	}
	return idx - 1
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
