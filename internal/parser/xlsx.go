package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/dataset"
)

type xlsxParser struct{}

func (xlsxParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

// Parse reads the selected sheet (the first one by default). The first
// row is the header; later rows become records with typed cells.
func (xlsxParser) Parse(content []byte, opt Options) ([]dataset.Record, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	sheets := parseWorkbook(readZipFile(zr, "xl/workbook.xml"))
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	target, err := resolveSheet(sheets, rels, opt)
	if err != nil {
		return nil, err
	}
	sheetXML := readZipFile(zr, target)
	if sheetXML == nil {
		return nil, fmt.Errorf("sheet part %s missing from workbook", target)
	}
	wb := &workbook{
		shared:    parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml")),
		dateStyle: parseDateStyles(readZipFile(zr, "xl/styles.xml")),
		date1904:  workbookUses1904(readZipFile(zr, "xl/workbook.xml")),
	}
	rr := newSheetRowReader(sheetXML, wb)
	header, ok := rr.Next()
	if !ok || len(header) == 0 {
		return []dataset.Record{}, nil
	}
	names := make([]string, len(header))
	for i, c := range header {
		names[i] = dataset.Stringify(c)
	}
	keys := headerKeys(names)
	out := []dataset.Record{}
	for {
		row, ok := rr.Next()
		if !ok {
			break
		}
		if opt.MaxRows > 0 && len(out) >= opt.MaxRows {
			break
		}
		vals := make([]any, len(keys))
		blank := true
		for j := range keys {
			if j < len(row) && row[j] != nil {
				vals[j] = row[j]
				blank = false
			}
		}
		if blank {
			continue
		}
		out = append(out, dataset.NewRecord(keys, vals))
	}
	return out, nil
}

func resolveSheet(sheets []wbSheet, rels map[string]string, opt Options) (string, error) {
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.Name, opt.SheetName) {
				if rel, ok := rels[s.RID]; ok {
					return normalizeRelPath(rel), nil
				}
			}
		}
		available := make([]string, len(sheets))
		for i, s := range sheets {
			available[i] = s.Name
		}
		return "", fmt.Errorf("sheet '%s' not found. Available sheets: %s", opt.SheetName, strings.Join(available, ", "))
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	// workbook order is the tab order; sheetId is not.
	if idx <= len(sheets) {
		if rel, ok := rels[sheets[idx-1].RID]; ok {
			return normalizeRelPath(rel), nil
		}
	}
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", idx)), nil
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) []wbSheet {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s wbSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RID = a.Value // r: namespace
			}
		}
		sheets = append(sheets, s)
	}
}

func workbookUses1904(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "workbookPr" {
			for _, a := range se.Attr {
				if a.Name.Local == "date1904" {
					return a.Value == "1" || strings.EqualFold(a.Value, "true")
				}
			}
			return false
		}
	}
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "si" {
				buf.Reset()
			}
			if se.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			if se.Name.Local == "t" {
				inT = false
			}
			if se.Name.Local == "si" {
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

// parseDateStyles returns, per cellXfs index, whether the number format
// renders a date. Built-in ids 14-22 and 45-47 are dates; custom formats
// count when their code has date tokens outside quotes and brackets.
func parseDateStyles(data []byte) []bool {
	if len(data) == 0 {
		return nil
	}
	custom := map[int]bool{}
	var out []bool
	inXfs := false
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "numFmt":
				var id int
				var code string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "numFmtId":
						id = atoiSafe(a.Value)
					case "formatCode":
						code = a.Value
					}
				}
				custom[id] = isDateFormatCode(code)
			case "cellXfs":
				inXfs = true
			case "xf":
				if !inXfs {
					continue
				}
				id := 0
				for _, a := range se.Attr {
					if a.Name.Local == "numFmtId" {
						id = atoiSafe(a.Value)
					}
				}
				isDate := (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
				if v, ok := custom[id]; ok {
					isDate = v
				}
				out = append(out, isDate)
			}
		case xml.EndElement:
			if se.Name.Local == "cellXfs" {
				inXfs = false
			}
		}
	}
}

func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		case r == 'd' || r == 'm' || r == 'y' || r == 'h' || r == 's':
			return true
		}
	}
	return false
}

type workbook struct {
	shared    []string
	dateStyle []bool
	date1904  bool
}

func (wb *workbook) isDateStyle(idx int) bool {
	return idx >= 0 && idx < len(wb.dateStyle) && wb.dateStyle[idx]
}

// serialTime converts a spreadsheet serial day number to UTC time.
func (wb *workbook) serialTime(serial float64) time.Time {
	epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	if wb.date1904 {
		epoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	ms := int64(serial*86400000 + 0.5)
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

type sheetRowReader struct {
	dec    *xml.Decoder
	wb     *workbook
	inRow  bool
	curRow []any
}

func newSheetRowReader(data []byte, wb *workbook) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), wb: wb}
}

// Next returns the next row's typed cells, indexed by column.
func (r *sheetRowReader) Next() ([]any, bool) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				r.inRow = true
				r.curRow = nil
			}
			if r.inRow && se.Name.Local == "c" {
				var rAttr, tAttr string
				style := -1
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						rAttr = a.Value
					case "t":
						tAttr = a.Value
					case "s":
						style = atoiSafe(a.Value)
					}
				}
				colIdx := len(r.curRow)
				if rAttr != "" {
					colIdx = colIndexFromRef(rAttr)
				}
				if colIdx < 0 {
					continue
				}
				val := r.readCellValue(tAttr, style)
				if len(r.curRow) <= colIdx {
					tmp := make([]any, colIdx+1)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.curRow[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				r.inRow = false
				return r.curRow, true
			}
		}
	}
}

// readCellValue consumes tokens up to </c> and converts the raw text
// according to the cell type attribute.
func (r *sheetRowReader) readCellValue(tAttr string, style int) any {
	var raw string
	var seen bool
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, er := r.dec.Token()
					if er != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				raw += sb.String()
				seen = true
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				if !seen {
					return nil
				}
				return r.typed(raw, tAttr, style)
			}
		}
	}
}

func (r *sheetRowReader) typed(raw, tAttr string, style int) any {
	switch tAttr {
	case "s":
		idx := atoiSafe(raw)
		if idx >= 0 && idx < len(r.wb.shared) {
			return emptyToNil(r.wb.shared[idx])
		}
		return nil
	case "str", "inlineStr":
		return emptyToNil(raw)
	case "b":
		return strings.TrimSpace(raw) == "1"
	case "e":
		return nil
	case "d":
		if t, ok := parseTimeMaybe(strings.TrimSpace(raw)); ok {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSpace(raw)); err == nil {
			return t
		}
		return emptyToNil(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return emptyToNil(raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if r.wb.isDateStyle(style) {
		return r.wb.serialTime(f)
	}
	return f
}

func emptyToNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// colIndexFromRef maps refs like "C12" to a 0-based column index.
func colIndexFromRef(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			i++
			continue
		}
		break
	}
	s := strings.ToUpper(ref[:i])
	idx := 0
	for j := 0; j < len(s); j++ {
		idx = idx*26 + int(s[j]-'A'+1)
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship Target paths to ZIP entry names.
// Targets may carry a leading slash; ZIP entries never do.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
