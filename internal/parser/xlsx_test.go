package parser

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"
)

// buildWorkbook writes a minimal two-sheet workbook. The "Data" sheet
// mixes shared strings, numbers, booleans, inline strings, an error cell
// and a date-styled serial.
func buildWorkbook(t *testing.T, relTargetPrefix string) []byte {
	t.Helper()
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Data" sheetId="2" r:id="rId2"/><sheet name="Ignore" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="` + relTargetPrefix + `worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="` + relTargetPrefix + `worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><si><t>region</t></si><si><t>sales</t></si><si><t>north</t></si><si><r><t>so</t></r><r><t>uth</t></r></si></sst>`,
		"xl/styles.xml": `<?xml version="1.0" encoding="UTF-8"?>
<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<numFmts count="1"><numFmt numFmtId="164" formatCode="yyyy\-mm\-dd"/></numFmts>
<cellStyleXfs count="1"><xf numFmtId="0"/></cellStyleXfs>
<cellXfs count="3"><xf numFmtId="0"/><xf numFmtId="164"/><xf numFmtId="14"/></cellXfs>
</styleSheet>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>skip</t></is></c></row>
<row r="2"><c r="A2"><v>1</v></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="inlineStr"><is><t>day</t></is></c><c r="D1" t="inlineStr"><is><t>open</t></is></c><c r="E1" t="inlineStr"><is><t>note</t></is></c></row>
<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>120.5</v></c><c r="C2" s="1"><v>45292</v></c><c r="D2" t="b"><v>1</v></c><c r="E2" t="e"><v>#DIV/0!</v></c></row>
<row r="3"><c r="A3" t="s"><v>3</v></c><c r="C3" s="2"><v>45293.5</v></c><c r="D3" t="b"><v>0</v></c><c r="E3" t="str"><v>late</v></c></row>
<row r="4"></row>
</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestXLSXFirstSheetTypedCells(t *testing.T) {
	data := buildWorkbook(t, "")
	recs, err := xlsxParser{}.Parse(data, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (blank row skipped), got %d", len(recs))
	}
	keys := recs[0].Keys()
	if len(keys) != 5 || keys[0] != "region" || keys[1] != "sales" || keys[4] != "note" {
		t.Fatalf("unexpected header: %v", keys)
	}
	if recs[0].Value("region") != "north" || recs[1].Value("region") != "south" {
		t.Fatalf("shared strings: %v %v", recs[0].Value("region"), recs[1].Value("region"))
	}
	if recs[0].Value("sales") != 120.5 {
		t.Fatalf("sales: %v", recs[0].Value("sales"))
	}
	if recs[1].Value("sales") != nil {
		t.Fatalf("absent cell should be nil, got %v", recs[1].Value("sales"))
	}
	day, ok := recs[0].Value("day").(time.Time)
	if !ok || !day.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("custom date format: %v", recs[0].Value("day"))
	}
	day2, ok := recs[1].Value("day").(time.Time)
	if !ok || !day2.Equal(time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("builtin date format: %v", recs[1].Value("day"))
	}
	if recs[0].Value("open") != true || recs[1].Value("open") != false {
		t.Fatalf("booleans: %v %v", recs[0].Value("open"), recs[1].Value("open"))
	}
	if recs[0].Value("note") != nil || recs[1].Value("note") != "late" {
		t.Fatalf("note: %v %v", recs[0].Value("note"), recs[1].Value("note"))
	}
}

func TestXLSXSheetSelection(t *testing.T) {
	data := buildWorkbook(t, "/xl/")
	recs, err := xlsxParser{}.Parse(data, Options{SheetName: "ignore"})
	if err != nil {
		t.Fatalf("parse by name: %v", err)
	}
	if len(recs) != 1 || recs[0].Value("skip") != 1.0 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	recs, err = xlsxParser{}.Parse(data, Options{SheetIndex: 2})
	if err != nil || len(recs) != 1 {
		t.Fatalf("parse by index: %v %+v", err, recs)
	}
	if _, err := (xlsxParser{}).Parse(data, Options{SheetName: "Missing"}); err == nil {
		t.Fatalf("expected error for unknown sheet")
	}
}

func TestNormalizeRelPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"xl/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"/worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"worksheets/sheet1.xml", "xl/worksheets/sheet1.xml"},
		{"styles.xml", "xl/styles.xml"},
	}
	for _, tt := range tests {
		if got := normalizeRelPath(tt.input); got != tt.expected {
			t.Errorf("normalizeRelPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsDateFormatCode(t *testing.T) {
	cases := map[string]bool{
		"yyyy-mm-dd":        true,
		`0.00 "days"`:       false,
		"[Red]0.00":         false,
		"#,##0":             false,
		"h:mm AM/PM":        true,
		"General":           false,
		`[$-409]d-mmm-yy;@`: true,
	}
	for code, want := range cases {
		if got := isDateFormatCode(code); got != want {
			t.Errorf("isDateFormatCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestXLSXNonFiniteNumbersAreMissing(t *testing.T) {
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Scores" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="inlineStr"><is><t>name</t></is></c><c r="B1" t="inlineStr"><is><t>score</t></is></c></row>
<row r="2"><c r="A2" t="inlineStr"><is><t>a</t></is></c><c r="B2"><v>1.5</v></c></row>
<row r="3"><c r="A3" t="inlineStr"><is><t>b</t></is></c><c r="B3"><v>NaN</v></c></row>
<row r="4"><c r="A4" t="inlineStr"><is><t>c</t></is></c><c r="B4"><v>-Inf</v></c></row>
</sheetData></worksheet>`,
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	recs, err := xlsxParser{}.Parse(buf.Bytes(), Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Value("score") != 1.5 {
		t.Fatalf("finite score: %v", recs[0].Value("score"))
	}
	for _, r := range recs[1:] {
		if v := r.Value("score"); v != nil {
			t.Fatalf("non-finite score should be missing, got %v", v)
		}
	}
}
