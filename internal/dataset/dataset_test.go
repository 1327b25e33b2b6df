package dataset

import (
	"archive/zip"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
		str  string
	}{
		{"", Missing, ""},
		{"   ", Missing, ""},
		{"42", Number, "42"},
		{" 7.5 ", Number, "7.5"},
		{"-3e2", Number, "-300"},
		{"Normal Weight", Text, "Normal Weight"},
		{"0x10", Text, "0x10"},
		{"NaN", Text, "NaN"},
		{"Inf", Text, "Inf"},
		{"120/80", Text, "120/80"},
	}
	for _, tt := range tests {
		v := Coerce(tt.raw, Options{})
		assert.Equal(t, tt.kind, v.Kind(), "raw %q", tt.raw)
		assert.Equal(t, tt.str, v.String(), "raw %q", tt.raw)
	}
}

func TestCoerceLocale(t *testing.T) {
	v := Coerce("1.234,5", Options{DecimalSeparator: ',', ThousandsSeparator: '.'})
	f, ok := v.Finite()
	require.True(t, ok)
	assert.InDelta(t, 1234.5, f, 1e-12)
}

func TestValueFloat(t *testing.T) {
	f, ok := Str(" 12 ").Float()
	require.True(t, ok)
	assert.Equal(t, 12.0, f)

	_, ok = Str("abc").Float()
	assert.False(t, ok)
	_, ok = Null().Float()
	assert.False(t, ok)
	_, ok = Num(math.NaN()).Float()
	assert.False(t, ok)
	_, ok = Num(math.Inf(1)).Finite()
	assert.False(t, ok)
}

func TestRowGetAndEmpty(t *testing.T) {
	r := Row{"a": Num(1), "b": Str("")}
	assert.Equal(t, Missing, r.Get("zzz").Kind())
	assert.False(t, r.Empty())
	assert.True(t, Row{"a": Null(), "b": Str("")}.Empty())
	var nilRow Row
	assert.True(t, nilRow.Get("a").IsMissing())
}

func TestReadCSV(t *testing.T) {
	src := strings.Join([]string{
		"Person ID,Gender,Age,Sleep Duration,BMI Category,Sleep Disorder",
		"1,Male,27,6.1,Overweight,",
		",,,,,",
		"2,Male,28,6.2,Normal,Insomnia",
		"",
		"3,Female",
	}, "\n")
	tbl, err := ReadCSV(strings.NewReader(src), "sleep.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Person ID", "Gender", "Age", "Sleep Duration", "BMI Category", "Sleep Disorder"}, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, Number, tbl.Rows[0].Get("Age").Kind())
	assert.Equal(t, Text, tbl.Rows[0].Get("Gender").Kind())
	assert.True(t, tbl.Rows[0].Get("Sleep Disorder").IsMissing())
	assert.Equal(t, "Insomnia", tbl.Rows[1].Get("Sleep Disorder").String())
	assert.True(t, tbl.Rows[2].Get("Age").IsMissing())
}

func TestReadCSVHeaderOnlyAndEmpty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""), "empty.csv", Options{})
	require.NoError(t, err)
	assert.Empty(t, tbl.Columns)
	assert.Equal(t, 0, tbl.Len())

	tbl, err = ReadCSV(strings.NewReader("a,,a\n"), "h.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "column_2", "a_1"}, tbl.Columns)
}

func TestReadCSVMaxRowsAndTSV(t *testing.T) {
	src := "x\ty\n1\ta\n2\tb\n3\tc\n"
	tbl, err := ReadCSV(strings.NewReader(src), "data.tsv", Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
}

func TestLoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/sleep.csv" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("a,t\n1,yes\n2,no\n"))
	}))
	defer srv.Close()

	tbl, err := Load(context.Background(), srv.URL+"/data/sleep.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "sleep.csv", tbl.Name)
	assert.Equal(t, 2, tbl.Len())

	_, err = Load(context.Background(), srv.URL+"/missing.csv", DefaultOptions())
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Contains(t, he.Status, "404")
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "model.bin"), DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupported)
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
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeRelPath(tt.input))
	}
	assert.Equal(t, 0, colIndexFromRef("A1"))
	assert.Equal(t, 27, colIndexFromRef("AB7"))
}

func writeXLSX(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Notes" sheetId="1" r:id="rId1"/><sheet name="Data" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Target="worksheets/sheet1.xml"/><Relationship Id="rId2" Target="/xl/worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><si><t>Age</t></si><si><t>Disorder</t></si><si><t>None</t></si><si><t>Apnea</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>note</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>
<row r="2"><c r="A2"><v>31</v></c><c r="B2" t="s"><v>2</v></c></row>
<row r="3"></row>
<row r="4"><c r="B4" t="s"><v>3</v></c></row>
</sheetData></worksheet>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestReadXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleep.xlsx")
	writeXLSX(t, path)

	tbl, err := Load(context.Background(), path, Options{SheetName: "data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "Disorder"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	age, ok := tbl.Rows[0].Get("Age").Finite()
	require.True(t, ok)
	assert.Equal(t, 31.0, age)
	assert.Equal(t, "None", tbl.Rows[0].Get("Disorder").String())
	assert.True(t, tbl.Rows[1].Get("Age").IsMissing())
	assert.Equal(t, "Apnea", tbl.Rows[1].Get("Disorder").String())

	tbl, err = ReadXLSXFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, tbl.Columns)

	_, err = ReadXLSXFile(path, Options{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: Notes, Data")
}
