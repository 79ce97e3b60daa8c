package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

type Options struct {
	// Format overrides detection from Filename.
	Format   Format
	Filename string
	// Comma is the field delimiter for delimited text. Defaults to ',' (tab for .tsv).
	Comma rune
	// Sheet selects the XLSX worksheet. Defaults to the first sheet.
	Sheet string
}

var utf8BOM = []byte("\xef\xbb\xbf")

// Row is one data row keyed by canonical column name.
type Row struct {
	Index  int
	Line   int
	values map[string]string
}

// Get returns the trimmed value of a canonical column, or "" when absent.
func (r Row) Get(name string) string {
	return r.values[name]
}

// Values returns a copy of the row's cells.
func (r Row) Values() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func NewRow(index int, values map[string]string) Row {
	return Row{Index: index, Line: index + 1, values: values}
}

// Table is a parsed input whose rows can be iterated any number of times.
type Table struct {
	Header []string
	Format Format

	cols  map[int]string
	width int
	open  func() (recordReader, error)
}

type recordReader interface {
	next() (fields []string, line int, err error)
	close()
}

// Parse validates the header of data against schema and returns a Table whose
// rows are read lazily. Only a missing or incomplete header is fatal.
func Parse(data []byte, schema Schema, opts Options) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	format := detectFormat(opts)

	t := &Table{Format: format}
	switch format {
	case FormatXLSX:
		t.open = func() (recordReader, error) { return openXLSX(data, opts.Sheet) }
	default:
		comma := opts.Comma
		if comma == 0 {
			comma = ','
			if strings.EqualFold(filepath.Ext(opts.Filename), ".tsv") {
				comma = '\t'
			}
		}
		t.open = func() (recordReader, error) { return openCSV(data, comma), nil }
	}

	rd, err := t.open()
	if err != nil {
		return nil, err
	}
	defer rd.close()
	for {
		fields, _, err := rd.next()
		if err == io.EOF {
			return nil, &HeaderError{Missing: schema.Required}
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if isBlank(fields) {
			continue
		}
		t.Header = trimAll(fields)
		break
	}
	t.width = len(t.Header)
	t.cols, err = schema.resolve(t.Header)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Columns lists the canonical names present in the header, in header order.
func (t *Table) Columns() []string {
	out := make([]string, 0, len(t.cols))
	for i := 0; i < t.width; i++ {
		if name, ok := t.cols[i]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Has reports whether the header carries a canonical column.
func (t *Table) Has(name string) bool {
	for _, n := range t.cols {
		if n == name {
			return true
		}
	}
	return false
}

// Rows yields each data row in order. Malformed rows are yielded as
// *RowError values and iteration continues; any other error ends it.
func (t *Table) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rd, err := t.open()
		if err != nil {
			yield(Row{}, err)
			return
		}
		defer rd.close()

		headerSeen := false
		index := 0
		for {
			fields, line, err := rd.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if headerSeen && errors.As(err, &pe) {
					index++
					if !yield(Row{}, &RowError{Index: index, Line: line, Err: err}) {
						return
					}
					continue
				}
				yield(Row{}, err)
				return
			}
			if isBlank(fields) {
				continue
			}
			if !headerSeen {
				headerSeen = true
				continue
			}
			index++

			fields = t.fit(fields)
			if len(fields) != t.width {
				rowErr := &RowError{
					Index: index,
					Line:  line,
					Err:   fmt.Errorf("row has %d fields, header has %d", len(fields), t.width),
				}
				if !yield(Row{}, rowErr) {
					return
				}
				continue
			}

			values := make(map[string]string, len(t.cols))
			for i, name := range t.cols {
				values[name] = strings.TrimSpace(fields[i])
			}
			if !yield(Row{Index: index, Line: line, values: values}, nil) {
				return
			}
		}
	}
}

// Collect drains Rows into rows and per-row errors.
func (t *Table) Collect() ([]Row, []*RowError, error) {
	var (
		rows []Row
		errs []*RowError
	)
	for row, err := range t.Rows() {
		if err != nil {
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				errs = append(errs, rowErr)
				continue
			}
			return rows, errs, err
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

// fit pads XLSX rows whose trailing empty cells were omitted and drops empty
// trailing cells beyond the header.
func (t *Table) fit(fields []string) []string {
	if t.Format == FormatXLSX && len(fields) < t.width {
		padded := make([]string, t.width)
		copy(padded, fields)
		return padded
	}
	for len(fields) > t.width && strings.TrimSpace(fields[len(fields)-1]) == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

func detectFormat(opts Options) Format {
	if opts.Format != "" {
		return opts.Format
	}
	switch strings.ToLower(filepath.Ext(opts.Filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

type csvReader struct {
	r *csv.Reader
}

func openCSV(data []byte, comma rune) *csvReader {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	return &csvReader{r: r}
}

func (c *csvReader) next() ([]string, int, error) {
	rec, err := c.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.StartLine, err
		}
		return nil, 0, err
	}
	line, _ := c.r.FieldPos(0)
	return rec, line, nil
}

func (c *csvReader) close() {}

type xlsxReader struct {
	f    *excelize.File
	rows *excelize.Rows
	line int
}

func openXLSX(data []byte, sheet string) (*xlsxReader, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, errors.New("xlsx has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return &xlsxReader{f: f, rows: rows}, nil
}

func (x *xlsxReader) next() ([]string, int, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, x.line, err
		}
		return nil, x.line, io.EOF
	}
	x.line++
	cols, err := x.rows.Columns()
	if err != nil {
		return nil, x.line, err
	}
	return cols, x.line, nil
}

func (x *xlsxReader) close() {
	_ = x.rows.Close()
	_ = x.f.Close()
}
