package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// Column declares a canonical column name and the header labels accepted for it.
type Column struct {
	Name    string
	Aliases []string
}

// Schema tells the parser which headers to recognise. Each entry of Required
// is a group of canonical names of which at least one must be present.
type Schema struct {
	Columns  []Column
	Required [][]string
}

// HeaderError is returned when the header row lacks required columns. It is
// the only fatal parse error.
type HeaderError struct {
	Missing [][]string
	Header  []string
}

func (e *HeaderError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, group := range e.Missing {
		parts = append(parts, strings.Join(group, "|"))
	}
	return fmt.Sprintf("header is missing required columns: %s", strings.Join(parts, ", "))
}

// RowError reports a row that could not be parsed. Parsing continues past it.
type RowError struct {
	Index int
	Line  int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (line %d): %v", e.Index, e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func headerToken(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		if r == ' ' || r == '_' || r == '-' || r == '\uFEFF' {
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolve maps header positions to canonical column names. Unknown headers
// are kept under their own token so callers can still read them.
func (s Schema) resolve(header []string) (map[int]string, error) {
	lookup := map[string]string{}
	for _, c := range s.Columns {
		lookup[headerToken(c.Name)] = c.Name
		for _, a := range c.Aliases {
			lookup[headerToken(a)] = c.Name
		}
	}

	cols := make(map[int]string, len(header))
	present := map[string]bool{}
	for i, h := range header {
		tok := headerToken(h)
		if tok == "" {
			continue
		}
		name, ok := lookup[tok]
		if !ok {
			name = tok
		}
		if present[name] {
			continue
		}
		cols[i] = name
		present[name] = true
	}

	var missing [][]string
	for _, group := range s.Required {
		found := false
		for _, name := range group {
			if present[name] {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, group)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing, Header: header}
	}
	return cols, nil
}
