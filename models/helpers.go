package models

import (
	"strconv"
	"strings"
)

// JoinList renders a rich list field for export and diffing.
func JoinList(items []string) string {
	return strings.Join(items, "; ")
}

// SplitList parses a list cell. Items are separated by semicolons, or by
// commas when the cell has no semicolon.
func SplitList(s string) []string {
	sep := ","
	if strings.Contains(s, ";") {
		sep = ";"
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
