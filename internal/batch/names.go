package batch

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// fileDateLayout is the date stamped into document and archive names.
const fileDateLayout = "2006-01-02"

// DocumentName is "{tenant} - {YYYY-MM-DD}.pdf" with characters that are
// unsafe in archive paths replaced.
func DocumentName(tenant string, t time.Time) string {
	return cleanName(tenant) + " - " + t.Format(fileDateLayout) + ".pdf"
}

// ArchiveName is the file name for a bulk archive created at t.
func ArchiveName(t time.Time) string {
	return "Reports_Bulk_" + t.Format(fileDateLayout) + ".zip"
}

func cleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return "Report"
	}
	return s
}

// nameSet hands out unique file names, suffixing repeats with " (2)", " (3)"...
type nameSet map[string]int

func (n nameSet) unique(name string) string {
	key := strings.ToLower(name)
	n[key]++
	if n[key] == 1 {
		return name
	}
	ext := ""
	if i := strings.LastIndex(name, "."); i > 0 {
		name, ext = name[:i], name[i:]
	}
	candidate := fmt.Sprintf("%s (%d)%s", name, n[key], ext)
	return n.unique(candidate)
}
