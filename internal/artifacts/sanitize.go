package artifacts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxStemBytes = 255

var scopeSep = regexp.MustCompile(`(?:::)+`)

// windows device names that cannot be used as file stems
var reservedStems = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeName turns a fully qualified test name into a file stem.
// Runs of "::" become a single "_" and characters that are unsafe in file
// names on any platform are removed.
func SanitizeName(name string) string {
	s := scopeSep.ReplaceAllString(name, "_")
	s = norm.NFC.String(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		switch r {
		case '/', '\\', '<', '>', ':', '"', '|', '?', '*':
			return -1
		}
		return r
	}, s)

	s = strings.TrimRight(s, ". ")
	if len(s) > maxStemBytes {
		cut := maxStemBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}

	if s == "" || s == "." || s == ".." {
		return "_"
	}
	base := s
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if _, reserved := reservedStems[strings.ToUpper(base)]; reserved {
		return "_" + s
	}
	return s
}
