package clean

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var entityRefRe = regexp.MustCompile(`&(#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[a-zA-Z][a-zA-Z0-9]{1,9});`)

var namedEntities = map[string]string{
	"amp":    "&",
	"lt":     "<",
	"gt":     ">",
	"quot":   `"`,
	"apos":   "'",
	"nbsp":   " ",
	"mdash":  "\u2014",
	"ndash":  "\u2013",
	"rsquo":  "\u2019",
	"lsquo":  "\u2018",
	"rdquo":  "\u201D",
	"ldquo":  "\u201C",
	"hellip": "\u2026",
	"copy":   "\u00A9",
	"reg":    "\u00AE",
	"trade":  "\u2122",
	"bull":   "\u2022",
	"middot": "\u00B7",
	"laquo":  "\u00AB",
	"raquo":  "\u00BB",
	"deg":    "\u00B0",
	"times":  "\u00D7",
	"euro":   "\u20AC",
	"pound":  "\u00A3",
}

// DecodeEntities replaces named entities from a fixed table and all well-formed numeric
// references. Unknown names and invalid code points are left untouched.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return entityRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		body := ref[1 : len(ref)-1]
		if body[0] != '#' {
			if v, ok := namedEntities[body]; ok {
				return v
			}
			if v, ok := namedEntities[strings.ToLower(body)]; ok {
				return v
			}
			return ref
		}
		var (
			code int64
			err  error
		)
		if len(body) > 1 && (body[1] == 'x' || body[1] == 'X') {
			code, err = strconv.ParseInt(body[2:], 16, 32)
		} else {
			code, err = strconv.ParseInt(body[1:], 10, 32)
		}
		if err != nil || code <= 0 || !utf8.ValidRune(rune(code)) {
			return ref
		}
		return string(rune(code))
	})
}
