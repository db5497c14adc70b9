package geozone

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// MaxCodeLen is the longest accepted zone code, in characters.
const MaxCodeLen = 32

// Zone code errors.
var (
	ErrEmptyCode   = eris.New("geozone: empty zone code")
	ErrCodeTooLong = eris.New("geozone: zone code too long")
)

// NormalizeCode trims a raw zone code and left-pads short numeric codes with
// zeros to four digits, so "42" and "0042" name the same zone.
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", ErrEmptyCode
	}
	if utf8.RuneCountInString(code) > MaxCodeLen {
		return "", eris.Wrapf(ErrCodeTooLong, "geozone: code %q", code)
	}
	if len(code) < 4 && isDigits(code) {
		code = strings.Repeat("0", 4-len(code)) + code
	}
	return code, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
