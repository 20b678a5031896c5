// Package frame decodes the framed-ASCII sensor protocol. The device emits
// a JSON-ish blob with no terminator over a noisy link, so the parser has to
// survive dropped bytes, control-character garbage, and a firmware quirk
// that writes decimal points as slashes ("17/10" for 17.10). It is pure so
// it can be tested without hardware.
package frame

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// idWindow bounds how far past an id match we scan for its value. Values
// follow their id closely in the device's output; a generous window copes
// with byte loss in between.
const idWindow = 260

var (
	controlRE  = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	valueRE    = regexp.MustCompile(`(?i)"?value"?\s*[:=]\s*"?\s*([0-9]+(?:[./][0-9]+)?)\s*"?`)
	numberRE   = regexp.MustCompile(`[0-9]+(?:[./][0-9]+)?`)
	nonNumeric = regexp.MustCompile(`[^0-9.\-]`)
)

// Decode strips NUL and non-printable control bytes and returns trimmed
// text. Broken UTF-8 is kept as replacement runes rather than dropped.
func Decode(raw []byte) string {
	cleaned := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b != 0 {
			cleaned = append(cleaned, b)
		}
	}
	text := strings.ToValidUTF8(string(cleaned), "�")
	text = controlRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// NormalizeSlashDecimal rewrites "17/10" as "17.10". Anything that is not
// exactly two digit runs around one slash is returned unchanged.
func NormalizeSlashDecimal(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		return s
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return s
	}
	if !isDigits(parts[0]) || !isDigits(parts[1]) {
		return s
	}
	return parts[0] + "." + parts[1]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseFloat converts a possibly corrupted numeric token to a float.
// Returns nil when nothing numeric survives.
func ParseFloat(s string) *float64 {
	s = NormalizeSlashDecimal(s)
	s = strings.ReplaceAll(s, " ", "")
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// ExtractValue locates the value belonging to a numeric sensor id within
// decoded frame text. It first looks for an explicit value pair after the
// id; failing that, it takes the nearest following numeric token. Returns
// nil when the id or any usable value is absent — a missing channel is a
// normal partial result, not an error.
func ExtractValue(text string, id int) *float64 {
	idRE, err := regexp.Compile(`(?i)"?id"?\s*[:=]\s*"?` + regexp.QuoteMeta(strconv.Itoa(id)) + `"?(?:[^0-9]|$)`)
	if err != nil {
		return nil
	}
	loc := idRE.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	end := loc[0] + idWindow
	if end > len(text) {
		end = len(text)
	}
	window := text[loc[1]:end]

	if m := valueRE.FindStringSubmatch(window); m != nil {
		return ParseFloat(m[1])
	}
	if m := numberRE.FindString(window); m != "" {
		return ParseFloat(m)
	}
	return nil
}
