package device

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	idPrefix      = "mio-"
	idHexLength   = 8
)

// ValidateName checks a registry name. Surrounding space is ignored;
// the name must be non-empty, at most maxNameLength runes and free of
// control characters.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case utf8.RuneCountInString(name) > maxNameLength:
		return fmt.Errorf("%w: name is longer than %d characters", ErrInvalidName, maxNameLength)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: name contains control characters", ErrInvalidName)
	}
	return nil
}

// GenerateID returns a registry ID such as "mio-1a2b3c4d".
func GenerateID() string {
	id := uuid.New()
	return fmt.Sprintf("%s%x", idPrefix, id[:idHexLength/2])
}

// GenerateSlug lower-cases name for use as a file name. Spaces,
// underscores and hyphens become single hyphens; anything else outside
// [a-z0-9] is dropped.
//
//	"Living Room Lamp" -> "living-room-lamp"
func GenerateSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			dash = true
		}
	}
	return b.String()
}
