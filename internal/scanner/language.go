package scanner

import (
	"strings"
)

// phpExtensions lists the extensions treated as PHP units.
var phpExtensions = map[string]bool{
	".php":   true,
	".phtml": true,
	".inc":   true,
}

// IsPHP reports whether a file extension denotes PHP source.
// The comparison is case-insensitive.
func IsPHP(ext string) bool {
	return phpExtensions[strings.ToLower(ext)]
}
