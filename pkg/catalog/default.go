package catalog

import (
	"strconv"
	"strings"
)

const (
	DefaultBaseURL = "https://rjl.codes/error/404/images/"
	DefaultSize    = 123
)

// Numbered returns {base}1.webp through {base}{size}.webp.
func Numbered(base string, size int) []string {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	ids := make([]string, 0, max(size, 0))
	for i := 1; i <= size; i++ {
		ids = append(ids, base+strconv.Itoa(i)+".webp")
	}
	return ids
}

// Default returns the numbered default catalog.
func Default() []string {
	return Numbered(DefaultBaseURL, DefaultSize)
}
