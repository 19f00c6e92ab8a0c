// Package noteid generates stable note identifiers of the form
// "module-XXXX": a module prefix, a dash, and four characters drawn from
// digits and upper-case letters (P excluded).
package noteid

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	suffixLen = 4
	alphabet  = "0123456789ABCDEFGHIJKLMNOQRSTUVWXYZ"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*-[` + alphabet + `]{4}$`)

// New returns a fresh identifier with the given prefix, normally the note's
// module name.
func New(prefix string) (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("noteid: %w", err)
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('-')
	for _, c := range buf {
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}
	return b.String(), nil
}

// Valid reports whether s has the generated identifier shape.
func Valid(s string) bool {
	return idPattern.MatchString(s)
}
