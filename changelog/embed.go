package changelog

import _ "embed"

//go:embed changelog.json
var embeddedChangelog []byte

// Embedded returns the changelog document compiled into the binary.
func Embedded() []byte {
	return embeddedChangelog
}
