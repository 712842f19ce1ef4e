// Package discovery finds assistant transcript files under a set of
// watch roots and decodes the project-path each one belongs to (spec
// §6's "File system layout consumed").
package discovery

import "strings"

// EncodePath converts a source working-directory path into the
// directory-name encoding Claude Code uses for its `projects/`
// subdirectories: every "/" becomes "-", and every literal "-" already
// present in the path is doubled. Grounded in spirit on
// `internal/terminal/types.go`'s ToTmuxSessionName/ToDisplayName pair —
// a name-mangling encode with a matching inverse. The encoding is not
// injective where a literal "-" sits next to a "/": "/a/-b" and "/a-/b"
// both encode to "-a---b", so only one of them round-trips.
func EncodePath(path string) string {
	var b strings.Builder
	b.Grow(len(path) + 8)
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '-':
			b.WriteString("--")
		case '/':
			b.WriteByte('-')
		default:
			b.WriteByte(path[i])
		}
	}
	return b.String()
}

// DecodePath inverts EncodePath, reading dashes left to right: a pair
// of dashes is a literal dash, a single dash is a path separator. An
// odd run such as "---" therefore decodes as "-/" ("-a---b" yields
// "/a-/b", never "/a/-b").
func DecodePath(encoded string) string {
	var b strings.Builder
	b.Grow(len(encoded))
	for i := 0; i < len(encoded); {
		if encoded[i] == '-' {
			if i+1 < len(encoded) && encoded[i+1] == '-' {
				b.WriteByte('-')
				i += 2
				continue
			}
			b.WriteByte('/')
			i++
			continue
		}
		b.WriteByte(encoded[i])
		i++
	}
	return b.String()
}
