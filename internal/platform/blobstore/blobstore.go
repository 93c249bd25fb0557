// Package blobstore stores the binary payload of uploaded medical files,
// keyed by a generated name. Metadata lives in the database; this package
// only moves bytes.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrExists      = errors.New("blob already exists")
	ErrInvalidName = errors.New("invalid blob name")
)

// Store is a flat namespace of blobs.
type Store interface {
	// Put writes r under name. It fails with ErrExists rather than
	// overwrite, and with ErrTooLarge (leaving nothing behind) when r
	// yields more than maxBytes.
	Put(ctx context.Context, name string, r io.Reader, maxBytes int64) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes name. Deleting a missing blob returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}

// SanitizeName reduces a client-supplied filename to a safe base name:
// directory components are dropped, ASCII letters, digits, '.', '-' and
// '_' are kept and everything else becomes '_'. Leading dots and
// underscores are trimmed so the result is never hidden or empty-looking.
// It returns "" when nothing usable remains.
func SanitizeName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), "._")
	out = strings.TrimRight(out, ".")
	if len(out) > 150 {
		out = out[len(out)-150:]
	}
	return out
}

func validName(name string) bool {
	return name != "" && name == SanitizeName(name)
}
