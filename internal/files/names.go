// Package files validates and names uploaded images.
package files

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"skinstudio/internal/domain"
)

// MaxUploadBytes is the default upload ceiling.
const MaxUploadBytes int64 = 10 << 20

const fallbackName = "image.jpg"

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

// AllowedExtension reports whether name carries an accepted image extension.
func AllowedExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	_, ok := allowedExtensions[ext]
	return ok
}

// Validate checks the client supplied name and size.
func Validate(name string, size, limit int64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: no selected file", domain.ErrValidation)
	}
	if !AllowedExtension(name) {
		return fmt.Errorf("%w: file type not allowed", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if size > limit {
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrTooLarge, limit)
	}
	return nil
}

// Sanitize reduces name to ASCII letters, digits, dot, dash and underscore.
// Accents are folded to their base letter and whitespace becomes underscore.
// The extension survives even when nothing of the stem does.
func Sanitize(name string) string {
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	rawExt := filepath.Ext(name)
	ext := clean(strings.TrimPrefix(rawExt, "."))
	if ext == "" {
		if out := clean(name); out != "" {
			return out
		}
		return fallbackName
	}
	stem := clean(strings.TrimSuffix(name, rawExt))
	if stem == "" {
		stem = "image"
	}
	return stem + "." + ext
}

func clean(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = strings.Join(strings.Fields(folded), "_")

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// Key builds the storage key for an upload from a sequence number.
func Key(seq int64, name string) string {
	return strconv.FormatInt(seq, 10) + "_" + Sanitize(name)
}
