package slicer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxBaseNameLen caps the sanitized base filename length (before the
// collision suffix and extension).
const maxBaseNameLen = 48

// MaxNameAttempts bounds the collision-suffix search so a pathological
// exists check or write conflict cannot loop forever.
const MaxNameAttempts = 10000

// filesystemUnsafe are the characters replaced with underscores in sample
// filenames.
const filesystemUnsafe = `/\:*?"<>|`

// uniqueFilename derives a sample filename from the alias content, sanitizes
// it, and appends _1, _2, … until exists reports the name free. Deterministic
// for a given alias and destination state; an existing file is never
// overwritten silently.
func uniqueFilename(ctx context.Context, alias string, exists ExistsFunc) (string, error) {
	for i := 0; i < MaxNameAttempts; i++ {
		candidate := CandidateFilename(alias, i)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free filename for alias %q after %d attempts", alias, MaxNameAttempts)
}

// CandidateFilename returns the attempt-th filename candidate for an alias:
// the sanitized base for attempt 0, then base_1.wav, base_2.wav and so on.
// Persistence uses it to rename past write conflicts that appear after the
// exists check, when concurrent takes claim the same name.
func CandidateFilename(alias string, attempt int) string {
	base := sanitizeBaseName(alias)
	if attempt == 0 {
		return base + ".wav"
	}
	return fmt.Sprintf("%s_%d.wav", base, attempt)
}

// sanitizeBaseName replaces filesystem-unsafe characters with underscores,
// collapses whitespace to underscores, and caps the length.
func sanitizeBaseName(alias string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(alias) {
		switch {
		case strings.ContainsRune(filesystemUnsafe, r), r < 0x20:
			b.WriteByte('_')
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	base := b.String()
	if base == "" {
		base = "sample"
	}
	if len(base) > maxBaseNameLen {
		cut := maxBaseNameLen
		for cut > 0 && !utf8.RuneStart(base[cut]) {
			cut--
		}
		base = base[:cut]
	}
	return base
}
