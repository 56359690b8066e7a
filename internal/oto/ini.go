package oto

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// The oto.ini line grammar is fixed by the UTAU ecosystem:
//
//	filename=alias,offset,consonant,cutoff,preutterance,overlap
//
// Numeric fields are rendered as integers when they have no fractional part,
// otherwise as decimals. An empty alias on read defaults to the filename
// without its extension.

// ParseIni parses an oto.ini body into entries. Blank lines are skipped.
// Returns an error naming the first malformed line.
func ParseIni(data []byte) ([]Entry, error) {
	var entries []Entry

	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimRight(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parseIniLine(line)
		if err != nil {
			return nil, fmt.Errorf("oto: line %d: %w", i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseIniLine parses a single oto.ini line.
func parseIniLine(line string) (Entry, error) {
	filename, rest, ok := strings.Cut(line, "=")
	if !ok {
		return Entry{}, fmt.Errorf("missing %q separator", "=")
	}

	fields := strings.Split(rest, ",")
	if len(fields) != 6 {
		return Entry{}, fmt.Errorf("expected alias plus 5 numeric fields, got %d fields", len(fields))
	}

	alias := fields[0]
	if alias == "" {
		alias = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	nums := make([]float64, 5)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Entry{}, fmt.Errorf("numeric field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	return Entry{
		Filename: filename,
		Alias:    alias,
		Params: Params{
			Offset:       nums[0],
			Consonant:    nums[1],
			Cutoff:       nums[2],
			Preutterance: nums[3],
			Overlap:      nums[4],
		},
	}, nil
}

// SerializeIni renders entries in oto.ini line grammar, one entry per line,
// with a trailing newline after the last entry. Serializing zero entries
// yields an empty byte slice.
func SerializeIni(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Filename)
		buf.WriteByte('=')
		buf.WriteString(e.Alias)
		for _, v := range []float64{
			e.Params.Offset,
			e.Params.Consonant,
			e.Params.Cutoff,
			e.Params.Preutterance,
			e.Params.Overlap,
		} {
			buf.WriteByte(',')
			buf.WriteString(formatNumber(v))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// formatNumber renders v as an integer when it has no fractional part,
// otherwise as the shortest decimal that round-trips.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
