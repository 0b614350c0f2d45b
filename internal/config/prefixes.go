package config

import "strings"

// JSON returns the prefix extracted statement documents are written under.
// It is PDFUnlocked with its "pdf" segment replaced by "json".
func (p PrefixConfig) JSON() string {
	return swapSegment(p.PDFUnlocked, "pdf", "json")
}

// Parquet returns the prefix year-partitioned tables are written under.
func (p PrefixConfig) Parquet() string {
	return swapSegment(p.PDFUnlocked, "pdf", "parquet")
}

// swapSegment trims slashes from prefix and replaces its first path segment
// equal to from. Prefixes without such a segment are returned trimmed.
func swapSegment(prefix, from, to string) string {
	prefix = strings.Trim(prefix, "/")
	parts := strings.Split(prefix, "/")
	for i, p := range parts {
		if p == from {
			parts[i] = to
			return strings.Join(parts, "/")
		}
	}
	return prefix
}
