package objectstore

import (
	"fmt"
	"path"
	"strings"
)

const consoleMarker = "console.cloud.google.com/storage/browser/"

// NormalizeLocation turns the ways people paste a bucket location into the
// canonical gs://bucket/prefix form without a trailing slash. Accepted
// inputs are gs:// URIs, Cloud Console browser URLs (optionally with a
// stray gs:// in front) and bare bucket/prefix strings.
func NormalizeLocation(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "gs://https://") {
		s = strings.TrimPrefix(s, "gs://")
	}

	if i := strings.Index(s, consoleMarker); i >= 0 {
		for _, sep := range []string{";", "?", "#"} {
			s, _, _ = strings.Cut(s, sep)
		}
		rest := strings.TrimLeft(s[i+len(consoleMarker):], "/")
		bucket, prefix, _ := strings.Cut(rest, "/")
		return strings.TrimRight("gs://"+bucket+"/"+prefix, "/"), nil
	}

	if strings.HasPrefix(s, "gs://") {
		return strings.TrimRight(s, "/"), nil
	}

	if s != "" && !strings.Contains(s, "://") {
		bucket, prefix, found := strings.Cut(s, "/")
		if !found {
			return "gs://" + bucket, nil
		}
		return strings.TrimRight("gs://"+bucket+"/"+prefix, "/"), nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
}

// SplitURI splits scheme://bucket/key into bucket and key. The key may be
// empty.
func SplitURI(uri string) (bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" || rest == "" {
		return "", "", fmt.Errorf("%w: not a bucket URI: %q", ErrInvalidLocation, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: no bucket in %q", ErrInvalidLocation, uri)
	}
	return bucket, key, nil
}

// BaseName returns the last path element of a key or URI.
func BaseName(uriOrKey string) string {
	if _, rest, ok := strings.Cut(uriOrKey, "://"); ok {
		_, key, _ := strings.Cut(rest, "/")
		uriOrKey = key
	}
	return path.Base(uriOrKey)
}
