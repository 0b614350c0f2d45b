// Package datalake addresses tables in a layered data lake by dot-separated
// logical ids (layer.zone.domain.table) and reads and writes them through an
// object store.
package datalake

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrOutsideRoot is returned when a physical path does not lie under the
// addresser root.
var ErrOutsideRoot = errors.New("datalake: path outside lake root")

// ErrEmptySegment is returned for ids such as "bronze..bank" whose empty
// segment is followed by a non-empty one.
var ErrEmptySegment = errors.New("datalake: empty segment in id")

// DefaultLayers maps logical layers to their physical directories.
var DefaultLayers = map[string]string{
	"bronze":   "1-bronze",
	"silver":   "2-silver",
	"gold":     "3-gold",
	"platinum": "4-platinum",
}

// Ref is an unresolved lake reference. Build one with ByLogicalID or
// ByPhysicalPath; the caller states which form it holds.
type Ref struct {
	value    string
	physical bool
}

// ByLogicalID refers to a dot-separated id such as "bronze.cards.bank.statements".
func ByLogicalID(id string) Ref { return Ref{value: id} }

// ByPhysicalPath refers to a directory or file under the lake root.
func ByPhysicalPath(p string) Ref { return Ref{value: p, physical: true} }

func (r Ref) String() string { return r.value }

// FormatDotPath lower-cases s, turns dashes and spaces into underscores,
// drops everything but letters, digits, dots and underscores, and collapses
// repeated underscores.
func FormatDotPath(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' {
			return r
		}
		return -1
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// Addresser resolves references against a lake root. Root is either a local
// directory or a scheme://bucket/prefix URI.
type Addresser struct {
	Root   string
	Layers map[string]string
}

// NewAddresser returns an Addresser using DefaultLayers when layers is nil.
func NewAddresser(root string, layers map[string]string) Addresser {
	if layers == nil {
		layers = DefaultLayers
	}
	return Addresser{Root: root, Layers: layers}
}

// DotPath is a resolved lake address.
type DotPath struct {
	Layer  string
	Zone   string
	Domain string
	Table  string

	root   string
	layers map[string]string
}

// Resolve turns ref into a DotPath.
func (a Addresser) Resolve(ref Ref) (DotPath, error) {
	layers := a.Layers
	if layers == nil {
		layers = DefaultLayers
	}
	dp := DotPath{root: a.Root, layers: layers}

	if !ref.physical {
		parts := splitPadded(FormatDotPath(ref.value), ".")
		if err := checkSegments(parts); err != nil {
			return DotPath{}, fmt.Errorf("%w: %q", err, ref.value)
		}
		dp.Layer, dp.Zone, dp.Domain, dp.Table = parts[0], parts[1], parts[2], parts[3]
		return dp, nil
	}

	rel, err := a.relative(ref.value)
	if err != nil {
		return DotPath{}, err
	}
	parts := splitPadded(rel, "/")
	inverse := make(map[string]string, len(layers))
	for logical, physical := range layers {
		inverse[physical] = logical
	}
	if logical, ok := inverse[parts[0]]; ok {
		parts[0] = logical
	}
	for i := range parts {
		parts[i] = FormatDotPath(parts[i])
	}
	if err := checkSegments(parts); err != nil {
		return DotPath{}, fmt.Errorf("%w: %q", err, ref.value)
	}
	dp.Layer, dp.Zone, dp.Domain, dp.Table = parts[0], parts[1], parts[2], parts[3]
	return dp, nil
}

// relative returns p relative to the root with "/" separators.
func (a Addresser) relative(p string) (string, error) {
	if isURI(a.Root) || isURI(p) {
		root := strings.TrimRight(a.Root, "/")
		if p == root {
			return "", nil
		}
		if !strings.HasPrefix(p, root+"/") {
			return "", fmt.Errorf("%w: %s not under %s", ErrOutsideRoot, p, a.Root)
		}
		return strings.Trim(strings.TrimPrefix(p, root), "/"), nil
	}

	root, err := filepath.Abs(a.Root)
	if err != nil {
		return "", fmt.Errorf("datalake: resolve root %s: %w", a.Root, err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("datalake: resolve %s: %w", p, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s not under %s", ErrOutsideRoot, p, a.Root)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// splitPadded splits s and pads or truncates the result to four segments.
func splitPadded(s, sep string) []string {
	parts := make([]string, 4)
	if s == "" {
		return parts
	}
	for i, p := range strings.SplitN(s, sep, 5) {
		if i == 4 {
			break
		}
		parts[i] = p
	}
	return parts
}

// checkSegments allows empty segments only at the end.
func checkSegments(parts []string) error {
	if len(trimEmpty(parts)) != len(nonEmpty(parts)) {
		return ErrEmptySegment
	}
	return nil
}

func nonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isURI(s string) bool { return strings.Contains(s, "://") }

// String renders the logical id without trailing empty segments.
func (d DotPath) String() string {
	return strings.Join(trimEmpty([]string{d.Layer, d.Zone, d.Domain, d.Table}), ".")
}

// Segments returns the physical directory segments below the root.
func (d DotPath) Segments() []string {
	layer := d.Layer
	if physical, ok := d.layers[layer]; ok {
		layer = physical
	}
	return trimEmpty([]string{layer, d.Zone, d.Domain, d.Table})
}

// Path joins Segments onto the root.
func (d DotPath) Path() string {
	segs := d.Segments()
	if isURI(d.root) {
		root := strings.TrimRight(d.root, "/")
		if len(segs) == 0 {
			return root
		}
		return root + "/" + path.Join(segs...)
	}
	return filepath.Join(append([]string{d.root}, segs...)...)
}

// Equal reports whether both paths name the same id under the same root.
func (d DotPath) Equal(other DotPath) bool {
	return d.String() == other.String() && d.root == other.root
}

func trimEmpty(parts []string) []string {
	n := len(parts)
	for n > 0 && parts[n-1] == "" {
		n--
	}
	return parts[:n]
}
