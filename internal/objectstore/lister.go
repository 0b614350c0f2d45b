package objectstore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
)

// Opener hands out the Store for a bucket. *Provider implements it.
type Opener interface {
	Open(ctx context.Context, bucket string) (Store, error)
}

// ListOptions narrows ListByDate.
type ListOptions struct {
	// Extension is matched case-insensitively against the key suffix,
	// e.g. ".pdf".
	Extension string

	// Recursive descends into sub-prefixes.
	Recursive bool

	// LeadingStamp prefers a YYYYMMDD prefix of the file name over a date
	// found anywhere in it.
	LeadingStamp bool
}

// Lister lists objects whose file name carries a date inside a range.
type Lister struct {
	stores Opener
}

// NewLister returns a Lister over the buckets handed out by stores.
func NewLister(stores Opener) *Lister {
	return &Lister{stores: stores}
}

type datedObject struct {
	date civil.Date
	base string
	uri  string
}

// ListByDate returns the URIs of objects under location dated within
// [start, end], ordered by date then lower-cased file name. Objects without
// a date in their name are skipped.
func (l *Lister) ListByDate(ctx context.Context, location string, start, end civil.Date, opts ListOptions) ([]string, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	normalized, err := NormalizeLocation(location)
	if err != nil {
		return nil, err
	}
	bucket, prefix, err := SplitURI(normalized)
	if err != nil {
		return nil, err
	}
	if !opts.Recursive && prefix != "" {
		prefix += "/"
	}

	store, err := l.stores.Open(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("list by date: %w", err)
	}
	objects, err := store.List(ctx, prefix, opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("list by date: %w", err)
	}

	ext := strings.ToLower(opts.Extension)
	dateOf := DateFromName
	if opts.LeadingStamp {
		dateOf = DateFromLeadingStamp
	}

	var matched []datedObject
	for _, obj := range objects {
		if !strings.HasSuffix(strings.ToLower(obj.Key), ext) {
			continue
		}
		base := path.Base(obj.Key)
		d, ok := dateOf(base)
		if !ok {
			continue
		}
		if d.Before(start) || d.After(end) {
			continue
		}
		matched = append(matched, datedObject{date: d, base: strings.ToLower(base), uri: store.URI(obj.Key)})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].date != matched[j].date {
			return matched[i].date.Before(matched[j].date)
		}
		return matched[i].base < matched[j].base
	})

	uris := make([]string, len(matched))
	for i, m := range matched {
		uris[i] = m.uri
	}
	return uris, nil
}
