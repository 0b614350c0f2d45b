package tables

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Uploader is the slice of an object store the year writer needs.
type Uploader interface {
	PutFile(ctx context.Context, key, localPath, contentType string) error
	URI(key string) string
}

// YearOf extracts the partition year of a row.
type YearOf func(Row) (int, bool)

// YearColumn reads the year from an integer column.
func YearColumn(f Frame, name string) YearOf {
	idx := f.Index(name)
	return func(r Row) (int, bool) {
		if idx < 0 || r[idx] == nil {
			return 0, false
		}
		n, ok := toInt(r[idx])
		return int(n), ok
	}
}

// YearFromDate reads the year from the leading four digits of an ISO date
// column.
func YearFromDate(f Frame, name string) YearOf {
	idx := f.Index(name)
	return func(r Row) (int, bool) {
		if idx < 0 || r[idx] == nil {
			return 0, false
		}
		s, ok := r[idx].(string)
		if !ok || len(s) < 4 {
			return 0, false
		}
		y, err := strconv.Atoi(s[:4])
		return y, err == nil
	}
}

// PartitionByYear splits f by year. Rows without a year are dropped.
func PartitionByYear(f Frame, yearOf YearOf) map[int]Frame {
	out := make(map[int]Frame)
	for _, r := range f.Rows {
		y, ok := yearOf(r)
		if !ok {
			continue
		}
		part, exists := out[y]
		if !exists {
			part = NewFrame(f.Columns)
		}
		part.Rows = append(part.Rows, r)
		out[y] = part
	}
	return out
}

// YearWriter writes one Parquet object per year.
type YearWriter struct {
	// TempDir holds the staging files; empty means os.TempDir.
	TempDir string
}

// Write partitions f by year and uploads {prefix}/{year}-{table}.parquet for
// each year. It returns the written URIs in ascending year order.
func (yw YearWriter) Write(ctx context.Context, up Uploader, prefix, table string, f Frame, yearOf YearOf) ([]string, error) {
	parts := PartitionByYear(f, yearOf)

	years := make([]int, 0, len(parts))
	for y := range parts {
		years = append(years, y)
	}
	sort.Ints(years)

	uris := make([]string, 0, len(years))
	for _, y := range years {
		key := path.Join(strings.Trim(prefix, "/"), fmt.Sprintf("%d-%s.parquet", y, table))
		if err := yw.upload(ctx, up, key, parts[y]); err != nil {
			return uris, fmt.Errorf("write %s: %w", key, err)
		}
		uris = append(uris, up.URI(key))
	}
	return uris, nil
}

func (yw YearWriter) upload(ctx context.Context, up Uploader, key string, f Frame) error {
	tmp, err := os.CreateTemp(yw.TempDir, "year-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteParquet(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return up.PutFile(ctx, key, tmp.Name(), "application/octet-stream")
}
