package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore is a Store over a gocloud.dev bucket (s3, file or mem driver).
type BlobStore struct {
	bucket *blob.Bucket
	name   string
	scheme string
}

// NewBlobStore wraps an opened bucket. URIs are rendered as scheme://name/key.
// The bucket is owned by the caller.
func NewBlobStore(bucket *blob.Bucket, scheme, name string) *BlobStore {
	return &BlobStore{bucket: bucket, name: name, scheme: scheme}
}

func (s *BlobStore) Bucket() string { return s.name }

func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, s.URI(key))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URI(key), err)
	}
	return data, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("write %s: %w", s.URI(key), err)
	}
	return nil
}

func (s *BlobStore) PutFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", localPath, err)
	}
	defer f.Close()

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", s.URI(key), err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("copy file to %s: %w", s.URI(key), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", s.URI(key), err)
	}
	return nil
}

func (s *BlobStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	opts := &blob.ListOptions{Prefix: prefix}
	if !recursive {
		opts.Delimiter = "/"
	}

	var out []ObjectInfo
	iter := s.bucket.List(opts)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.URI(prefix), err)
		}
		if obj.IsDir {
			continue
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, Updated: obj.ModTime})
	}
	return out, nil
}

func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", s.URI(key), err)
	}
	return ok, nil
}

func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", s.URI(key), err)
	}
	return nil
}
