package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
	"google.golang.org/api/option"
)

// Backends understood by Provider.
const (
	BackendGCS  = "gcs"
	BackendS3   = "s3"
	BackendFile = "file"
	BackendMem  = "mem"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend string

	// FileRoot is the directory holding one sub-directory per bucket for
	// the file backend.
	FileRoot string

	// S3Endpoint and S3Region configure S3-compatible storage.
	S3Endpoint string
	S3Region   string

	// CredentialsJSON is a service-account key for GCS. Empty means
	// Application Default Credentials.
	CredentialsJSON []byte
}

// Provider opens and caches one Store per bucket. Stores stay valid until
// Close.
type Provider struct {
	opts Options

	mu      sync.Mutex
	stores  map[string]Store
	closers []io.Closer
	gcs     *storage.Client
}

// NewProvider validates opts. Clients are created on first use.
func NewProvider(opts Options) (*Provider, error) {
	switch opts.Backend {
	case BackendGCS, BackendS3, BackendFile, BackendMem:
	case "":
		opts.Backend = BackendGCS
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", opts.Backend)
	}
	return &Provider{opts: opts, stores: make(map[string]Store)}, nil
}

// Backend returns the selected backend name.
func (p *Provider) Backend() string { return p.opts.Backend }

// Open returns the Store for bucket.
func (p *Provider) Open(ctx context.Context, bucket string) (Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: empty bucket name")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[bucket]; ok {
		return s, nil
	}

	var s Store
	switch p.opts.Backend {
	case BackendGCS:
		client, err := p.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		s = NewGCSStore(client, bucket)
	default:
		b, err := p.openBlob(ctx, bucket)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, b)
		s = NewBlobStore(b, p.scheme(), bucket)
	}

	p.stores[bucket] = s
	return s, nil
}

func (p *Provider) gcsClient(ctx context.Context) (*storage.Client, error) {
	if p.gcs != nil {
		return p.gcs, nil
	}
	var opts []option.ClientOption
	if len(p.opts.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(p.opts.CredentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	p.gcs = client
	p.closers = append(p.closers, client)
	return client, nil
}

func (p *Provider) openBlob(ctx context.Context, bucket string) (*blob.Bucket, error) {
	switch p.opts.Backend {
	case BackendMem:
		return memblob.OpenBucket(nil), nil

	case BackendFile:
		dir := filepath.Join(p.opts.FileRoot, bucket)
		b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		if err != nil {
			return nil, fmt.Errorf("open file bucket %s: %w", dir, err)
		}
		return b, nil

	default:
		bucketURL := "s3://" + bucket
		params := url.Values{}
		if p.opts.S3Region != "" {
			params.Set("region", p.opts.S3Region)
		}
		if p.opts.S3Endpoint != "" {
			params.Set("endpoint", p.opts.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL += "?" + params.Encode()
		}
		b, err := blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("open S3 bucket %s: %w", bucket, err)
		}
		return b, nil
	}
}

func (p *Provider) scheme() string {
	switch p.opts.Backend {
	case BackendS3:
		return "s3"
	case BackendFile:
		return "file"
	default:
		return "mem"
	}
}

// Close releases every bucket and client opened by p.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil
	p.stores = make(map[string]Store)
	p.gcs = nil
	return firstErr
}
