// Package s3fs exposes an S3 (or MinIO) bucket prefix as a store.
// Directories are key prefixes delimited by "/".
package s3fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"archon/internal/logging"
	"archon/internal/metrics"
	"archon/internal/store"
)

const backendName = "s3"

// API is the subset of *s3.Client the store uses.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config describes one bucket prefix.
type Config struct {
	Bucket       string
	Prefix       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type bucket struct {
	client API
	name   string
}

// Dir is a key prefix.
type Dir struct {
	b      *bucket
	prefix string // no trailing slash; empty for the bucket root
	name   string
}

// File is one object.
type File struct {
	b    *bucket
	key  string
	name string
}

// Open connects to S3 and returns the configured prefix as a store root.
func Open(ctx context.Context, cfg Config) (*Dir, error) {
	if cfg.Bucket == "" {
		return nil, &store.AccessError{Path: "s3://", Err: fmt.Errorf("bucket is required")}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logging.Debug("opened S3 store", "bucket", cfg.Bucket, "prefix", cfg.Prefix, "endpoint", cfg.Endpoint)
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns a store root over an existing client.
func NewWithClient(client API, bucketName, prefix string) *Dir {
	prefix = strings.Trim(prefix, "/")
	name := bucketName
	if prefix != "" {
		name = path.Base(prefix)
	}
	return &Dir{b: &bucket{client: client, name: bucketName}, prefix: prefix, name: name}
}

func (d *Dir) Name() string     { return d.name }
func (d *Dir) Kind() store.Kind { return store.KindDirectory }
func (d *Dir) Path() string     { return "s3://" + d.b.name + "/" + d.prefix }

func (f *File) Name() string     { return f.name }
func (f *File) Kind() store.Kind { return store.KindFile }
func (f *File) Path() string     { return "s3://" + f.b.name + "/" + f.key }

func (d *Dir) listPrefix() string {
	if d.prefix == "" {
		return ""
	}
	return d.prefix + "/"
}

// Entries lists common prefixes as directories and objects as files.
func (d *Dir) Entries(ctx context.Context) ([]store.Entry, error) {
	start := time.Now()
	prefix := d.listPrefix()

	paginator := s3.NewListObjectsV2Paginator(d.b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.b.name),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []store.Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOperation(backendName, "list", time.Since(start), false)
			return nil, &store.AccessError{Path: d.Path(), Err: err}
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			entries = append(entries, &Dir{b: d.b, prefix: prefix + name, name: name})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			// Skip directory marker objects.
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			entries = append(entries, &File{b: d.b, key: key, name: name})
		}
	}

	metrics.RecordStoreOperation(backendName, "list", time.Since(start), true)
	return entries, nil
}

// CreateFile returns the named object, creating an empty one if absent.
func (d *Dir) CreateFile(ctx context.Context, name string) (store.File, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, &store.WriteError{Path: d.Path() + "/" + name, Err: store.ErrNotFound}
	}
	f := &File{b: d.b, key: d.listPrefix() + name, name: name}

	_, err := d.b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.b.name),
		Key:    aws.String(f.key),
	})
	if err == nil {
		return f, nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return nil, &store.WriteError{Path: f.Path(), Err: err}
	}

	if err := f.put(ctx, nil); err != nil {
		return nil, &store.WriteError{Path: f.Path(), Err: err}
	}
	return f, nil
}

// Open streams the object body.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	start := time.Now()
	out, err := f.b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.b.name),
		Key:    aws.String(f.key),
	})
	if err != nil {
		metrics.RecordStoreOperation(backendName, "get", time.Since(start), false)
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}
		return nil, err
	}
	metrics.RecordStoreOperation(backendName, "get", time.Since(start), true)
	return out.Body, nil
}

// OpenWritable buffers the content and uploads it on Close.
func (f *File) OpenWritable(ctx context.Context) (store.Writable, error) {
	return &writable{ctx: ctx, f: f}, nil
}

func (f *File) put(ctx context.Context, data []byte) error {
	start := time.Now()
	_, err := f.b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.b.name),
		Key:           aws.String(f.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	metrics.RecordStoreOperation(backendName, "put", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("put object %s: %w", f.key, err)
	}
	logging.Debug("S3 put object", "key", f.key, "size", len(data))
	return nil
}

type writable struct {
	ctx  context.Context
	f    *File
	buf  bytes.Buffer
	done bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *writable) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.f.put(w.ctx, w.buf.Bytes())
}

func (w *writable) Abort() error {
	w.done = true
	w.buf.Reset()
	return nil
}
