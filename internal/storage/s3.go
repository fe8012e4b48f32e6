// Package storage resolves import sources. Local paths pass through;
// s3://bucket/key objects are downloaded to a temp file first.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

const s3Scheme = "s3://"

// ObjectAPI is the subset of the S3 client the fetcher uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Fetcher makes report sources available as local files.
type Fetcher struct {
	client  ObjectAPI
	tempDir string
}

// NewFetcher creates a fetcher over client. Downloads land under tempDir,
// or the OS temp dir when it is empty.
func NewFetcher(client ObjectAPI, tempDir string) *Fetcher {
	return &Fetcher{client: client, tempDir: tempDir}
}

// NewS3Fetcher loads the default AWS credential chain for region, using the
// shared config profile when one is given.
func NewS3Fetcher(ctx context.Context, region, profile, tempDir string) (*Fetcher, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewFetcher(s3.NewFromConfig(cfg), tempDir), nil
}

// IsS3URI reports whether src names an S3 object or prefix.
func IsS3URI(src string) bool {
	return strings.HasPrefix(src, s3Scheme)
}

// ParseS3URI splits s3://bucket/key. The key may be empty or end in "/"
// for a prefix.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 uri %q has no bucket", uri)
	}
	return bucket, key, nil
}

// Expand turns an S3 prefix into the .csv objects under it. Local paths and
// single objects are returned unchanged.
func (f *Fetcher) Expand(ctx context.Context, src string) ([]string, error) {
	if !IsS3URI(src) {
		return []string{src}, nil
	}
	bucket, key, err := ParseS3URI(src)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		return []string{src}, nil
	}

	var out []string
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", bucket, key, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if strings.HasSuffix(strings.ToLower(k), ".csv") {
				out = append(out, s3Scheme+bucket+"/"+k)
			}
		}
	}
	return out, nil
}

// Fetch returns a local path for src and a cleanup func that removes any
// downloaded copy. The downloaded file keeps the object's base name.
func (f *Fetcher) Fetch(ctx context.Context, src string) (string, func(), error) {
	if !IsS3URI(src) {
		return src, func() {}, nil
	}
	bucket, key, err := ParseS3URI(src)
	if err != nil {
		return "", nil, err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return "", nil, fmt.Errorf("s3 uri %q names a prefix, not an object", src)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("getting %s: %w", src, err)
	}
	defer out.Body.Close()

	dir, err := os.MkdirTemp(f.tempDir, "rtb-import-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	local := filepath.Join(dir, path.Base(key))
	file, err := os.Create(local)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	n, err := io.Copy(file, out.Body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("downloading %s: %w", src, err)
	}

	logger.Info("downloaded report", "source", src, "path", local, "bytes", n)
	return local, cleanup, nil
}
