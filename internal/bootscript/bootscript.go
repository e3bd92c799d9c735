// Package bootscript loads the instance startup script. Its contents are
// opaque and passed to the instance untouched.
package bootscript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxSize is the largest script EC2 accepts as user data, before encoding.
const MaxSize = 16 * 1024

// ObjectGetter is the subset of the S3 client used to fetch scripts.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads scripts from local files or s3://bucket/key locations.
type Loader struct {
	// Dir resolves relative paths. Empty means the working directory.
	Dir string
	// S3 returns a client for s3:// locations. It is only called when needed.
	S3 func(ctx context.Context) (ObjectGetter, error)
}

// Load returns the script at location.
func (l *Loader) Load(ctx context.Context, location string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, "s3://") {
		data, err = l.loadS3(ctx, location)
	} else {
		data, err = l.loadFile(location)
	}
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("boot script %s is %d bytes, limit is %d", location, len(data), MaxSize)
	}
	return data, nil
}

func (l *Loader) loadFile(path string) ([]byte, error) {
	if !filepath.IsAbs(path) && l.Dir != "" {
		path = filepath.Join(l.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot script: %w", err)
	}
	return data, nil
}

func (l *Loader) loadS3(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseS3(location)
	if err != nil {
		return nil, err
	}
	if l.S3 == nil {
		return nil, fmt.Errorf("no S3 client configured for %s", location)
	}
	client, err := l.S3(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read boot script from %s: %w", location, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseS3 splits s3://bucket/key.
func ParseS3(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// location", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q must have the form s3://bucket/key", location)
	}
	return bucket, key, nil
}
