package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds COS-specific configuration.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g. "myqcloud.com"
	Scheme    string // "https" or "http"
}

// COSStorage keeps run artifacts in a Tencent Cloud COS bucket.
// Snapshot archives captured on remote hosts are pulled from here
// before decoding, and finished results are pushed back under the same
// run prefix.
type COSStorage struct {
	client *cos.Client
	bucket string
	region string
	domain string
	scheme string
}

// NewCOSStorage creates a COS backend for the configured bucket.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS storage")
	}

	s := &COSStorage{
		bucket: cfg.Bucket,
		region: cfg.Region,
		domain: cfg.Domain,
		scheme: cfg.Scheme,
	}
	if s.domain == "" {
		s.domain = "myqcloud.com"
	}
	if s.scheme == "" {
		s.scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s", s.scheme, s.bucketHost()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", s.scheme, s.region, s.domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL: %w", err)
	}

	s.client = cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})
	return s, nil
}

// Upload stores the object under the specified key, tagging it with the
// MIME type implied by the artifact naming convention.
func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentTypeForKey(key),
		},
	}
	if _, err := s.client.Object.Put(ctx, key, reader, opt); err != nil {
		return fmt.Errorf("failed to upload %q to COS: %w", key, err)
	}
	return nil
}

// Download streams the object at the specified key.
func (s *COSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download %q from COS: %w", key, err)
	}
	return resp.Body, nil
}

// DownloadFile downloads the object at the specified key to a local file.
func (s *COSStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := s.client.Object.GetToFile(ctx, key, localPath, nil); err != nil {
		return fmt.Errorf("failed to download %q from COS: %w", key, err)
	}
	return nil
}

// Delete removes the object at the specified key.
func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if _, err := s.client.Object.Delete(ctx, key, nil); err != nil {
		return fmt.Errorf("failed to delete %q from COS: %w", key, err)
	}
	return nil
}

// Exists checks if an object exists at the specified key.
func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check %q in COS: %w", key, err)
	}
	return ok, nil
}

// List returns the keys under the given prefix, following truncated
// listings until the bucket is exhausted.
func (s *COSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		res, _, err := s.client.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix:  prefix,
			Marker:  marker,
			MaxKeys: 1000,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %q in COS: %w", prefix, err)
		}
		for _, obj := range res.Contents {
			keys = append(keys, obj.Key)
		}
		if !res.IsTruncated {
			break
		}
		marker = res.NextMarker
	}
	return keys, nil
}

// GetURL returns the public URL for the specified key.
func (s *COSStorage) GetURL(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.bucketHost(), key)
}

func (s *COSStorage) bucketHost() string {
	return fmt.Sprintf("%s.cos.%s.%s", s.bucket, s.region, s.domain)
}

// contentTypeForKey maps artifact keys to their MIME type.
func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".json"), strings.HasSuffix(key, ".heapsnapshot"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
