package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/karloscodes/backpack/config"
)

// S3Disk stores files in an S3 (or S3 compatible) bucket. The disk root is
// used as a key prefix.
type S3Disk struct {
	client *s3.Client
	bucket string
	prefix string
	url    string
}

// NewS3Disk builds a client from the disk config. Without key and secret
// requests are sent unsigned.
func NewS3Disk(dc config.Disk) (*S3Disk, error) {
	if dc.Bucket == "" {
		return nil, errors.New("s3 disk requires a bucket")
	}

	region := dc.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region:                     region,
		UsePathStyle:               dc.UsePathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if dc.Endpoint != "" {
		opts.BaseEndpoint = aws.String(dc.Endpoint)
	}
	if dc.Key != "" {
		key, secret := dc.Key, dc.Secret
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret, Source: "backpack"}, nil
		})
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}

	return NewS3DiskWithClient(s3.New(opts), dc.Bucket, dc.Root, dc.URL), nil
}

// NewS3DiskWithClient wraps an existing client.
func NewS3DiskWithClient(client *s3.Client, bucket, prefix, url string) *S3Disk {
	return &S3Disk{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		url:    strings.TrimRight(url, "/"),
	}
}

// Put uploads r to path.
func (d *S3Disk) Put(ctx context.Context, p string, r io.Reader, contentType string) error {
	// Buffer so the SDK can sign a seekable body.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("storage: read upload: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
		Body:   bytes.NewReader(buf.Bytes()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: s3 put %s: %w", p, err)
	}
	return nil
}

// Get downloads path.
func (d *S3Disk) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("storage: s3 get %s: %w", p, err)
	}
	return out.Body, nil
}

// Exists reports whether path exists.
func (d *S3Disk) Exists(ctx context.Context, p string) (bool, error) {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: s3 head %s: %w", p, err)
	}
	return true, nil
}

// Delete removes path.
func (d *S3Disk) Delete(ctx context.Context, p string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(p)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("storage: s3 delete %s: %w", p, err)
	}
	return nil
}

// URL returns the public URL of path, or "" when the disk has none.
func (d *S3Disk) URL(p string) string {
	if d.url == "" {
		return ""
	}
	return d.url + "/" + d.key(p)
}

func (d *S3Disk) key(p string) string {
	k := strings.TrimPrefix(path.Clean("/"+p), "/")
	if d.prefix == "" {
		return k
	}
	return d.prefix + "/" + k
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
