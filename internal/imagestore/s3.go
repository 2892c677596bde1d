package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures NewS3.
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string // custom endpoint; enables path-style addressing
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores images in an S3-compatible bucket.
type S3 struct {
	client  putObjectAPI
	bucket  string
	baseURL string
}

// NewS3 builds an S3 store. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(client, opts), nil
}

func newS3WithClient(client putObjectAPI, opts S3Options) *S3 {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		if opts.Endpoint != "" {
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}
	return &S3{client: client, bucket: opts.Bucket, baseURL: base}
}

func (s *S3) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}
