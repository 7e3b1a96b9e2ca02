package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

var ErrNoBucket = errors.New("s3store: bucket must be specified")

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Region string
	Bucket string

	// Endpoint overrides the AWS endpoint, for S3 compatible services.
	Endpoint  string
	PathStyle bool

	// Static credentials. When empty the default AWS credential chain
	// is used.
	AccessKey string
	SecretKey string
}

// A Store is a BlobStore backed by an S3 bucket. Objects are written
// private; their public URLs resolve only for buckets with a public policy.
type Store struct {
	api  API
	opts Options
}

var _ proto.BlobStore = (*Store)(nil)

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: aws config: %w", err)
	}
	if opts.Region == "" {
		opts.Region = cfg.Region
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewWithAPI(client, opts), nil
}

// NewWithAPI returns a Store using the given client.
func NewWithAPI(api API, opts Options) *Store {
	return &Store{api: api, opts: opts}
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = proto.OctetStream
	}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3store: put s3://%s/%s: %w", s.opts.Bucket, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete s3://%s/%s: %w", s.opts.Bucket, key, err)
	}
	return nil
}

// PublicURL returns the unsigned URL of key: virtual-hosted on AWS, or
// under the configured endpoint.
func (s *Store) PublicURL(key string) (*url.URL, error) {
	key = strings.TrimPrefix(key, "/")
	if s.opts.Endpoint == "" {
		if s.opts.Region == "" {
			return nil, fmt.Errorf("s3store: region unknown")
		}
		return &url.URL{
			Scheme: "https",
			Host:   fmt.Sprintf("%s.s3.%s.amazonaws.com", s.opts.Bucket, s.opts.Region),
			Path:   "/" + key,
		}, nil
	}

	base, err := url.Parse(s.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("s3store: endpoint: %w", err)
	}
	u := *base
	prefix := strings.TrimSuffix(base.Path, "/")
	if s.opts.PathStyle {
		u.Path = prefix + "/" + s.opts.Bucket + "/" + key
	} else {
		u.Host = s.opts.Bucket + "." + base.Host
		u.Path = prefix + "/" + key
	}
	return &u, nil
}

func (s *Store) String() string { return "s3://" + s.opts.Bucket }
