// Copyright © 2018 One Concern

package sthree

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oneconcern/packpub/pkg/storage"
)

// PageSize is the maximum number of keys listed or deleted per S3 request
const PageSize = 1000

// API is the subset of the S3 client used by the store
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(context.Context, *s3.DeleteObjectsInput, ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Option for the S3 store
type Option func(*s3FS)

// Region of the bucket
func Region(region string) Option {
	return func(fs *s3FS) {
		fs.region = region
	}
}

// Endpoint targets an S3-compatible service (e.g. minio, localstack) with path-style addressing
func Endpoint(endpoint string) Option {
	return func(fs *s3FS) {
		fs.endpoint = endpoint
	}
}

// StaticCredentials overrides the default credentials chain
func StaticCredentials(accessKey, secretKey string) Option {
	return func(fs *s3FS) {
		fs.accessKey = accessKey
		fs.secretKey = secretKey
	}
}

// Client injects a ready-made S3 client
func Client(client API) Option {
	return func(fs *s3FS) {
		fs.s3 = client
	}
}

// New S3-backed store, for a bucket
func New(ctx context.Context, bucket string, opts ...Option) (storage.Store, error) {
	fs := &s3FS{
		bucket: bucket,
		region: "us-east-1",
	}
	for _, apply := range opts {
		apply(fs)
	}
	if fs.s3 != nil {
		return fs, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(fs.region)}
	if fs.accessKey != "" && fs.secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(fs.accessKey, fs.secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, toSentinelErrors(err)
	}

	if fs.endpoint != "" {
		fs.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fs.endpoint)
			o.UsePathStyle = true
		})
	} else {
		fs.s3 = s3.NewFromConfig(cfg)
	}
	return fs, nil
}

type s3FS struct {
	bucket    string
	region    string
	endpoint  string
	accessKey string
	secretKey string
	s3        API
}

func (s *s3FS) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = toSentinelErrors(err)
		if isNotExists(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3FS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, toSentinelErrors(err)
	}
	return obj.Body, nil
}

// Put uploads an object. With exclusive set, the write is conditional on the key being absent.
//
// The content is buffered in memory: payloads are bounded by the pack size limit.
func (s *s3FS) Put(ctx context.Context, key string, rdr io.Reader, exclusive bool) error {
	data, err := io.ReadAll(rdr)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if exclusive {
		input.IfNoneMatch = aws.String("*")
	}
	_, err = s.s3.PutObject(ctx, input)
	return toSentinelErrors(err)
}

func (s *s3FS) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return toSentinelErrors(err)
}

func (s *s3FS) Keys(ctx context.Context) ([]string, error) {
	return s.KeysPrefix(ctx, "")
}

func (s *s3FS) KeysPrefix(ctx context.Context, prefix string) ([]string, error) {
	params := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(PageSize),
	}
	if prefix != "" {
		params.Prefix = aws.String(prefix)
	}

	var keys []string
	pager := s3.NewListObjectsV2Paginator(s.s3, params)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, toSentinelErrors(err)
		}
		for _, obj := range page.Contents {
			if key := aws.ToString(obj.Key); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func (s *s3FS) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += PageSize {
		end := start + PageSize
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}
		_, err := s.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return toSentinelErrors(err)
		}
	}
	return nil
}

func (s *s3FS) String() string {
	return "s3@" + s.bucket
}
