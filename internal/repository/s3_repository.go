package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"photoshare/internal/config"
	"photoshare/internal/domain"
)

const s3KeyPrefix = "profile-images/"

type s3ImageStore struct {
	client    *s3.Client
	cfg       *config.S3Config
	urlPrefix string
	log       *zap.Logger
}

// NewS3ImageStore stores profile images in an S3-compatible bucket. Images
// are still served through urlPrefix by the API.
func NewS3ImageStore(ctx context.Context, cfg *config.S3Config, urlPrefix string, log *zap.Logger) (ImageStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = true
	})

	store := &s3ImageStore{
		client:    client,
		cfg:       cfg,
		urlPrefix: urlPrefix,
		log:       log,
	}

	if err := store.ensureBucketExists(ctx); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.Error(err))
	}

	return store, nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (r *s3ImageStore) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})
	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	input := &s3.CreateBucketInput{Bucket: aws.String(r.cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint.
	if r.cfg.Region != "" && r.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		}
	}
	if _, err := r.client.CreateBucket(ctx, input); err != nil {
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))
	return nil
}

func (r *s3ImageStore) Save(ctx context.Context, fileName string, data []byte, contentType string) (string, error) {
	if !validImageName(fileName) {
		return "", domain.ErrInvalidImageName
	}

	key := s3KeyPrefix + fileName
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		r.log.Error("Failed to upload file to S3",
			zap.String("key", key),
			zap.Error(err))
		return "", err
	}

	r.log.Info("File uploaded to S3",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return publicURL(r.urlPrefix, fileName), nil
}

func (r *s3ImageStore) Open(ctx context.Context, fileName string) (io.ReadCloser, error) {
	if !validImageName(fileName) {
		return nil, domain.ErrInvalidImageName
	}

	key := s3KeyPrefix + fileName
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, domain.ErrImageNotFound
		}
		r.log.Error("Failed to download file from S3",
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	return output.Body, nil
}
