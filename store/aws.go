package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/tuhinmallick/grounded-sam-replicate/log"
)

// PutObjectAPI is the part of *s3.Client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader mirrors objects into an S3 bucket under Prefix.
type S3Uploader struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// NewS3Uploader returns an uploader for bucket.
func NewS3Uploader(client PutObjectAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{Client: client, Bucket: bucket, Prefix: prefix}
}

// Key returns the object key of name.
func (u *S3Uploader) Key(name string) string {
	if u.Prefix == "" {
		return name
	}
	return u.Prefix + "/" + name
}

// Upload puts params into the bucket.
func (u *S3Uploader) Upload(ctx context.Context, params UploadParams) error {
	key := u.Key(params.Name)
	logger := log.FromContextOrDiscard(ctx).With(
		"key", key,
		"content-type", params.ContentType,
		"bucket", u.Bucket,
	)
	logger.Info("uploading to s3")

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.Bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(params.ContentType),
		Body:         bytes.NewReader(params.Data),
		Metadata:     params.Metadata,
		StorageClass: s3types.StorageClassIntelligentTiering,
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", key, u.Bucket, err)
	}
	return nil
}
