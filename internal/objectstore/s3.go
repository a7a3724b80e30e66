// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// S3 stores objects in an S3-compatible bucket such as Cloudflare R2.
type S3 struct {
	client       *s3.Client
	bucket       string
	endpoint     string
	publicDomain string
}

// NewS3 builds the S3 store from the storage settings. R2 ignores the region,
// so "auto" is used as the SDK requires one.
func NewS3(ctx context.Context, cfg *configapi.Storage) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage credentials: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = true
	})
	return &S3{
		client:       client,
		bucket:       cfg.BucketName,
		endpoint:     cfg.EndpointURL,
		publicDomain: cfg.PublicDomain,
	}, nil
}

// Upload implements Store.
func (s *S3) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

// URL implements Store. Objects are served from the public domain when one is
// configured, and from the path-style endpoint URL otherwise.
func (s *S3) URL(key string) string {
	if s.publicDomain != "" {
		return strings.TrimSuffix(s.publicDomain, "/") + "/" + key
	}
	return s.endpoint + "/" + s.bucket + "/" + key
}
