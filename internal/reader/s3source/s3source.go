// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package s3source resolves a resource's search-path entry against an S3
// bucket instead of the local filesystem, so an entry in config.Paths of
// the form "s3://bucket/prefix" materializes a resource's index files into
// a local staging directory before memreader.Open takes over.
package s3source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source downloads a named resource's index files from an S3 bucket/prefix
// into a local staging directory, one file at a time.
type Source struct {
	client     *s3.Client
	bucket     string
	prefix     string
	stagingDir string
}

// ParsePath reports whether root looks like an "s3://bucket/prefix" search
// path entry, returning the bucket and prefix when it does.
func ParsePath(root string) (bucket, prefix string, ok bool) {
	const schema = "s3://"
	if !strings.HasPrefix(root, schema) {
		return "", "", false
	}
	rest := strings.TrimPrefix(root, schema)
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, true
}

// New builds a Source for the given bucket/prefix using the default AWS
// credential chain, staging downloaded objects under stagingDir.
func New(ctx context.Context, bucket, prefix, stagingDir string) (*Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Source{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		prefix:     prefix,
		stagingDir: stagingDir,
	}, nil
}

// Resolve downloads every object under <prefix>/<name>/ into
// <stagingDir>/<name>/ and returns that local directory, ready for
// memreader.Open. An empty object listing is reported as os.ErrNotExist so
// TimedReader's search-path loop can continue to the next configured root.
func (s *Source) Resolve(ctx context.Context, name string) (string, error) {
	key := strings.TrimSuffix(s.prefix, "/") + "/" + name
	key = strings.TrimPrefix(key, "/")

	localDir := filepath.Join(s.stagingDir, name)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(key + "/"),
	})

	found := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("listing s3://%s/%s: %w", s.bucket, key, err)
		}
		for _, obj := range page.Contents {
			found = true
			if err := s.download(ctx, aws.ToString(obj.Key), localDir, key); err != nil {
				return "", err
			}
		}
	}

	if !found {
		return "", fmt.Errorf("s3://%s/%s: %w", s.bucket, key, os.ErrNotExist)
	}

	return localDir, nil
}

func (s *Source) download(ctx context.Context, objectKey, localDir, prefix string) error {
	rel := strings.TrimPrefix(objectKey, prefix+"/")
	if rel == "" {
		return nil
	}
	dest := filepath.Join(localDir, rel)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("downloading s3://%s/%s: %w", s.bucket, objectKey, err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	return nil
}
