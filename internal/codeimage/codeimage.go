// Package codeimage implements the Code-Image Registry (C6): one binary
// build artifact per StrategyKind, metadata tracked in the Persistent
// Store and the payload itself held in an S3-compatible object store,
// one object per kind and version tag rather than a bucket of arbitrary
// uploads.
package codeimage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"factory/internal/domain"
	"factory/internal/store"
)

// S3API is the subset of *s3.Client the registry needs, narrowed to an
// interface so tests can substitute an in-memory fake.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Registry is the Code-Image Registry.
type Registry struct {
	store  store.Store
	s3     S3API
	bucket string
	logger *logrus.Logger
}

// New creates a Registry backed by s (metadata) and an S3-compatible
// bucket (payload bytes).
func New(s store.Store, s3Client S3API, bucket string, logger *logrus.Logger) *Registry {
	return &Registry{store: s, s3: s3Client, bucket: bucket, logger: logger}
}

func objectKey(kind domain.StrategyKind, versionTag string) string {
	return fmt.Sprintf("code-images/%s/%s.bin", kind, versionTag)
}

// SetCodeImage uploads payload as the current build for kind, replacing
// whatever version was previously current (admin op).
func (r *Registry) SetCodeImage(ctx context.Context, kind domain.StrategyKind, versionTag string, payload []byte, uploadedBy string) (*domain.CodeImage, error) {
	if !domain.ValidStrategyKind(kind) {
		return nil, fmt.Errorf("unknown strategy kind %q", kind)
	}

	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])
	key := objectKey(kind, versionTag)

	if _, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/octet-stream"),
	}); err != nil {
		return nil, fmt.Errorf("upload code image: %w", err)
	}

	img := &domain.CodeImage{
		Kind:       kind,
		VersionTag: versionTag,
		ObjectKey:  key,
		SizeBytes:  int64(len(payload)),
		Checksum:   checksum,
		UploadedBy: uploadedBy,
	}
	if err := r.store.PutCodeImage(ctx, img); err != nil {
		return nil, fmt.Errorf("record code image metadata: %w", err)
	}

	r.logger.Infof("Code image set: kind=%s version=%s size=%d checksum=%s", kind, versionTag, len(payload), checksum)
	return img, nil
}

// GetCodeImageMetadata returns the current build's metadata without
// fetching the payload, used by the deployment state machine's install
// step to look up the object key it hands to the container.
func (r *Registry) GetCodeImageMetadata(ctx context.Context, kind domain.StrategyKind) (*domain.CodeImage, error) {
	return r.store.GetCodeImage(ctx, kind)
}

// FetchPayload downloads the current build's bytes for kind. The
// deployment state machine does not call it: its install step passes the
// container the object key instead of the bytes.
func (r *Registry) FetchPayload(ctx context.Context, kind domain.StrategyKind) ([]byte, error) {
	img, err := r.store.GetCodeImage(ctx, kind)
	if err != nil {
		return nil, err
	}

	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(img.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download code image: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read code image body: %w", err)
	}
	return data, nil
}
