package codeimage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"factory/internal/domain"
	"factory/internal/storetest"
)

// fakeS3 is an in-memory S3API used in place of a real bucket.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*input.Key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func newTestRegistry() (*Registry, *storetest.Fake, *fakeS3) {
	s := storetest.New()
	s3Fake := newFakeS3()
	logger := logrus.New()
	logger.SetOutput(nullWriter{})
	return New(s, s3Fake, "test-bucket", logger), s, s3Fake
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSetCodeImage_RecordsMetadataAndUploadsPayload(t *testing.T) {
	r, _, s3Fake := newTestRegistry()
	ctx := context.Background()

	img, err := r.SetCodeImage(ctx, domain.StrategyDCA, "v1", []byte("binary payload"), "alice")
	if err != nil {
		t.Fatalf("SetCodeImage() error = %v", err)
	}
	if img.SizeBytes != int64(len("binary payload")) {
		t.Fatalf("SizeBytes = %d, want %d", img.SizeBytes, len("binary payload"))
	}
	if _, ok := s3Fake.objects[img.ObjectKey]; !ok {
		t.Fatalf("expected object %s to be uploaded", img.ObjectKey)
	}
}

func TestSetCodeImage_RejectsUnknownKind(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := r.SetCodeImage(ctx, domain.StrategyKind("not-a-kind"), "v1", []byte("x"), "alice"); err == nil {
		t.Fatalf("SetCodeImage() with an unknown kind should fail")
	}
}

func TestFetchPayload_RoundTripsTheUploadedBytes(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	want := []byte("binary payload")
	if _, err := r.SetCodeImage(ctx, domain.StrategyDCA, "v1", want, "alice"); err != nil {
		t.Fatalf("SetCodeImage() error = %v", err)
	}

	got, err := r.FetchPayload(ctx, domain.StrategyDCA)
	if err != nil {
		t.Fatalf("FetchPayload() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("FetchPayload() = %q, want %q", got, want)
	}
}

func TestGetCodeImageMetadata_ReflectsTheLatestSet(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	if _, err := r.SetCodeImage(ctx, domain.StrategyDCA, "v1", []byte("one"), "alice"); err != nil {
		t.Fatalf("SetCodeImage() v1 error = %v", err)
	}
	if _, err := r.SetCodeImage(ctx, domain.StrategyDCA, "v2", []byte("two"), "alice"); err != nil {
		t.Fatalf("SetCodeImage() v2 error = %v", err)
	}

	meta, err := r.GetCodeImageMetadata(ctx, domain.StrategyDCA)
	if err != nil {
		t.Fatalf("GetCodeImageMetadata() error = %v", err)
	}
	if meta.VersionTag != "v2" {
		t.Fatalf("VersionTag = %s, want v2 (latest upload should replace the current build)", meta.VersionTag)
	}
}
