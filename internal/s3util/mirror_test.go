package s3util

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
	tagging map[string]string
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, tagging: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	if in.Tagging != nil {
		f.tagging[*in.Bucket+"/"+*in.Key] = *in.Tagging
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveURI(t *testing.T) {
	for in, want := range map[string]string{
		"s3://shop/approvals/pending_approvals.csv":  "s3://shop/approvals/pending_approvals_archive.csv.gz",
		"s3://shop/approvals/pending_approvals.xlsx": "s3://shop/approvals/pending_approvals_archive.csv.gz",
	} {
		if got := ArchiveURI(in); got != want {
			t.Errorf("ArchiveURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		wantErr          bool
	}{
		{"s3://shop/approvals/pending.csv", "shop", "approvals/pending.csv", false},
		{"s3://shop/", "", "", true},
		{"s3://shop", "", "", true},
		{"https://shop/pending.csv", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := ParseURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseURI(%q) err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseURI(%q) = %q, %q", tt.uri, bucket, key)
		}
	}
}

func TestMirror_PushThenPull(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	m, err := NewMirror(fake, "s3://shop/approvals/pending.csv")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	local := filepath.Join(dir, "pending.csv")
	if err := os.WriteFile(local, []byte("product_id;caption\n1;Hallo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Push(ctx, local); err != nil {
		t.Fatal(err)
	}
	if fake.tagging["shop/approvals/pending.csv"] != projectTag {
		t.Error("expected project tagging on upload")
	}

	other := filepath.Join(dir, "nested", "copy.csv")
	if err := m.Pull(ctx, other); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(other)
	if string(got) != "product_id;caption\n1;Hallo\n" {
		t.Errorf("unexpected pulled content %q", got)
	}
}

func TestMirror_PullMissingObject(t *testing.T) {
	m, _ := NewMirror(newFakeS3(), "s3://shop/pending.csv")
	local := filepath.Join(t.TempDir(), "pending.csv")
	if err := os.WriteFile(local, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Pull(context.Background(), local); err != nil {
		t.Fatalf("missing object must not be an error: %v", err)
	}
	got, _ := os.ReadFile(local)
	if string(got) != "keep" {
		t.Errorf("local file changed: %q", got)
	}
}

func TestMirror_PullError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("access denied")
	m, _ := NewMirror(fake, "s3://shop/pending.csv")
	if err := m.Pull(context.Background(), filepath.Join(t.TempDir(), "p.csv")); err == nil {
		t.Error("expected error")
	}
}
