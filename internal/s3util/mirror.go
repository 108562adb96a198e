// Package s3util mirrors local working files to S3, so the approval file
// can be shared between a reviewer and a scheduled Lambda.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
)

// ObjectAPI is the subset of the S3 client used by Mirror.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ParseURI splits "s3://bucket/key" into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri needs bucket and key: %q", uri)
	}
	return bucket, key, nil
}

// ArchiveURI returns the object next to uri that holds its gzip archive:
// "s3://b/pending_approvals.csv" becomes "s3://b/pending_approvals_archive.csv.gz".
func ArchiveURI(uri string) string {
	return strings.TrimSuffix(uri, path.Ext(uri)) + "_archive.csv.gz"
}

// Mirror keeps one local file in sync with one S3 object.
type Mirror struct {
	client ObjectAPI
	bucket string
	key    string
}

// NewMirror creates a Mirror for the object at uri.
func NewMirror(client ObjectAPI, uri string) (*Mirror, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &Mirror{client: client, bucket: bucket, key: key}, nil
}

// URI returns the mirrored object location.
func (m *Mirror) URI() string { return "s3://" + m.bucket + "/" + m.key }

// Pull replaces localPath with the object. A missing object leaves the
// local file untouched.
func (m *Mirror) Pull(ctx context.Context, localPath string) error {
	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &m.bucket, Key: &m.key})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			log.Debug().Str("uri", m.URI()).Msg("Mirror object does not exist yet")
			return nil
		}
		return fmt.Errorf("S3 GetObject %s: %w", m.URI(), err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	pf, err := renameio.NewPendingFile(localPath, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer pf.Cleanup()

	n, err := io.Copy(pf, result.Body)
	if err != nil {
		return fmt.Errorf("download %s: %w", m.URI(), err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", localPath, err)
	}
	log.Debug().Str("uri", m.URI()).Str("localPath", localPath).Int64("bytes", n).Msg("Pulled from S3")
	return nil
}

// Push uploads localPath to the object.
func (m *Mirror) Push(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := contentTypeFor(localPath)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &m.key,
		Body:        f,
		ContentType: &contentType,
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", m.URI(), err)
	}
	log.Debug().Str("uri", m.URI()).Str("localPath", localPath).Msg("Pushed to S3")
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".gz":
		return "application/gzip"
	default:
		return "text/csv; charset=utf-8"
	}
}
