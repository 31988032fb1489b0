package objectstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/procsync/internal/procedure"
)

// putter is the subset of *minio.Client the archive uses.
type putter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive uploads deployed procedure bodies, one object per run and script.
type Archive struct {
	client putter
	bucket string
	prefix string
	ext    string
}

// New validates cfg and builds an Archive backed by a MinIO client.
// No request is sent until the first Archive call.
func New(cfg Config) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Archive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, ext: cfg.Extension}, nil
}

// ObjectKey returns the key for a procedure body deployed in a run:
// <prefix>/<runID>/<container>/<id><ext>
func (a *Archive) ObjectKey(runID, container, id string) string {
	ext := a.ext
	if ext == "" {
		ext = ".js"
	}
	return path.Join(strings.Trim(a.prefix, "/"), runID, container, id+ext)
}

// Archive stores rec.Body under ObjectKey. Object metadata carries the
// container, id and body digest.
func (a *Archive) Archive(ctx context.Context, runID, container string, rec procedure.Record) error {
	key := a.ObjectKey(runID, container, rec.ID)
	body := strings.NewReader(rec.Body)
	_, err := a.client.PutObject(ctx, a.bucket, key, body, int64(body.Len()), minio.PutObjectOptions{
		ContentType: "application/javascript",
		UserMetadata: map[string]string{
			"container": container,
			"procedure": rec.ID,
			"digest":    rec.Digest(),
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
