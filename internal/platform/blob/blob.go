// Package blob は画像・署名ファイルの保存先
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

var ErrNotConfigured = errors.New("blob storage is not configured")

type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error)
}

// GCSUploader: 公開URLを返す
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSUploader: credJSON が空なら ADC
func NewGCSUploader(ctx context.Context, bucket, publicBaseURL, credJSON string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, ErrNotConfigured
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSUploader{client: client, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error) {
	wc := u.client.Bucket(u.bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := io.Copy(wc, body); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close writer %s: %w", objectPath, err)
	}
	return u.baseURL + "/" + objectPath, nil
}

func (u *GCSUploader) Close() error { return u.client.Close() }

// ObjectPath: <dir>/<uuid><ext>
func ObjectPath(dir, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(dir, uuid.New().String()+strings.ToLower(ext))
}
