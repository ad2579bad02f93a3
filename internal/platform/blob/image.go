package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

const thumbnailWidth = 200

type ImageURLs struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// ResizeJPEG は maxWidth を超える画像を縮小し、JPEG 本体とサムネイルを返す
func ResizeJPEG(r io.Reader, maxWidth int) (full, thumb []byte, err error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("decode image: %w", err)
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var fb bytes.Buffer
	if err := imaging.Encode(&fb, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, nil, err
	}
	var tb bytes.Buffer
	small := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	if err := imaging.Encode(&tb, small, imaging.JPEG); err != nil {
		return nil, nil, err
	}
	return fb.Bytes(), tb.Bytes(), nil
}

// UploadImage: dir/xxx.jpg と dir/thumbs/xxx.jpg
func UploadImage(ctx context.Context, u Uploader, dir string, r io.Reader, maxWidth int) (ImageURLs, error) {
	if u == nil {
		return ImageURLs{}, ErrNotConfigured
	}
	full, thumb, err := ResizeJPEG(r, maxWidth)
	if err != nil {
		return ImageURLs{}, err
	}
	p := ObjectPath(dir, ".jpg")
	imgURL, err := u.Upload(ctx, p, "image/jpeg", bytes.NewReader(full))
	if err != nil {
		return ImageURLs{}, err
	}
	thumbURL, err := u.Upload(ctx, dir+"/thumbs/"+p[len(dir)+1:], "image/jpeg", bytes.NewReader(thumb))
	if err != nil {
		return ImageURLs{}, err
	}
	return ImageURLs{ImageURL: imgURL, ThumbnailURL: thumbURL}, nil
}
