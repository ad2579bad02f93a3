package blob

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResizeJPEG_BoundsWidth(t *testing.T) {
	full, thumb, err := ResizeJPEG(bytes.NewReader(pngOf(t, 1600, 800)), 800)
	require.NoError(t, err)

	fi, err := imaging.Decode(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, 800, fi.Bounds().Dx())
	assert.Equal(t, 400, fi.Bounds().Dy())

	ti, err := imaging.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, thumbnailWidth, ti.Bounds().Dx())
}

func TestResizeJPEG_KeepsSmallImages(t *testing.T) {
	full, _, err := ResizeJPEG(bytes.NewReader(pngOf(t, 300, 100)), 800)
	require.NoError(t, err)
	fi, err := imaging.Decode(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, 300, fi.Bounds().Dx())
}

func TestResizeJPEG_RejectsGarbage(t *testing.T) {
	_, _, err := ResizeJPEG(strings.NewReader("not an image"), 800)
	assert.Error(t, err)
}

type memUploader struct{ objects map[string][]byte }

func (m *memUploader) Upload(_ context.Context, p, _ string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[p] = b
	return "mem://" + p, nil
}

func TestUploadImage_WritesOriginalAndThumbnail(t *testing.T) {
	u := &memUploader{objects: map[string][]byte{}}
	urls, err := UploadImage(context.Background(), u, "products", bytes.NewReader(pngOf(t, 640, 480)), 1280)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(urls.ImageURL, "mem://products/"))
	assert.True(t, strings.HasPrefix(urls.ThumbnailURL, "mem://products/thumbs/"))
	assert.Len(t, u.objects, 2)
}

func TestUploadImage_NoUploader(t *testing.T) {
	_, err := UploadImage(context.Background(), nil, "products", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestObjectPath(t *testing.T) {
	p := ObjectPath("signatures", "PNG")
	assert.True(t, strings.HasPrefix(p, "signatures/"))
	assert.True(t, strings.HasSuffix(p, ".png"))
}
