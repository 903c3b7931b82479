package artifact_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/aretw0/comfyflow/pkg/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, text map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	out, err := artifact.WritePNGText(buf.Bytes(), text)
	require.NoError(t, err)
	return out
}

func TestPNGText_RoundTrip(t *testing.T) {
	data := pngBytes(t, map[string]string{
		"prompt":   `{"1":{"class_type":"A"}}`,
		"workflow": `{"nodes":[]}`,
	})

	text, err := artifact.ReadPNGText(data)
	require.NoError(t, err)
	assert.Equal(t, `{"1":{"class_type":"A"}}`, text["prompt"])
	assert.Equal(t, `{"nodes":[]}`, text["workflow"])

	// The stream must stay decodable: CRCs are checked by image/png.
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestPNGText_Errors(t *testing.T) {
	_, err := artifact.ReadPNGText([]byte("GIF89a"))
	assert.ErrorIs(t, err, artifact.ErrNotPNG)

	data := pngBytes(t, nil)
	_, err = artifact.ReadPNGText(data[:20])
	assert.ErrorIs(t, err, artifact.ErrTruncated)
}

func TestPNGText_NoEntriesIsIdentity(t *testing.T) {
	data := pngBytes(t, nil)
	out, err := artifact.WritePNGText(data, nil)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestJPEGComment_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))

	empty, err := artifact.ReadJPEGComment(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, empty)

	out, err := artifact.WriteJPEGComment(buf.Bytes(), map[string]string{"prompt": "p"})
	require.NoError(t, err)

	meta, err := artifact.ReadJPEGComment(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"prompt": "p"}, meta)

	_, err = jpeg.Decode(bytes.NewReader(out))
	assert.NoError(t, err)

	_, err = artifact.WriteJPEGComment([]byte("nope"), map[string]string{"a": "b"})
	assert.ErrorIs(t, err, artifact.ErrNotJPEG)
}
