package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// MediaTypeOf guesses an image media type from leading bytes, falling back to
// the file extension.
func MediaTypeOf(path string, data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return MediaPDF
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MediaPNG
	case bytes.HasPrefix(data, []byte("\xff\xd8\xff")):
		return MediaJPEG
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return MediaTIFF
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return MediaBMP
	case ".png":
		return MediaPNG
	case ".jpg", ".jpeg":
		return MediaJPEG
	case ".tif", ".tiff":
		return MediaTIFF
	case ".pdf":
		return MediaPDF
	}
	return "application/octet-stream"
}

// Normalize re-encodes TIFF and BMP images as PNG. Other media types are
// returned unchanged.
func Normalize(img Image) (Image, error) {
	var (
		decoded image.Image
		err     error
	)
	switch img.MediaType {
	case MediaTIFF:
		decoded, err = tiff.Decode(bytes.NewReader(img.Data))
	case MediaBMP:
		decoded, err = bmp.Decode(bytes.NewReader(img.Data))
	default:
		return img, nil
	}
	if err != nil {
		return Image{}, fmt.Errorf("ocr: decode %s: %w", img.MediaType, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return Image{}, fmt.Errorf("ocr: encode png: %w", err)
	}
	return Image{Data: buf.Bytes(), MediaType: MediaPNG}, nil
}
