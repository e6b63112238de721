// Package images - Encoded still images taken from recordings.
package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Image represents an image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// JPEGQuality is the quality used for JPEG snapshots.
const JPEGQuality = 85

// Snapshot scales frame to width pixels, keeping its aspect ratio, and encodes
// it. A width of zero keeps the original size. frame is not modified.
//
// Arguments:
//   - frame: A BGR or grayscale 8-bit frame.
//   - width: Target width in pixels.
//   - format: Output encoding.
//
// Returns:
//   - *Image: The encoded snapshot.
//   - error: An error if conversion or encoding fails.
func Snapshot(frame gocv.Mat, width int, format ImageFormat) (*Image, error) {
	if frame.Empty() {
		return nil, errors.New("frame is empty")
	}
	if width < 0 {
		return nil, errors.Errorf("invalid snapshot width %d", width)
	}

	img, err := frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert frame to image")
	}
	if width > 0 && width != img.Bounds().Dx() {
		img = resize.Resize(uint(width), 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatPNG:
		err = png.Encode(&buf, img)
	default:
		return nil, errors.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", format)
	}

	return &Image{
		Format: format,
		Data:   buf.Bytes(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// Decode decodes the image data.
func (i *Image) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(i.Data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// WriteFile writes the encoded image to path.
func (i *Image) WriteFile(path string) error {
	if err := os.WriteFile(path, i.Data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
