package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// DefaultWidth is the preview width in pixels.
const DefaultWidth = 160

// Image is a preview raster together with the timestamp it represents.
// Timestamp is where the frame was decoded; Requested is the timestamp asked
// for. They differ only when a cached frame from the same cache bucket
// answered the request.
type Image struct {
	Timestamp float64
	Requested float64
	// Seq is the request sequence number that produced this image.
	Seq    uint64
	Raster *image.RGBA
}

func (i Image) Width() int {
	if i.Raster == nil {
		return 0
	}
	return i.Raster.Bounds().Dx()
}

func (i Image) Height() int {
	if i.Raster == nil {
		return 0
	}
	return i.Raster.Bounds().Dy()
}

// PNG encodes the raster.
func (i Image) PNG() ([]byte, error) {
	if i.Raster == nil {
		return nil, fmt.Errorf("empty preview")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, i.Raster); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL encodes the raster as a data: URL suitable for an <img> src.
func (i Image) DataURL() (string, error) {
	data, err := i.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Downscale renders src into a full-resolution raster and resamples it to
// the given width, preserving the aspect ratio. It returns nil for an empty
// source.
func Downscale(src image.Image, width int) *image.RGBA {
	if src == nil || width <= 0 {
		return nil
	}
	b := src.Bounds()
	if b.Empty() {
		return nil
	}

	full := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(full, full.Bounds(), src, b.Min, draw.Src)

	height := int(math.Round(float64(b.Dy()) * float64(width) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), full, full.Bounds(), draw.Src, nil)
	return dst
}
