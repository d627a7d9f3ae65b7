package imageproc

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/tracking-data/internal/utils"
)

// Filters applied when resizing frames to the network input size. Images use
// a cubic filter; probability maps use bilinear interpolation.
var (
	ImageFilter = imaging.CatmullRom
	MaskFilter  = imaging.Linear
	PatchFilter = imaging.Linear
)

// ResizeImage resizes a frame image to exactly width x height
func ResizeImage(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, ImageFilter)
}

// ResizeMask resizes a single-channel probability map to exactly width x height
func ResizeMask(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, MaskFilter)
}

// CropResize crops rect out of img and resizes the crop to exactly
// width x height. rect is intersected with the image bounds first; an empty
// intersection is an error.
func CropResize(img image.Image, rect image.Rectangle, width, height int) (*image.NRGBA, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}
	cropped := imaging.Crop(img, rect)
	return imaging.Resize(cropped, width, height, PatchFilter), nil
}

// WriteRGB copies the RGB channels of img into dst laid out as [H, W, 3],
// multiplying every value by scale.
func WriteRGB(dst []float32, img *image.NRGBA, scale float32) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			dst[i+0] = float32(row[x*4+0]) * scale
			dst[i+1] = float32(row[x*4+1]) * scale
			dst[i+2] = float32(row[x*4+2]) * scale
			i += 3
		}
	}
}

// ReadRGB is the inverse of WriteRGB: it builds a w x h image from src laid
// out as [H, W, 3], dividing every value by scale and saturating to 0..255.
func ReadRGB(src []float32, w, h int, scale float32) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, p := 0, 0; i < w*h*3; i, p = i+3, p+4 {
		img.Pix[p+0] = toByte(src[i+0] / scale)
		img.Pix[p+1] = toByte(src[i+1] / scale)
		img.Pix[p+2] = toByte(src[i+2] / scale)
		img.Pix[p+3] = 255
	}
	return img
}

func toByte(v float32) uint8 {
	return uint8(Clamp(float64(v)+0.5, 0, 255))
}

// WriteChannel copies the luminance of a grayscale map into channel ch of dst
// laid out as [H, W, numChannels], multiplying every value by scale. The red
// component is used, which equals the gray level for gray sources.
func WriteChannel(dst []float32, img *image.NRGBA, numChannels, ch int, scale float32) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	i := ch
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			dst[i] = float32(row[x*4]) * scale
			i += numChannels
		}
	}
}

// SaveImage saves an image to a file with the specified format and quality,
// creating the parent directory.
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
