package matching

import (
	"image"
	"math/rand/v2"

	"github.com/chewxy/math32"

	"github.com/menta2k/tracking-data/pkg/imageproc"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Jitter describes the random crop perturbation, as fractions of the box size
type Jitter struct {
	PaddingMean  float64 `json:"padding_mean"`
	PaddingNoise float64 `json:"padding_noise"`
	CenterNoise  float64 `json:"center_noise"`
}

// NewRand returns a generator seeded deterministically from seed
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// CropRegion expands box by a randomly drawn padding and centre shift and
// clips it to the image. Four values are drawn from rng, in the order
// x padding, y padding, x shift, y shift.
func CropRegion(box types.Box, imgW, imgH int, j Jitter, rng *rand.Rand) types.Box {
	pnx := uniform(rng, j.PaddingMean-j.PaddingNoise, j.PaddingMean+j.PaddingNoise)
	pny := uniform(rng, j.PaddingMean-j.PaddingNoise, j.PaddingMean+j.PaddingNoise)
	cnx := uniform(rng, -j.CenterNoise, j.CenterNoise)
	cny := uniform(rng, -j.CenterNoise, j.CenterNoise)

	sizeX := float64(box.Width())
	sizeY := float64(box.Height())
	left := float64(box.Left) + (cnx-pnx)*sizeX
	right := float64(box.Right) + (cnx+pnx)*sizeX
	top := float64(box.Top) + (cny-pny)*sizeY
	bottom := float64(box.Bottom) + (cny+pny)*sizeY

	return types.Box{
		Left:   float32(imageproc.Clamp(left, 0, float64(imgW))),
		Top:    float32(imageproc.Clamp(top, 0, float64(imgH))),
		Right:  float32(imageproc.Clamp(right, 0, float64(imgW))),
		Bottom: float32(imageproc.Clamp(bottom, 0, float64(imgH))),
	}
}

// PixelRect converts a clipped region to the pixel rectangle that is cut
// out. Right and bottom are inclusive, and the result always holds at least
// one pixel of a non-empty image.
func PixelRect(region types.Box, imgW, imgH int) image.Rectangle {
	x0 := clampInt(int(math32.Floor(region.Left)), 0, imgW-1)
	y0 := clampInt(int(math32.Floor(region.Top)), 0, imgH-1)
	x1 := clampInt(int(math32.Floor(region.Right))+1, x0+1, imgW)
	y1 := clampInt(int(math32.Floor(region.Bottom))+1, y0+1, imgH)
	return image.Rect(x0, y0, x1, y1)
}

// CropPatch cuts a jittered region around box out of img and resizes it to
// exactly patchW x patchH.
func CropPatch(img image.Image, box types.Box, patchW, patchH int, j Jitter, rng *rand.Rand) (*image.NRGBA, error) {
	b := img.Bounds()
	region := CropRegion(box, b.Dx(), b.Dy(), j, rng)
	rect := PixelRect(region, b.Dx(), b.Dy()).Add(b.Min)
	return imageproc.CropResize(img, rect, patchW, patchH)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
