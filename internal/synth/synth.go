// Package synth generates small synthetic tracking archives with known
// content, for tests and for smoke-testing the command line tool.
package synth

import (
	"image"
	"image/color"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/types"
)

// ForegroundLevel is the uniform value of every synthetic foreground map
const ForegroundLevel = 128

// Object is one synthetic track
type Object struct {
	ID     string
	Frames []int
	Boxes  []types.Box
}

// Video is one synthetic video
type Video struct {
	ID        string
	NumFrames int
	Width     int
	Height    int
	Annotated bool
	Objects   []Object
	// Frames listed here are written without any payloads
	Missing []int
}

// Track builds an object present on the given frames with a box that moves
// one pixel right per frame.
func Track(id string, box types.Box, frames ...int) Object {
	o := Object{ID: id, Frames: frames}
	for _, f := range frames {
		dx := float32(f)
		o.Boxes = append(o.Boxes, types.Box{Left: box.Left + dx, Top: box.Top, Right: box.Right + dx, Bottom: box.Bottom})
	}
	return o
}

// Frames returns first..last inclusive
func Frames(first, last int) []int {
	var f []int
	for i := first; i <= last; i++ {
		f = append(f, i)
	}
	return f
}

// FrameColor is the uniform colour of frame f
func FrameColor(f int) color.NRGBA {
	return color.NRGBA{R: uint8(f * 7 % 256), G: 100, B: 200, A: 255}
}

// OrientationLevel is the uniform value of orientation bin k
func OrientationLevel(k int) uint8 {
	return uint8(10*k + 5)
}

// FrameImage returns the uniform image of frame f
func FrameImage(width, height, f int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	c := FrameColor(f)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Mask returns a uniform grayscale map
func Mask(width, height int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// WriteArchive writes videos into a sharded archive at prefix
func WriteArchive(log logs.Log, prefix string, shards int, videos []Video) error {
	w, err := archive.NewWriter(log, prefix, shards)
	if err != nil {
		return err
	}
	for _, v := range videos {
		if err := writeVideo(w, v); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func writeVideo(w *archive.Writer, v Video) error {
	if err := w.AddVideo(v.ID, v.NumFrames, v.Annotated); err != nil {
		return err
	}
	missing := map[int]bool{}
	for _, f := range v.Missing {
		missing[f] = true
	}
	for f := 0; f < v.NumFrames; f++ {
		if missing[f] {
			continue
		}
		if err := w.AddFrameImage(v.ID, f, types.ChannelImage, FrameImage(v.Width, v.Height, f)); err != nil {
			return err
		}
		if err := w.AddFrameImage(v.ID, f, types.ChannelForeground, Mask(v.Width, v.Height, ForegroundLevel)); err != nil {
			return err
		}
		for k := 0; k < types.NumOrientations; k++ {
			if err := w.AddFrameImage(v.ID, f, types.ChannelOrientation(k), Mask(v.Width, v.Height, OrientationLevel(k))); err != nil {
				return err
			}
		}
	}
	for _, o := range v.Objects {
		if err := w.AddObject(v.ID, o.ID, o.Frames, o.Boxes); err != nil {
			return err
		}
	}
	return nil
}
