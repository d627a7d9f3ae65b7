package batch

import (
	"image"

	"github.com/chewxy/math32"

	"github.com/menta2k/tracking-data/pkg/codec"
	"github.com/menta2k/tracking-data/pkg/imageproc"
	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
)

const pixelScale = float32(1.0 / 255.0)

// Options fixes the shape of assembled batches
type Options struct {
	WindowSize int
	InpHeight  int
	InpWidth   int
}

// Assembler materializes windows into dense arrays. It holds no mutable state,
// so one Assembler may serve concurrent AssembleBatch calls.
type Assembler struct {
	store   source.AnnotationStore
	video   source.VideoSource
	decoder *codec.Decoder
	opts    Options
}

// New creates an Assembler reading annotations from store and frames from video
func New(store source.AnnotationStore, video source.VideoSource, opts Options) (*Assembler, error) {
	if opts.WindowSize < 1 || opts.InpHeight < 1 || opts.InpWidth < 1 {
		return nil, types.ConfigErrorf("invalid batch shape: window %d, input %dx%d", opts.WindowSize, opts.InpWidth, opts.InpHeight)
	}
	return &Assembler{
		store:   store,
		video:   video,
		decoder: codec.New(),
		opts:    opts,
	}, nil
}

// Options returns the batch shape
func (a *Assembler) Options() Options {
	return a.opts
}

// AssembleBatch builds one batch from windows[indices[0]], windows[indices[1]], ...
// Only the requested fields are decoded and returned.
func (a *Assembler) AssembleBatch(windows []types.Window, indices []int, fields types.FieldSet) (*types.Batch, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	numEx := len(indices)
	T, H, W := a.opts.WindowSize, a.opts.InpHeight, a.opts.InpWidth

	b := &types.Batch{}
	if fields.Has(types.FieldImage) {
		b.Images = types.NewTensor(numEx, T, H, W, 3)
	}
	if fields.Has(types.FieldForeground) {
		b.Foreground = types.NewTensor(numEx, T, H, W, 1)
	}
	if fields.Has(types.FieldOrientation) {
		b.Orientation = types.NewTensor(numEx, T, H, W, types.NumOrientations)
	}
	if fields.Has(types.FieldBox) {
		b.Boxes = types.NewTensor(numEx, T, 4)
	}
	if fields.Has(types.FieldPresence) {
		b.Presence = types.NewTensor(numEx, T)
	}

	for ex, idx := range indices {
		if idx < 0 || idx >= len(windows) {
			return nil, types.DataAccessErrorf("window index %d out of range [0,%d)", idx, len(windows))
		}
		if err := a.fillExample(b, ex, windows[idx], fields); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (a *Assembler) fillExample(b *types.Batch, ex int, win types.Window, fields types.FieldSet) error {
	numFrames, err := a.video.NumFrames(win.VideoID)
	if err != nil {
		return types.DataAccessErrorf("video %s: %w", win.VideoID, err)
	}
	valid, err := a.store.ValidFrames(win.VideoID, win.ObjectID)
	if err != nil {
		return types.DataAccessErrorf("object %s/%s: %w", win.VideoID, win.ObjectID, err)
	}
	isValid := make(map[int]bool, len(valid))
	for _, f := range valid {
		isValid[f] = true
	}

	needBox := fields.Has(types.FieldBox)
	frameEnd := min(win.FrameStart+a.opts.WindowSize, numFrames)
	for f := win.FrameStart; f < frameEnd; f++ {
		t := f - win.FrameStart
		present := isValid[f]

		nativeW, nativeH, err := a.fillImagery(b, ex, t, win.VideoID, f, fields, present && needBox)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if b.Presence != nil {
			b.Presence.Set(1, ex, t)
		}
		if needBox {
			box, err := a.store.Box(win.VideoID, win.ObjectID, f)
			if err != nil {
				return types.DataAccessErrorf("box %s/%s frame %d: %w", win.VideoID, win.ObjectID, f, err)
			}
			r := RescaleBox(box, nativeW, nativeH, a.opts.InpWidth, a.opts.InpHeight)
			off := b.Boxes.Index(ex, t)
			copy(b.Boxes.Data[off:off+4], []float32{r.Left, r.Top, r.Right, r.Bottom})
		}
	}
	return nil
}

// fillImagery decodes and writes the requested per-frame channels. When
// wantDims is set it also returns the native image size, reading only the
// image header if the image itself was not requested.
func (a *Assembler) fillImagery(b *types.Batch, ex, t int, vid string, f int, fields types.FieldSet, wantDims bool) (int, int, error) {
	W, H := a.opts.InpWidth, a.opts.InpHeight
	nativeW, nativeH := 0, 0

	if fields.Has(types.FieldImage) {
		img, err := a.decode(vid, f, types.ChannelImage)
		if err != nil {
			return 0, 0, err
		}
		nativeW, nativeH = img.Bounds().Dx(), img.Bounds().Dy()
		resized := imageproc.ResizeImage(img, W, H)
		off := b.Images.Index(ex, t)
		imageproc.WriteRGB(b.Images.Data[off:off+b.Images.Stride(1)], resized, pixelScale)
	} else if wantDims {
		data, err := a.read(vid, f, types.ChannelImage)
		if err != nil {
			return 0, 0, err
		}
		nativeW, nativeH, err = a.decoder.DecodeConfig(data)
		if err != nil {
			return 0, 0, types.DataAccessErrorf("frame %s/%d %v: %w", vid, f, types.ChannelImage, err)
		}
	}

	if fields.Has(types.FieldForeground) {
		img, err := a.decode(vid, f, types.ChannelForeground)
		if err != nil {
			return 0, 0, err
		}
		off := b.Foreground.Index(ex, t)
		imageproc.WriteChannel(b.Foreground.Data[off:off+b.Foreground.Stride(1)], imageproc.ResizeMask(img, W, H), 1, 0, pixelScale)
	}

	if fields.Has(types.FieldOrientation) {
		off := b.Orientation.Index(ex, t)
		dst := b.Orientation.Data[off : off+b.Orientation.Stride(1)]
		for k := 0; k < types.NumOrientations; k++ {
			img, err := a.decode(vid, f, types.ChannelOrientation(k))
			if err != nil {
				return 0, 0, err
			}
			imageproc.WriteChannel(dst, imageproc.ResizeMask(img, W, H), types.NumOrientations, k, pixelScale)
		}
	}
	return nativeW, nativeH, nil
}

func (a *Assembler) read(vid string, f int, ch types.Channel) ([]byte, error) {
	data, err := a.video.ReadFrame(vid, f, ch)
	if err != nil {
		return nil, types.DataAccessErrorf("frame %s/%d %v: %w", vid, f, ch, err)
	}
	return data, nil
}

func (a *Assembler) decode(vid string, f int, ch types.Channel) (image.Image, error) {
	data, err := a.read(vid, f, ch)
	if err != nil {
		return nil, err
	}
	img, err := a.decoder.Decode(data)
	if err != nil {
		return nil, types.DataAccessErrorf("frame %s/%d %v: %w", vid, f, ch, err)
	}
	return img, nil
}

// FrameImage converts step t of example e of an image tensor back to a
// picture, for inspection
func FrameImage(images *types.Tensor, e, t int) *image.NRGBA {
	h, w := images.Shape[2], images.Shape[3]
	off := images.Index(e, t)
	return imageproc.ReadRGB(images.Data[off:off+h*w*3], w, h, pixelScale)
}

// RescaleBox maps a box from native pixel coordinates to the resized frame
func RescaleBox(box types.Box, nativeW, nativeH, inpW, inpH int) types.Box {
	return box.Scale(float32(inpW)/float32(nativeW), float32(inpH)/float32(nativeH))
}

// UnscaleBox is the inverse of RescaleBox
func UnscaleBox(box types.Box, nativeW, nativeH, inpW, inpH int) types.Box {
	return box.Scale(float32(nativeW)/float32(inpW), float32(nativeH)/float32(inpH))
}

// BoxInFrame reports whether box lies within [0,w] x [0,h], allowing eps of
// rounding slack.
func BoxInFrame(box types.Box, w, h int, eps float32) bool {
	lo := math32.Min(box.Left, box.Right)
	hi := math32.Max(box.Left, box.Right)
	top := math32.Min(box.Top, box.Bottom)
	bottom := math32.Max(box.Top, box.Bottom)
	return lo >= -eps && top >= -eps && hi <= float32(w)+eps && bottom <= float32(h)+eps
}
