package matching

import (
	"fmt"
	"image"
	"math/rand/v2"

	"github.com/menta2k/tracking-data/pkg/types"
)

// Options controls pair sampling
type Options struct {
	PatchHeight int
	PatchWidth  int
	Jitter      Jitter
	NumPos      int
	NumNeg      int
	Shuffle     bool
}

// FrameLoader returns the decoded image of a frame
type FrameLoader interface {
	Frame(f int) (image.Image, error)
}

// ImageList is a FrameLoader over images held in memory
type ImageList []image.Image

// Frame returns the image of frame f
func (l ImageList) Frame(f int) (image.Image, error) {
	if f < 0 || f >= len(l) || l[f] == nil {
		return nil, types.DataAccessErrorf("no image for frame %d", f)
	}
	return l[f], nil
}

// Sequence is the input of one sequence: per-object ground truth plus frames
type Sequence struct {
	Name   string
	GT     types.SequenceGT
	Frames FrameLoader
}

// Sampler draws positive and negative patch pairs. It holds no mutable
// state; randomness comes only from the generator passed to each call.
type Sampler struct {
	opts Options
}

// NewSampler validates opts and creates a Sampler
func NewSampler(opts Options) (*Sampler, error) {
	if opts.PatchHeight < 1 || opts.PatchWidth < 1 {
		return nil, types.ConfigErrorf("invalid patch size %dx%d", opts.PatchWidth, opts.PatchHeight)
	}
	if opts.NumPos < 0 || opts.NumNeg < 0 {
		return nil, types.ConfigErrorf("negative pair counts (%d positive, %d negative)", opts.NumPos, opts.NumNeg)
	}
	if opts.Jitter.PaddingNoise < 0 || opts.Jitter.CenterNoise < 0 {
		return nil, types.ConfigErrorf("noise must not be negative")
	}
	return &Sampler{opts: opts}, nil
}

// Options returns the sampling options
func (s *Sampler) Options() Options {
	return s.opts
}

// SampleSequence draws NumNeg negative pairs followed by NumPos positive pairs
// from one sequence.
func (s *Sampler) SampleSequence(seq Sequence, rng *rand.Rand) (*types.PairBatch, error) {
	gt := seq.GT
	numObj := gt.NumObjects()
	present := make([][]int, numObj)
	var withAny []int
	multi := 0
	for i := 0; i < numObj; i++ {
		present[i] = gt.PresentFrames(i)
		if len(present[i]) > 0 {
			withAny = append(withAny, i)
		}
		if len(present[i]) >= 2 {
			multi++
		}
	}
	if s.opts.NumNeg > 0 && len(withAny) < 2 {
		return nil, types.SamplingErrorf("sequence %s: %d annotated objects, need 2 for negative pairs", seq.Name, len(withAny))
	}
	if s.opts.NumPos > 0 && multi == 0 {
		return nil, types.SamplingErrorf("sequence %s: no object present in 2 or more frames", seq.Name)
	}

	out := &types.PairBatch{}
	for i := 0; i < s.opts.NumNeg; i++ {
		a, b := 0, 0
		for a == b {
			a = withAny[rng.IntN(len(withAny))]
			b = withAny[rng.IntN(len(withAny))]
		}
		fa := present[a][rng.IntN(len(present[a]))]
		fb := present[b][rng.IntN(len(present[b]))]
		p0, p1, err := s.cropPair(seq, a, fa, b, fb, rng)
		if err != nil {
			return nil, err
		}
		out.Append(p0, p1, 0)
	}

	for i := 0; i < s.opts.NumPos; i++ {
		obj := rng.IntN(numObj)
		for len(present[obj]) <= 1 {
			obj = rng.IntN(numObj)
		}
		frames := present[obj]
		ia, ib := 0, 0
		for ia == ib {
			ia = rng.IntN(len(frames))
			ib = rng.IntN(len(frames))
		}
		p0, p1, err := s.cropPair(seq, obj, frames[ia], obj, frames[ib], rng)
		if err != nil {
			return nil, err
		}
		out.Append(p0, p1, 1)
	}
	return out, nil
}

func (s *Sampler) cropPair(seq Sequence, objA, frameA, objB, frameB int, rng *rand.Rand) (*image.NRGBA, *image.NRGBA, error) {
	p0, err := s.crop(seq, objA, frameA, rng)
	if err != nil {
		return nil, nil, err
	}
	p1, err := s.crop(seq, objB, frameB, rng)
	if err != nil {
		return nil, nil, err
	}
	return p0, p1, nil
}

func (s *Sampler) crop(seq Sequence, obj, frame int, rng *rand.Rand) (*image.NRGBA, error) {
	img, err := seq.Frames.Frame(frame)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", seq.Name, err)
	}
	patch, err := CropPatch(img, seq.GT.Boxes[obj][frame], s.opts.PatchWidth, s.opts.PatchHeight, s.opts.Jitter, rng)
	if err != nil {
		return nil, fmt.Errorf("sequence %s object %d frame %d: %w", seq.Name, obj, frame, err)
	}
	return patch, nil
}

// SamplePairs samples every sequence in order and concatenates the results.
// With Shuffle set the combined batch is permuted with rng. Any failing
// sequence fails the whole call.
func (s *Sampler) SamplePairs(seqs []Sequence, rng *rand.Rand) (*types.PairBatch, error) {
	all := &types.PairBatch{}
	for _, seq := range seqs {
		pairs, err := s.SampleSequence(seq, rng)
		if err != nil {
			return nil, err
		}
		all.Concat(pairs)
	}
	if s.opts.Shuffle {
		rng.Shuffle(all.Len(), all.Swap)
	}
	return all, nil
}
