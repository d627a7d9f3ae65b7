package matching

import (
	"fmt"
	"image"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/codec"
	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Sequence index ranges of the matching splits
const (
	TrainSequences = 13
	TotalSequences = 21
)

// SplitSequences returns the sequence indices of a named split
func SplitSequences(split string) ([]int, error) {
	var lo, hi int
	switch split {
	case "train":
		lo, hi = 0, TrainSequences
	case "valid":
		lo, hi = TrainSequences, TotalSequences
	default:
		return nil, types.ConfigErrorf("unknown matching split %q", split)
	}
	seqs := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		seqs = append(seqs, i)
	}
	return seqs, nil
}

// storeFrames loads image frames of one video on demand and keeps them
// decoded. Not safe for concurrent use.
type storeFrames struct {
	video   source.VideoSource
	decoder *codec.Decoder
	vid     string
	cache   map[int]image.Image
}

func (s *storeFrames) Frame(f int) (image.Image, error) {
	if img, ok := s.cache[f]; ok {
		return img, nil
	}
	data, err := s.video.ReadFrame(s.vid, f, types.ChannelImage)
	if err != nil {
		return nil, err
	}
	img, err := s.decoder.Decode(data)
	if err != nil {
		return nil, types.DataAccessErrorf("video %s frame %d: %w", s.vid, f, err)
	}
	s.cache[f] = img
	return img, nil
}

// SequenceFromStore builds the ground truth of video vid from store, with
// objects in store order, and a loader that reads frames lazily.
func SequenceFromStore(store source.Dataset, vid string) (Sequence, error) {
	numFrames, err := store.NumFrames(vid)
	if err != nil {
		return Sequence{}, err
	}
	oids, err := store.ObjectIDs(vid)
	if err != nil {
		return Sequence{}, err
	}
	gt := types.NewSequenceGT(len(oids), numFrames)
	for i, oid := range oids {
		frames, err := store.ValidFrames(vid, oid)
		if err != nil {
			return Sequence{}, err
		}
		for _, f := range frames {
			if f < 0 || f >= numFrames {
				return Sequence{}, types.DataAccessErrorf("video %s object %s: frame %d outside [0,%d)", vid, oid, f, numFrames)
			}
			box, err := store.Box(vid, oid, f)
			if err != nil {
				return Sequence{}, err
			}
			gt.Boxes[i][f] = box
			gt.Presence[i][f] = true
		}
	}
	return Sequence{
		Name:   vid,
		GT:     gt,
		Frames: &storeFrames{video: store, decoder: codec.New(), vid: vid, cache: map[int]image.Image{}},
	}, nil
}

// Dataset samples pairs from the videos at positions seqs of the sorted
// video list, with a generator seeded from seed.
func Dataset(log logs.Log, store source.Dataset, seqs []int, sampler *Sampler, seed uint64) (*types.PairBatch, error) {
	vids, err := store.VideoIDs()
	if err != nil {
		return nil, err
	}
	sequences := make([]Sequence, 0, len(seqs))
	for _, i := range seqs {
		if i < 0 || i >= len(vids) {
			return nil, types.DataAccessErrorf("sequence %d out of range, store has %d videos", i, len(vids))
		}
		seq, err := SequenceFromStore(store, vids[i])
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		sequences = append(sequences, seq)
	}

	pairs, err := sampler.SamplePairs(sequences, NewRand(seed))
	if err != nil {
		return nil, err
	}
	opts := sampler.Options()
	log.Infof("Matching pairs %v (%vx%v) from %v sequences", pairs.Len(), opts.PatchWidth, opts.PatchHeight, len(sequences))
	return pairs, nil
}
