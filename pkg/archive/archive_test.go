package archive_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/tracking-data/internal/synth"
	"github.com/menta2k/tracking-data/internal/utils"
	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/codec"
	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
)

var _ source.Dataset = (*archive.Store)(nil)

var box = types.Box{Left: 10, Top: 10, Right: 20, Bottom: 30}

func testVideos() []synth.Video {
	return []synth.Video{
		{
			ID: "0000", NumFrames: 6, Width: 40, Height: 20, Annotated: true,
			Objects: []synth.Object{
				synth.Track("0001", box, 2, 3, 5),
				synth.Track("0000", box, synth.Frames(0, 4)...),
			},
		},
		{ID: "0001", NumFrames: 3, Width: 40, Height: 20, Annotated: true, Objects: []synth.Object{synth.Track("0000", box, 0, 1)}},
		{ID: "0002", NumFrames: 2, Width: 40, Height: 20},
	}
}

func openTestStore(t *testing.T, shards int) *archive.Store {
	prefix := filepath.Join(t.TempDir(), "train")
	require.NoError(t, synth.WriteArchive(logs.NewTestingLog(t), prefix, shards, testVideos()))
	s, err := archive.Open(prefix + "-*")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, shards := range []int{1, 2, 4} {
		s := openTestStore(t, shards)

		vids, err := s.VideoIDs()
		require.NoError(t, err)
		require.Equal(t, []string{"0000", "0001", "0002"}, vids)

		oids, err := s.ObjectIDs("0000")
		require.NoError(t, err)
		require.Equal(t, []string{"0000", "0001"}, oids)

		frames, err := s.ValidFrames("0000", "0001")
		require.NoError(t, err)
		require.Equal(t, []int{2, 3, 5}, frames)

		b, err := s.Box("0000", "0001", 5)
		require.NoError(t, err)
		require.Equal(t, types.Box{Left: 15, Top: 10, Right: 25, Bottom: 30}, b)

		n, err := s.NumFrames("0000")
		require.NoError(t, err)
		require.Equal(t, 6, n)
	}
}

func TestUnannotatedVideo(t *testing.T) {
	s := openTestStore(t, 1)
	oids, err := s.ObjectIDs("0002")
	require.NoError(t, err)
	require.Nil(t, oids)
}

func TestReadFrame(t *testing.T) {
	s := openTestStore(t, 2)
	dec := codec.New()

	data, err := s.ReadFrame("0000", 3, types.ChannelImage)
	require.NoError(t, err)
	img, err := dec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 40, img.Bounds().Dx())

	data, err = s.ReadFrame("0000", 3, types.ChannelOrientation(7))
	require.NoError(t, err)
	w, h, err := dec.DecodeConfig(data)
	require.NoError(t, err)
	require.Equal(t, 40, w)
	require.Equal(t, 20, h)
}

func TestMissingEntries(t *testing.T) {
	s := openTestStore(t, 1)

	_, err := s.ReadFrame("0000", 6, types.ChannelImage)
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = s.ObjectIDs("9999")
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = s.ValidFrames("0000", "0042")
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = s.Box("0000", "0001", 4)
	require.True(t, errors.Is(err, types.ErrDataAccess))
}

func TestConcurrentReads(t *testing.T) {
	s := openTestStore(t, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			if _, err := s.ReadFrame("0000", f%6, types.ChannelForeground); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
}

func TestWriterValidation(t *testing.T) {
	dir := t.TempDir()
	log := logs.NewTestingLog(t)

	_, err := archive.NewWriter(log, filepath.Join(dir, "x"), 0)
	require.Error(t, err)

	w, err := archive.NewWriter(log, filepath.Join(dir, "y"), 1)
	require.NoError(t, err)
	require.Error(t, w.SetImageFormat("gif"))
	require.NoError(t, w.SetImageFormat("webp"))
	require.Error(t, w.AddObject("0000", "0000", []int{1}, nil))
	require.NoError(t, w.AddVideo("0000", 3, true))
	require.Error(t, w.AddVideo("0000", 3, true))
	require.Error(t, w.AddObject("0000", "0000", []int{2, 1}, []types.Box{{}, {}}))
	require.NoError(t, w.AddFrameImage("0000", 0, types.ChannelImage, synth.FrameImage(8, 8, 0)))
	require.NoError(t, w.Close())

	s, err := archive.Open(filepath.Join(dir, "y-*"))
	require.NoError(t, err)
	defer s.Close()
	data, err := s.ReadFrame("0000", 0, types.ChannelImage)
	require.NoError(t, err)
	_, err = codec.New().Decode(data)
	require.NoError(t, err)
}

func TestDuplicateVideoAcrossShards(t *testing.T) {
	dir := t.TempDir()
	log := logs.NewTestingLog(t)
	videos := []synth.Video{{ID: "0000", NumFrames: 1, Width: 4, Height: 4}}
	require.NoError(t, synth.WriteArchive(log, filepath.Join(dir, "a"), 1, videos))
	require.NoError(t, synth.WriteArchive(log, filepath.Join(dir, "b"), 1, videos))

	_, err := archive.OpenFiles(
		filepath.Join(dir, utils.ShardName("a", 0, 1)),
		filepath.Join(dir, utils.ShardName("b", 0, 1)),
	)
	require.Error(t, err)
}
