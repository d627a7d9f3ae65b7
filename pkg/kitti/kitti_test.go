package kitti

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/tracking-data/internal/synth"
	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/imageproc"
	"github.com/menta2k/tracking-data/pkg/types"
	"github.com/menta2k/tracking-data/pkg/window"
)

const sampleLabels = `0 -1 DontCare -1 -1 -10.000000 219.310000 188.490000 245.500000 218.560000 -1000.000000 -1000.000000
0 0 Van 0 0 -1.793451 296.744956 161.752147 455.226042 292.372804 2.000000 1.823255 4.433886
0 1 Car 0 0 -1.936993 737.619499 161.531951 931.112229 374.000000 1.739063 1.586417 3.595200
1 1 Car 0 0 -1.935205 745.017137 156.393157 938.839722 374.000000 1.739063 1.586417 3.595200
2 1 Car 0 0 -1.933452 752.406061 151.206469 948.140012 374.000000
broken line
3 2 Car 1 2 0.1 10 20 30 40
3 1 Car x 0 -1.9 1 2 3 4
3 2 Pedestrian 0 0 0 1 1 2 2
4 2 Car 0 0 0.1 11 21 31 41
`

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(logs.NewTestingLog(t), strings.NewReader(sampleLabels))
	require.NoError(t, err)
	// the "broken line" and the line with a non-numeric truncation are skipped
	require.Len(t, labels, 8)
	require.Equal(t, Label{
		Frame: 0, Track: 1, Type: "Car",
		Box: types.Box{Left: 737.619499, Top: 161.531951, Right: 931.112229, Bottom: 374},
	}, labels[2])
	require.Equal(t, 1, labels[5].Truncated)
	require.Equal(t, 2, labels[5].Occluded)
}

func TestBuildTracks(t *testing.T) {
	labels, err := ParseLabels(logs.NewTestingLog(t), strings.NewReader(sampleLabels))
	require.NoError(t, err)

	tr := BuildTracks(labels, DefaultTargetTypes)
	require.Equal(t, 0, tr.FrameStart)
	require.Equal(t, 5, tr.NumFrames)
	require.Equal(t, []int{1, 2}, tr.TrackIDs)
	require.Equal(t, []string{"0000", "0001"}, tr.ObjectIDs())
	require.Equal(t, []int{0, 1, 2}, tr.Frames[0])
	require.Equal(t, []int{3, 4}, tr.Frames[1])
	require.Equal(t, types.Box{Left: 11, Top: 21, Right: 31, Bottom: 41}, tr.Boxes[1][1])

	tr = BuildTracks(labels, []string{"Car", "Van"})
	require.Equal(t, []int{0, 1, 2}, tr.TrackIDs)
}

func TestBuildTracksRelativeFrames(t *testing.T) {
	labels := []Label{
		{Frame: 7, Track: 3, Type: "Car"},
		{Frame: 5, Track: -1, Type: "DontCare"},
		{Frame: 9, Track: 3, Type: "Car"},
	}
	tr := BuildTracks(labels, DefaultTargetTypes)
	require.Equal(t, 5, tr.FrameStart)
	require.Equal(t, 5, tr.NumFrames)
	require.Equal(t, []int{2, 4}, tr.Frames[0])

	empty := BuildTracks(nil, DefaultTargetTypes)
	require.Empty(t, empty.ObjectIDs())
}

// writeFolder lays out a small KITTI tree with numVideos training videos and
// one test video.
func writeFolder(t *testing.T, numVideos int) string {
	root := t.TempDir()
	for _, part := range []string{"training", "testing"} {
		n := numVideos
		if part == "testing" {
			n = 1
		}
		for v := 0; v < n; v++ {
			vid := fmt.Sprintf("%04d", v)
			dir := filepath.Join(root, part, "image_02", vid)
			require.NoError(t, os.MkdirAll(dir, 0755))
			for f := 0; f < 5; f++ {
				path := filepath.Join(dir, fmt.Sprintf("%06d.png", f))
				require.NoError(t, imageproc.SaveImage(synth.FrameImage(40, 20, f), path, "png", 0, false))
			}
			if part == "training" {
				labelDir := filepath.Join(root, part, "label_02")
				require.NoError(t, os.MkdirAll(labelDir, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(labelDir, vid+".txt"), []byte(sampleLabels), 0644))
			}
		}
	}
	// stray entries that are not video folders
	require.NoError(t, os.WriteFile(filepath.Join(root, "training", "image_02", "README"), nil, 0644))
	return root
}

func TestSplits(t *testing.T) {
	root := writeFolder(t, 15)
	log := logs.NewTestingLog(t)

	counts := map[string]int{SplitTrain: 13, SplitValid: 2, SplitTrainAll: 15, SplitTest: 1}
	for split, n := range counts {
		ds, err := Open(log, root, split)
		require.NoError(t, err)
		vids, err := ds.VideoIDs()
		require.NoError(t, err)
		require.Len(t, vids, n, split)
	}

	valid, err := Open(log, root, SplitValid)
	require.NoError(t, err)
	vids, err := valid.VideoIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"0013", "0014"}, vids)

	_, err = Open(log, root, "dev")
	require.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestDatasetStore(t *testing.T) {
	root := writeFolder(t, 2)
	log := logs.NewTestingLog(t)
	ds, err := Open(log, root, SplitTrain)
	require.NoError(t, err)

	oids, err := ds.ObjectIDs("0001")
	require.NoError(t, err)
	require.Equal(t, []string{"0000", "0001"}, oids)

	frames, err := ds.ValidFrames("0001", "0001")
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, frames)

	box, err := ds.Box("0001", "0001", 3)
	require.NoError(t, err)
	require.Equal(t, types.Box{Left: 10, Top: 20, Right: 30, Bottom: 40}, box)

	_, err = ds.Box("0001", "0001", 2)
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = ds.ValidFrames("0001", "0009")
	require.True(t, errors.Is(err, types.ErrDataAccess))

	n, err := ds.NumFrames("0000")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, err = ds.ReadFrame("0000", 0, types.ChannelForeground)
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = ds.ReadFrame("0000", 5, types.ChannelImage)
	require.True(t, errors.Is(err, types.ErrDataAccess))

	windows, err := window.ComputeWindows(log, ds, 20, window.ModeTrainDense)
	require.NoError(t, err)
	// per video: object 0000 spans 3 frames, object 0001 spans 2
	require.Len(t, windows, 4)

	test, err := Open(log, root, SplitTest)
	require.NoError(t, err)
	oids, err = test.ObjectIDs("0000")
	require.NoError(t, err)
	require.Nil(t, oids)
}

func TestPack(t *testing.T) {
	root := writeFolder(t, 2)
	log := logs.NewTestingLog(t)
	ds, err := Open(log, root, SplitTrainAll)
	require.NoError(t, err)

	pred := filepath.Join(t.TempDir(), "pred")
	for v := 0; v < 2; v++ {
		for f := 0; f < 5; f++ {
			dir := filepath.Join(pred, fmt.Sprintf("%04d", v), fmt.Sprintf("%06d", f))
			require.NoError(t, imageproc.SaveImage(synth.Mask(40, 20, synth.ForegroundLevel), filepath.Join(dir, "foreground_pred.png"), "png", 0, false))
			for k := 0; k < types.NumOrientations; k++ {
				path := filepath.Join(dir, types.ChannelOrientation(k).String()+".png")
				require.NoError(t, imageproc.SaveImage(synth.Mask(40, 20, synth.OrientationLevel(k)), path, "png", 0, false))
			}
		}
	}
	ds.SetPredictionFolder(pred)

	prefix := filepath.Join(t.TempDir(), "kitti")
	w, err := archive.NewWriter(log, prefix, 2)
	require.NoError(t, err)
	require.NoError(t, Pack(log, ds, w))
	require.NoError(t, w.Close())

	store, err := archive.Open(prefix + "-*")
	require.NoError(t, err)
	defer store.Close()

	vids, err := store.VideoIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"0000", "0001"}, vids)

	frames, err := store.ValidFrames("0000", "0000")
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, frames)

	want, err := ds.ReadFrame("0001", 4, types.ChannelOrientation(3))
	require.NoError(t, err)
	got, err := store.ReadFrame("0001", 4, types.ChannelOrientation(3))
	require.NoError(t, err)
	require.Equal(t, want, got)
}
