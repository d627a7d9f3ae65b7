package batch

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/tracking-data/internal/synth"
	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/types"
	"github.com/menta2k/tracking-data/pkg/window"
)

const (
	nativeW = 40
	nativeH = 20
	inpW    = 20
	inpH    = 10
)

// countingSource records every frame channel read
type countingSource struct {
	*archive.Store
	mu    sync.Mutex
	reads map[types.Channel]int
}

func (c *countingSource) ReadFrame(vid string, f int, ch types.Channel) ([]byte, error) {
	c.mu.Lock()
	c.reads[ch]++
	c.mu.Unlock()
	return c.Store.ReadFrame(vid, f, ch)
}

func (c *countingSource) total() int {
	n := 0
	for _, v := range c.reads {
		n += v
	}
	return n
}

func testVideos() []synth.Video {
	return []synth.Video{
		{
			ID: "0000", NumFrames: 100, Width: nativeW, Height: nativeH, Annotated: true,
			Objects: []synth.Object{
				synth.Track("0000", types.Box{Left: 2, Top: 4, Right: 8, Bottom: 16}, 10, 11, 12, 13, 14),
			},
		},
		{
			ID: "0001", NumFrames: 8, Width: nativeW, Height: nativeH, Annotated: true,
			Objects: []synth.Object{
				synth.Track("0000", types.Box{Left: 0, Top: 0, Right: 30, Bottom: 20}, 0, 2, 3, 7),
			},
			Missing: []int{5},
		},
	}
}

func openStore(t *testing.T) *archive.Store {
	prefix := filepath.Join(t.TempDir(), "train")
	require.NoError(t, synth.WriteArchive(logs.NewTestingLog(t), prefix, 2, testVideos()))
	s, err := archive.Open(prefix + "-*")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newAssembler(t *testing.T, windowSize int) (*Assembler, []types.Window, *countingSource) {
	s := openStore(t)
	src := &countingSource{Store: s, reads: map[types.Channel]int{}}
	a, err := New(s, src, Options{WindowSize: windowSize, InpHeight: inpH, InpWidth: inpW})
	require.NoError(t, err)
	windows, err := window.ComputeWindows(logs.NewTestingLog(t), s, windowSize, window.ModeTrainDense)
	require.NoError(t, err)
	return a, windows, src
}

func TestNewRejectsBadShape(t *testing.T) {
	_, err := New(nil, nil, Options{WindowSize: 0, InpHeight: 1, InpWidth: 1})
	require.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestScenarioPresencePadding(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	require.Equal(t, types.Window{VideoID: "0000", ObjectID: "0000", FrameStart: 10}, windows[0])

	b, err := a.AssembleBatch(windows, []int{0}, types.AllFields)
	require.NoError(t, err)

	require.Equal(t, []int{1, 20}, b.Presence.Shape)
	want := make([]float32, 20)
	for i := 0; i < 5; i++ {
		want[i] = 1
	}
	require.Equal(t, want, b.Presence.Data)

	for tt := 0; tt < 20; tt++ {
		bx := b.Boxes.Data[b.Boxes.Index(0, tt) : b.Boxes.Index(0, tt)+4]
		if tt >= 5 {
			require.Equal(t, []float32{0, 0, 0, 0}, bx)
			continue
		}
		f := float32(10 + tt)
		require.InDeltaSlice(t, []float32{(2 + f) * 0.5, 4 * 0.5, (8 + f) * 0.5, 16 * 0.5}, bx, 1e-5)
	}
}

func TestImageryValues(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	b, err := a.AssembleBatch(windows, []int{0}, types.AllFields)
	require.NoError(t, err)

	require.Equal(t, []int{1, 20, inpH, inpW, 3}, b.Images.Shape)
	require.Equal(t, []int{1, 20, inpH, inpW, 1}, b.Foreground.Shape)
	require.Equal(t, []int{1, 20, inpH, inpW, 8}, b.Orientation.Shape)

	// window 10..29 lies inside the 100-frame video, so every step has imagery
	for tt := 0; tt < 20; tt++ {
		c := synth.FrameColor(10 + tt)
		require.InDelta(t, float32(c.R)/255, b.Images.At(0, tt, 3, 7, 0), 1.0/255)
		require.InDelta(t, float32(c.G)/255, b.Images.At(0, tt, 9, 19, 1), 1.0/255)
		require.InDelta(t, float32(c.B)/255, b.Images.At(0, tt, 0, 0, 2), 1.0/255)
		require.InDelta(t, float32(synth.ForegroundLevel)/255, b.Foreground.At(0, tt, 5, 5, 0), 1.0/255)
		for k := 0; k < 8; k++ {
			require.InDelta(t, float32(synth.OrientationLevel(k))/255, b.Orientation.At(0, tt, 2, 2, k), 1.0/255)
		}
	}
}

func TestWindowPastVideoEnd(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	// video 0001 has 8 frames and frame 5 has no payloads; presence alone
	// needs no imagery
	var idx []int
	for i, w := range windows {
		if w.VideoID == "0001" {
			idx = append(idx, i)
		}
	}
	require.Len(t, idx, 4)

	b, err := a.AssembleBatch(windows, idx[:1], types.Fields(types.FieldPresence))
	require.NoError(t, err)
	want := make([]float32, 20)
	want[0], want[2], want[3], want[7] = 1, 1, 1, 1
	require.Equal(t, want, b.Presence.Data)
}

func TestMissingPayloadIsError(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	var i int
	for i = range windows {
		if windows[i].VideoID == "0001" {
			break
		}
	}
	_, err := a.AssembleBatch(windows, []int{i}, types.Fields(types.FieldImage))
	require.True(t, errors.Is(err, types.ErrDataAccess))
}

func TestBadIndex(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	_, err := a.AssembleBatch(windows, []int{len(windows)}, types.AllFields)
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = a.AssembleBatch(windows, []int{-1}, types.AllFields)
	require.True(t, errors.Is(err, types.ErrDataAccess))
}

func TestUnknownWindow(t *testing.T) {
	a, _, _ := newAssembler(t, 20)
	_, err := a.AssembleBatch([]types.Window{{VideoID: "0042", ObjectID: "0000"}}, []int{0}, types.AllFields)
	require.True(t, errors.Is(err, types.ErrDataAccess))
	_, err = a.AssembleBatch([]types.Window{{VideoID: "0000", ObjectID: "0042"}}, []int{0}, types.AllFields)
	require.True(t, errors.Is(err, types.ErrDataAccess))
}

func TestEmptyFieldSet(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	_, err := a.AssembleBatch(windows, []int{0}, 0)
	require.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestOnlyRequestedChannelsAreRead(t *testing.T) {
	a, windows, src := newAssembler(t, 20)

	b, err := a.AssembleBatch(windows, []int{0}, types.Fields(types.FieldPresence))
	require.NoError(t, err)
	require.Nil(t, b.Images)
	require.Nil(t, b.Boxes)
	require.Equal(t, 0, src.total())

	// boxes need the native size, read from the image header of present frames only
	b, err = a.AssembleBatch(windows, []int{0}, types.Fields(types.FieldBox))
	require.NoError(t, err)
	require.NotNil(t, b.Boxes)
	require.Nil(t, b.Presence)
	require.Equal(t, 5, src.reads[types.ChannelImage])
	require.Equal(t, 5, src.total())

	_, err = a.AssembleBatch(windows, []int{0}, types.Fields(types.FieldForeground))
	require.NoError(t, err)
	require.Equal(t, 20, src.reads[types.ChannelForeground])
	require.Equal(t, 0, src.reads[types.ChannelOrientation(0)])
}

func TestBoxesInsideResizedFrame(t *testing.T) {
	a, windows, _ := newAssembler(t, 4)
	var idx []int
	for i := range windows {
		if windows[i].VideoID == "0000" {
			idx = append(idx, i)
		}
	}
	b, err := a.AssembleBatch(windows, idx, types.Fields(types.FieldBox, types.FieldPresence))
	require.NoError(t, err)
	for e := range idx {
		for tt := 0; tt < 4; tt++ {
			off := b.Boxes.Index(e, tt)
			bx := types.BoxFromArray([4]float32(b.Boxes.Data[off : off+4]))
			if b.Presence.At(e, tt) == 1 {
				require.True(t, BoxInFrame(bx, inpW, inpH, 1e-4), "box %v", bx)
			} else {
				require.Equal(t, types.Box{}, bx)
			}
		}
	}
}

func TestRescaleInverse(t *testing.T) {
	boxes := []types.Box{
		{Left: 0, Top: 0, Right: 1242, Bottom: 375},
		{Left: 296.74, Top: 161.75, Right: 455.22, Bottom: 292.01},
		{Left: 1.5, Top: 2.25, Right: 3, Bottom: 4},
	}
	for _, box := range boxes {
		r := RescaleBox(box, 1242, 375, 448, 128)
		require.True(t, BoxInFrame(r, 448, 128, 1e-3))
		back := UnscaleBox(r, 1242, 375, 448, 128)
		want, got := box.Array(), back.Array()
		require.InDeltaSlice(t, want[:], got[:], 1e-3)
	}
}

func TestConcurrentAssembly(t *testing.T) {
	a, windows, _ := newAssembler(t, 6)
	var wg sync.WaitGroup
	results := make([]*types.Batch, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := a.AssembleBatch(windows, []int{0, 0}, types.AllFields)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = b
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		require.Equal(t, results[0].Images.Data, results[i].Images.Data)
		require.Equal(t, results[0].Boxes.Data, results[i].Boxes.Data)
	}
}

func TestFrameImage(t *testing.T) {
	a, windows, _ := newAssembler(t, 20)
	b, err := a.AssembleBatch(windows, []int{0}, types.Fields(types.FieldImage))
	require.NoError(t, err)
	img := FrameImage(b.Images, 0, 2)
	require.Equal(t, inpW, img.Bounds().Dx())
	require.Equal(t, inpH, img.Bounds().Dy())
	c := synth.FrameColor(12)
	require.InDelta(t, c.R, img.NRGBAAt(4, 4).R, 1)
	require.InDelta(t, c.B, img.NRGBAAt(4, 4).B, 1)
}
