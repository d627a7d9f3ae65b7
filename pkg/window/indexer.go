package window

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Mode selects how windows are laid out over a video
type Mode string

const (
	// ModeTrainDense emits overlapping windows with stride 1 over each object's
	// annotated span.
	ModeTrainDense Mode = "train_dense"
	// ModeEvalNoOverlap is reserved for non-overlapping evaluation windows.
	// It is not implemented.
	ModeEvalNoOverlap Mode = "eval_no_overlap"
)

// MinLookahead is the number of trailing span frames that never start a window
const MinLookahead = 4

// Indexer enumerates and caches the windows of one annotation store
type Indexer struct {
	log        logs.Log
	windowSize int
	mode       Mode

	mu      sync.RWMutex
	store   source.AnnotationStore
	windows []types.Window
}

// NewIndexer creates an Indexer over store
func NewIndexer(log logs.Log, store source.AnnotationStore, windowSize int, mode Mode) *Indexer {
	return &Indexer{
		log:        log,
		store:      store,
		windowSize: windowSize,
		mode:       mode,
	}
}

// Windows returns the cached window table, computing it on first use
func (ix *Indexer) Windows() ([]types.Window, error) {
	ix.mu.RLock()
	w := ix.windows
	ix.mu.RUnlock()
	if w != nil {
		return w, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.windows != nil {
		return ix.windows, nil
	}
	w, err := ComputeWindows(ix.log, ix.store, ix.windowSize, ix.mode)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = []types.Window{}
	}
	ix.windows = w
	return w, nil
}

// Count returns the number of windows
func (ix *Indexer) Count() (int, error) {
	w, err := ix.Windows()
	if err != nil {
		return 0, err
	}
	return len(w), nil
}

// WindowSize returns the configured window length
func (ix *Indexer) WindowSize() int {
	return ix.windowSize
}

// Invalidate drops the cached window table
func (ix *Indexer) Invalidate() {
	ix.mu.Lock()
	ix.windows = nil
	ix.mu.Unlock()
}

// SetStore swaps the backing store and drops the cache
func (ix *Indexer) SetStore(store source.AnnotationStore) {
	ix.mu.Lock()
	ix.store = store
	ix.windows = nil
	ix.mu.Unlock()
}

// ComputeWindows lists every window of store, ordered by video id, then object
// (in store order), then frame start.
func ComputeWindows(log logs.Log, store source.AnnotationStore, windowSize int, mode Mode) ([]types.Window, error) {
	switch mode {
	case ModeTrainDense:
	case ModeEvalNoOverlap:
		return nil, types.ConfigErrorf("window mode %q is not implemented", mode)
	default:
		return nil, types.ConfigErrorf("window mode %q not supported", mode)
	}
	if windowSize < 1 {
		return nil, types.ConfigErrorf("window size must be positive, got %d", windowSize)
	}

	videoIDs, err := store.VideoIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	videoIDs = append([]string(nil), videoIDs...)
	sort.Strings(videoIDs)

	var windows []types.Window
	for _, vid := range videoIDs {
		objectIDs, err := store.ObjectIDs(vid)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects of video %s: %w", vid, err)
		}
		count := len(windows)
		for _, oid := range objectIDs {
			frames, err := store.ValidFrames(vid, oid)
			if err != nil {
				return nil, fmt.Errorf("failed to read frames of %s/%s: %w", vid, oid, err)
			}
			if len(frames) == 0 {
				log.Warnf("Vid %v object %v has no annotated frames", vid, oid)
				continue
			}
			first := frames[0]
			for k := 0; k < NumStarts(Span(frames)); k++ {
				windows = append(windows, types.Window{
					VideoID:    vid,
					ObjectID:   oid,
					FrameStart: first + k,
				})
			}
		}
		log.Infof("Vid %v Windows %v", vid, len(windows)-count)
	}
	return windows, nil
}

// Span returns last - first + 1 of a sorted frame list, counting gaps
func Span(frames []int) int {
	if len(frames) == 0 {
		return 0
	}
	return frames[len(frames)-1] - frames[0] + 1
}

// NumStarts returns the number of window starts for an object with the given span
func NumStarts(span int) int {
	return max(span-MinLookahead, 1)
}
