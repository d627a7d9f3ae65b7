// Package kitti reads the KITTI tracking benchmark layout: image_02 frame
// folders and label_02 track annotations.
package kitti

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/internal/utils"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Named splits
const (
	SplitTrain    = "train"
	SplitValid    = "valid"
	SplitTrainAll = "train_all"
	SplitTest     = "test"
)

// NumTrainVideos is the number of leading training videos in the train split
const NumTrainVideos = 13

// Dataset serves one split of a KITTI tracking folder. Labels of a video are
// parsed on first use and kept.
type Dataset struct {
	log         logs.Log
	split       string
	imageDir    string
	labelDir    string
	predDir     string
	targetTypes []string

	mu     sync.Mutex
	tracks map[string]*Tracks
	frames map[string][]string
}

// Open prepares split of the dataset under folder
func Open(log logs.Log, folder, split string) (*Dataset, error) {
	d := &Dataset{
		log:         log,
		split:       split,
		targetTypes: DefaultTargetTypes,
		tracks:      map[string]*Tracks{},
		frames:      map[string][]string{},
	}
	switch split {
	case SplitTrain, SplitValid, SplitTrainAll:
		d.imageDir = filepath.Join(folder, "training", "image_02")
		d.labelDir = filepath.Join(folder, "training", "label_02")
	case SplitTest:
		d.imageDir = filepath.Join(folder, "testing", "image_02")
	default:
		return nil, types.ConfigErrorf("unknown split %q", split)
	}
	if !utils.DirExists(d.imageDir) {
		return nil, types.DataAccessErrorf("image folder %s not found", d.imageDir)
	}
	return d, nil
}

// SetTargetTypes replaces the object classes kept from the labels
func (d *Dataset) SetTargetTypes(targetTypes []string) {
	d.mu.Lock()
	d.targetTypes = targetTypes
	d.tracks = map[string]*Tracks{}
	d.mu.Unlock()
}

// SetPredictionFolder points at per-frame foreground and orientation maps,
// laid out as <dir>/<vid>/<frame>/foreground_pred.png and
// <dir>/<vid>/<frame>/orientation_pred/NN.png
func (d *Dataset) SetPredictionFolder(dir string) {
	d.predDir = dir
}

// HasPredictions reports whether a prediction folder is configured
func (d *Dataset) HasPredictions() bool {
	return d.predDir != ""
}

// Split returns the split name
func (d *Dataset) Split() string {
	return d.split
}

// Annotated reports whether the split carries labels
func (d *Dataset) Annotated() bool {
	return d.labelDir != ""
}

// VideoIDs lists the video folders of the split
func (d *Dataset) VideoIDs() ([]string, error) {
	entries, err := os.ReadDir(d.imageDir)
	if err != nil {
		return nil, types.DataAccessErrorf("failed to list videos: %w", err)
	}
	var all []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "0") {
			all = append(all, e.Name())
		}
	}
	sort.Strings(all)
	switch d.split {
	case SplitTrain:
		return all[:min(NumTrainVideos, len(all))], nil
	case SplitValid:
		return all[min(NumTrainVideos, len(all)):], nil
	}
	return all, nil
}

// ObjectIDs returns nil for the unlabelled test split
func (d *Dataset) ObjectIDs(vid string) ([]string, error) {
	if !d.Annotated() {
		return nil, nil
	}
	tr, err := d.ensureTracks(vid)
	if err != nil {
		return nil, err
	}
	return tr.ObjectIDs(), nil
}

// ValidFrames returns the frames where object oid is labelled
func (d *Dataset) ValidFrames(vid, oid string) ([]int, error) {
	tr, idx, err := d.object(vid, oid)
	if err != nil {
		return nil, err
	}
	return tr.Frames[idx], nil
}

// Box returns the labelled box of object oid on frame
func (d *Dataset) Box(vid, oid string, frame int) (types.Box, error) {
	tr, idx, err := d.object(vid, oid)
	if err != nil {
		return types.Box{}, err
	}
	frames := tr.Frames[idx]
	i := sort.SearchInts(frames, frame)
	if i == len(frames) || frames[i] != frame {
		return types.Box{}, types.DataAccessErrorf("video %s object %s has no box on frame %d", vid, oid, frame)
	}
	return tr.Boxes[idx][i], nil
}

// NumFrames returns the number of frame images of vid
func (d *Dataset) NumFrames(vid string) (int, error) {
	ids, err := d.frameIDs(vid)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ReadFrame returns the raw png of one channel. The image channel comes from
// image_02; probability maps from the prediction folder.
func (d *Dataset) ReadFrame(vid string, frame int, ch types.Channel) ([]byte, error) {
	ids, err := d.frameIDs(vid)
	if err != nil {
		return nil, err
	}
	if frame < 0 || frame >= len(ids) {
		return nil, types.DataAccessErrorf("video %s has no frame %d", vid, frame)
	}
	var path string
	if ch == types.ChannelImage {
		path = filepath.Join(d.imageDir, vid, ids[frame]+".png")
	} else {
		if !d.HasPredictions() {
			return nil, types.DataAccessErrorf("no prediction folder for channel %s", ch)
		}
		path = filepath.Join(d.predDir, vid, ids[frame], ch.String()+".png")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.DataAccessErrorf("video %s frame %d %s: %w", vid, frame, ch, err)
	}
	return data, nil
}

// frameIDs lists the six digit frame names of vid in order
func (d *Dataset) frameIDs(vid string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ids, ok := d.frames[vid]; ok {
		return ids, nil
	}
	files, err := utils.ListImageFiles(filepath.Join(d.imageDir, vid))
	if err != nil {
		return nil, types.DataAccessErrorf("failed to list frames of %s: %w", vid, err)
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		if len(name) < 6 {
			continue
		}
		ids = append(ids, name[:6])
	}
	sort.Strings(ids)
	d.frames[vid] = ids
	return ids, nil
}

// ensureTracks parses the label file of vid once
func (d *Dataset) ensureTracks(vid string) (*Tracks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tr, ok := d.tracks[vid]; ok {
		return tr, nil
	}
	path := filepath.Join(d.labelDir, vid+".txt")
	f, err := os.Open(path)
	if err != nil {
		return nil, types.DataAccessErrorf("failed to open labels of %s: %w", vid, err)
	}
	defer f.Close()
	labels, err := ParseLabels(d.log, f)
	if err != nil {
		return nil, types.DataAccessErrorf("video %s: %w", vid, err)
	}
	tr := BuildTracks(labels, d.targetTypes)
	d.tracks[vid] = tr
	return tr, nil
}

func (d *Dataset) object(vid, oid string) (*Tracks, int, error) {
	if !d.Annotated() {
		return nil, 0, types.DataAccessErrorf("split %s has no labels", d.split)
	}
	tr, err := d.ensureTracks(vid)
	if err != nil {
		return nil, 0, err
	}
	idx, err := tr.object(oid)
	if err != nil {
		return nil, 0, fmt.Errorf("video %s: %w", vid, err)
	}
	return tr, idx, nil
}
