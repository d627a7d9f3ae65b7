package kitti

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/types"
)

// DefaultTargetTypes are the object classes kept by default
var DefaultTargetTypes = []string{"Car"}

// Label is one line of a label_02 file
type Label struct {
	Frame     int
	Track     int
	Type      string
	Truncated int
	Occluded  int
	Box       types.Box
}

// ParseLabels reads label_02 lines of the form
// "frame track type truncated occluded alpha left top right bottom ...".
// Malformed lines are logged and skipped.
func ParseLabels(log logs.Log, r io.Reader) ([]Label, error) {
	var labels []Label
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l, err := parseLine(line)
		if err != nil {
			log.Warnf("Skipping label line %v: %v", lineNo, err)
			continue
		}
		labels = append(labels, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}

func parseLine(line string) (Label, error) {
	parts := strings.Fields(line)
	if len(parts) < 10 {
		return Label{}, fmt.Errorf("expected at least 10 fields, got %d", len(parts))
	}
	ints := make([]int, 5)
	for _, i := range []int{0, 1, 3, 4} {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return Label{}, fmt.Errorf("field %d: %w", i, err)
		}
		ints[i] = v
	}
	var box [4]float32
	for i := range box {
		v, err := strconv.ParseFloat(parts[6+i], 32)
		if err != nil {
			return Label{}, fmt.Errorf("field %d: %w", 6+i, err)
		}
		box[i] = float32(v)
	}
	return Label{
		Frame:     ints[0],
		Track:     ints[1],
		Type:      parts[2],
		Truncated: ints[3],
		Occluded:  ints[4],
		Box:       types.BoxFromArray(box),
	}, nil
}

// Tracks is the ground truth of one video. Frame indices are relative to
// FrameStart, the smallest frame number in the label file.
type Tracks struct {
	FrameStart int
	NumFrames  int
	// TrackIDs[i] is the label_02 track number of object i
	TrackIDs []int
	Frames   [][]int
	Boxes    [][]types.Box
}

// BuildTracks groups labels into per-object tracks, keeping labelled tracks
// (track != -1) whose type is in targetTypes. Objects are ordered by track
// number. The frame range covers every line, including filtered ones.
func BuildTracks(labels []Label, targetTypes []string) *Tracks {
	keep := map[string]bool{}
	for _, t := range targetTypes {
		keep[t] = true
	}
	tr := &Tracks{}
	if len(labels) == 0 {
		return tr
	}

	first, last := labels[0].Frame, labels[0].Frame
	byTrack := map[int][]Label{}
	for _, l := range labels {
		first = min(first, l.Frame)
		last = max(last, l.Frame)
		if l.Track != -1 && keep[l.Type] {
			byTrack[l.Track] = append(byTrack[l.Track], l)
		}
	}
	tr.FrameStart = first
	tr.NumFrames = last - first + 1

	for id := range byTrack {
		tr.TrackIDs = append(tr.TrackIDs, id)
	}
	sort.Ints(tr.TrackIDs)
	for _, id := range tr.TrackIDs {
		ls := byTrack[id]
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].Frame < ls[j].Frame })
		var frames []int
		var boxes []types.Box
		for _, l := range ls {
			f := l.Frame - first
			// a repeated frame keeps the last line
			if n := len(frames); n > 0 && frames[n-1] == f {
				boxes[n-1] = l.Box
				continue
			}
			frames = append(frames, f)
			boxes = append(boxes, l.Box)
		}
		tr.Frames = append(tr.Frames, frames)
		tr.Boxes = append(tr.Boxes, boxes)
	}
	return tr
}

// ObjectIDs returns the object ids, "%04d" of the object index
func (t *Tracks) ObjectIDs() []string {
	ids := make([]string, len(t.TrackIDs))
	for i := range ids {
		ids[i] = fmt.Sprintf("%04d", i)
	}
	return ids
}

// object resolves an object id to its index
func (t *Tracks) object(oid string) (int, error) {
	idx, err := strconv.Atoi(oid)
	if err != nil || idx < 0 || idx >= len(t.TrackIDs) {
		return 0, types.DataAccessErrorf("unknown object %q", oid)
	}
	return idx, nil
}
