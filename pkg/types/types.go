package types

import (
	"fmt"
	"image"
	"sort"
	"strings"
)

// NumOrientations is the number of orientation-probability channels per frame
const NumOrientations = 8

// Box is a bounding box as (left, top, right, bottom)
type Box struct {
	Left   float32 `json:"left"`
	Top    float32 `json:"top"`
	Right  float32 `json:"right"`
	Bottom float32 `json:"bottom"`
}

// Width returns right - left
func (b Box) Width() float32 {
	return b.Right - b.Left
}

// Height returns bottom - top
func (b Box) Height() float32 {
	return b.Bottom - b.Top
}

// Scale multiplies x coordinates by sx and y coordinates by sy
func (b Box) Scale(sx, sy float32) Box {
	return Box{
		Left:   b.Left * sx,
		Top:    b.Top * sy,
		Right:  b.Right * sx,
		Bottom: b.Bottom * sy,
	}
}

// Array returns the box as [left, top, right, bottom]
func (b Box) Array() [4]float32 {
	return [4]float32{b.Left, b.Top, b.Right, b.Bottom}
}

// BoxFromArray builds a Box from [left, top, right, bottom]
func BoxFromArray(a [4]float32) Box {
	return Box{Left: a[0], Top: a[1], Right: a[2], Bottom: a[3]}
}

// Window is one training example's temporal extent: frames
// [FrameStart, FrameStart+windowSize) of one video, for one object.
type Window struct {
	VideoID    string `json:"video_id"`
	ObjectID   string `json:"object_id"`
	FrameStart int    `json:"frame_start"`
}

func (w Window) String() string {
	return fmt.Sprintf("%s/%s@%d", w.VideoID, w.ObjectID, w.FrameStart)
}

// Field selects one output array of an assembled batch
type Field uint8

const (
	FieldImage Field = 1 << iota
	FieldForeground
	FieldOrientation
	FieldBox
	FieldPresence
)

// FieldSet is a set of Fields
type FieldSet uint8

// AllFields selects every batch output
const AllFields = FieldSet(FieldImage | FieldForeground | FieldOrientation | FieldBox | FieldPresence)

var fieldNames = map[Field]string{
	FieldImage:       "x",
	FieldForeground:  "fg",
	FieldOrientation: "angle",
	FieldBox:         "bbox_gt",
	FieldPresence:    "s_gt",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Fields builds a FieldSet from individual fields
func Fields(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s |= FieldSet(f)
	}
	return s
}

// ParseFields converts field names ("x", "fg", "angle", "bbox_gt", "s_gt")
// into a FieldSet. Unknown names are a configuration error.
func ParseFields(names []string) (FieldSet, error) {
	var s FieldSet
	for _, name := range names {
		name = strings.TrimSpace(name)
		found := false
		for f, n := range fieldNames {
			if strings.EqualFold(n, name) {
				s |= FieldSet(f)
				found = true
				break
			}
		}
		if !found {
			return 0, ConfigErrorf("unknown batch field %q", name)
		}
	}
	return s, nil
}

// Has reports whether f is in the set
func (s FieldSet) Has(f Field) bool {
	return s&FieldSet(f) != 0
}

// Empty reports whether no field is selected
func (s FieldSet) Empty() bool {
	return s == 0
}

// Validate rejects empty sets and bits outside the known fields
func (s FieldSet) Validate() error {
	if s.Empty() {
		return ConfigErrorf("no batch fields requested")
	}
	if s&^AllFields != 0 {
		return ConfigErrorf("unknown batch field bits %#x", uint8(s&^AllFields))
	}
	return nil
}

// List returns the selected fields in a fixed order
func (s FieldSet) List() []Field {
	var out []Field
	for _, f := range []Field{FieldImage, FieldForeground, FieldOrientation, FieldBox, FieldPresence} {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s FieldSet) String() string {
	var names []string
	for _, f := range s.List() {
		names = append(names, f.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Channel identifies one stored per-frame payload
type Channel int

const (
	ChannelImage      Channel = -2
	ChannelForeground Channel = -1
)

// ChannelOrientation returns the channel of orientation bin k (0..7)
func ChannelOrientation(k int) Channel {
	return Channel(k)
}

// IsOrientation reports whether c is an orientation bin
func (c Channel) IsOrientation() bool {
	return c >= 0 && c < NumOrientations
}

func (c Channel) String() string {
	switch {
	case c == ChannelImage:
		return "image"
	case c == ChannelForeground:
		return "foreground_pred"
	case c.IsOrientation():
		return fmt.Sprintf("orientation_pred/%02d", int(c))
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// SequenceGT holds per-object ground truth for one sequence, indexed
// [object][frame].
type SequenceGT struct {
	Boxes    [][]Box
	Presence [][]bool
}

// NewSequenceGT allocates ground truth for numObjects x numFrames
func NewSequenceGT(numObjects, numFrames int) SequenceGT {
	gt := SequenceGT{
		Boxes:    make([][]Box, numObjects),
		Presence: make([][]bool, numObjects),
	}
	for i := range gt.Boxes {
		gt.Boxes[i] = make([]Box, numFrames)
		gt.Presence[i] = make([]bool, numFrames)
	}
	return gt
}

// NumObjects returns the number of object tracks
func (g SequenceGT) NumObjects() int {
	return len(g.Presence)
}

// NumFrames returns the number of frames
func (g SequenceGT) NumFrames() int {
	if len(g.Presence) == 0 {
		return 0
	}
	return len(g.Presence[0])
}

// PresentFrames lists the frames where object obj is annotated
func (g SequenceGT) PresentFrames(obj int) []int {
	var frames []int
	for f, p := range g.Presence[obj] {
		if p {
			frames = append(frames, f)
		}
	}
	return frames
}

// PairBatch is a flat set of patch pairs. Labels[i] is 1 when Images0[i] and
// Images1[i] show the same object instance.
type PairBatch struct {
	Images0 []*image.NRGBA
	Images1 []*image.NRGBA
	Labels  []uint8
}

// Len returns the number of pairs
func (p *PairBatch) Len() int {
	return len(p.Labels)
}

// Append adds one pair
func (p *PairBatch) Append(a, b *image.NRGBA, label uint8) {
	p.Images0 = append(p.Images0, a)
	p.Images1 = append(p.Images1, b)
	p.Labels = append(p.Labels, label)
}

// Concat appends every pair of o
func (p *PairBatch) Concat(o *PairBatch) {
	p.Images0 = append(p.Images0, o.Images0...)
	p.Images1 = append(p.Images1, o.Images1...)
	p.Labels = append(p.Labels, o.Labels...)
}

// Swap exchanges pairs i and j
func (p *PairBatch) Swap(i, j int) {
	p.Images0[i], p.Images0[j] = p.Images0[j], p.Images0[i]
	p.Images1[i], p.Images1[j] = p.Images1[j], p.Images1[i]
	p.Labels[i], p.Labels[j] = p.Labels[j], p.Labels[i]
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
