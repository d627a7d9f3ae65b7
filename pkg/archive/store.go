package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/menta2k/tracking-data/internal/utils"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Store reads a sharded archive. It implements source.AnnotationStore and
// source.VideoSource. All metadata is loaded by Open; frame payloads are read
// on demand. A Store is safe for concurrent readers.
type Store struct {
	readers []*zip.ReadCloser
	videos  map[string]*video
	frames  map[string]*zip.File
}

type video struct {
	meta    videoMeta
	hasMeta bool
	objects map[string]*object
	ids     []string
}

type object struct {
	frames  []int
	boxes   []types.Box
	byFrame map[int]int
}

// Open opens every shard matching pattern, e.g. "data/train-*"
func Open(pattern string) (*Store, error) {
	files, err := utils.ListShards(pattern)
	if err != nil {
		return nil, err
	}
	return OpenFiles(files...)
}

// OpenFiles opens the given shard files
func OpenFiles(paths ...string) (*Store, error) {
	s := &Store{
		videos: map[string]*video{},
		frames: map[string]*zip.File{},
	}
	for _, p := range paths {
		r, err := zip.OpenReader(p)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open shard %s: %w", p, err)
		}
		s.readers = append(s.readers, r)
		if err := s.index(p, r); err != nil {
			s.Close()
			return nil, err
		}
	}
	for vid, v := range s.videos {
		if !v.hasMeta {
			s.Close()
			return nil, fmt.Errorf("video %s has no metadata", vid)
		}
		v.ids = types.SortedKeys(v.objects)
	}
	return s, nil
}

func (s *Store) index(shard string, r *zip.ReadCloser) error {
	owner := map[string]bool{}
	for _, f := range r.File {
		vid, kind, rest := splitEntry(f.Name)
		if vid == "" {
			continue
		}
		v := s.videos[vid]
		if v == nil {
			v = &video{objects: map[string]*object{}}
			s.videos[vid] = v
		} else if !owner[vid] {
			return fmt.Errorf("video %s appears in more than one shard (%s)", vid, shard)
		}
		owner[vid] = true

		switch kind {
		case "meta":
			if err := readJSON(f, &v.meta); err != nil {
				return err
			}
			v.hasMeta = true
		case "object":
			var rec objectRecord
			if err := readJSON(f, &rec); err != nil {
				return err
			}
			obj, err := newObject(rec)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			v.objects[rest] = obj
		case "frame":
			s.frames[rest] = f
		}
	}
	return nil
}

func newObject(rec objectRecord) (*object, error) {
	if len(rec.FrameIndices) != len(rec.BBox) {
		return nil, fmt.Errorf("%d frame indices but %d boxes", len(rec.FrameIndices), len(rec.BBox))
	}
	obj := &object{byFrame: map[int]int{}}
	order := make([]int, len(rec.FrameIndices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return rec.FrameIndices[order[i]] < rec.FrameIndices[order[j]]
	})
	for _, i := range order {
		obj.byFrame[rec.FrameIndices[i]] = len(obj.frames)
		obj.frames = append(obj.frames, rec.FrameIndices[i])
		obj.boxes = append(obj.boxes, types.BoxFromArray(rec.BBox[i]))
	}
	return obj, nil
}

func readJSON(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.Name, err)
	}
	return nil
}

// Close closes every shard
func (s *Store) Close() error {
	var first error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.readers = nil
	return first
}

// VideoIDs returns the ids of all videos, sorted
func (s *Store) VideoIDs() ([]string, error) {
	return types.SortedKeys(s.videos), nil
}

// ObjectIDs returns the sorted object ids of a video, or nil if the video is
// not annotated.
func (s *Store) ObjectIDs(vid string) ([]string, error) {
	v, err := s.video(vid)
	if err != nil {
		return nil, err
	}
	if !v.meta.Annotated && len(v.ids) == 0 {
		return nil, nil
	}
	return v.ids, nil
}

// ValidFrames returns the sorted annotated frames of an object
func (s *Store) ValidFrames(vid, oid string) ([]int, error) {
	obj, err := s.object(vid, oid)
	if err != nil {
		return nil, err
	}
	return obj.frames, nil
}

// Box returns the native-pixel box of an object at an annotated frame
func (s *Store) Box(vid, oid string, frame int) (types.Box, error) {
	obj, err := s.object(vid, oid)
	if err != nil {
		return types.Box{}, err
	}
	i, ok := obj.byFrame[frame]
	if !ok {
		return types.Box{}, types.DataAccessErrorf("object %s/%s has no box at frame %d", vid, oid, frame)
	}
	return obj.boxes[i], nil
}

// NumFrames returns the number of frames of a video
func (s *Store) NumFrames(vid string) (int, error) {
	v, err := s.video(vid)
	if err != nil {
		return 0, err
	}
	return v.meta.NumFrames, nil
}

// ReadFrame returns the encoded payload of one frame channel
func (s *Store) ReadFrame(vid string, frame int, ch types.Channel) ([]byte, error) {
	key := frameKey(vid, frame, ch)
	f, ok := s.frames[key]
	if !ok {
		return nil, types.DataAccessErrorf("missing entry %s", key)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Store) video(vid string) (*video, error) {
	v, ok := s.videos[vid]
	if !ok {
		return nil, types.DataAccessErrorf("unknown video %s", vid)
	}
	return v, nil
}

func (s *Store) object(vid, oid string) (*object, error) {
	v, err := s.video(vid)
	if err != nil {
		return nil, err
	}
	obj, ok := v.objects[oid]
	if !ok {
		return nil, types.DataAccessErrorf("unknown object %s/%s", vid, oid)
	}
	return obj, nil
}
