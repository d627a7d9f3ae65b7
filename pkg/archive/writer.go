package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/internal/utils"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Writer builds a sharded archive. Videos are assigned to shards round robin,
// and all entries of one video go to the same shard.
type Writer struct {
	log     logs.Log
	files   []*os.File
	shards  []*zip.Writer
	next    int
	videoTo map[string]int
	format  string
}

// NewWriter creates numShards zip files named <prefix>-NNNNN-of-MMMMM.zip
func NewWriter(log logs.Log, prefix string, numShards int) (*Writer, error) {
	if numShards < 1 {
		return nil, types.ConfigErrorf("shard count must be positive, got %d", numShards)
	}
	if err := utils.EnsureDir(filepath.Dir(prefix)); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	w := &Writer{
		log:     log,
		videoTo: map[string]int{},
		format:  "png",
	}
	for i := 0; i < numShards; i++ {
		f, err := os.Create(utils.ShardName(prefix, i, numShards))
		if err != nil {
			w.abort()
			return nil, fmt.Errorf("failed to create shard: %w", err)
		}
		w.files = append(w.files, f)
		w.shards = append(w.shards, zip.NewWriter(f))
	}
	return w, nil
}

// SetImageFormat selects the encoding used by AddFrameImage for the image
// channel: "png" (default) or "webp". Probability maps are always png.
func (w *Writer) SetImageFormat(format string) error {
	switch format {
	case "png", "webp":
		w.format = format
		return nil
	}
	return types.ConfigErrorf("unsupported archive image format %q", format)
}

// AddVideo registers a video and writes its metadata. annotated is false for
// videos without ground truth.
func (w *Writer) AddVideo(vid string, numFrames int, annotated bool) error {
	if _, ok := w.videoTo[vid]; ok {
		return fmt.Errorf("video %s already added", vid)
	}
	w.videoTo[vid] = w.next
	w.next = (w.next + 1) % len(w.shards)
	return w.writeJSON(vid, metaKey(vid), videoMeta{NumFrames: numFrames, Annotated: annotated})
}

// AddFrame stores an already encoded payload; ext is its format extension
func (w *Writer) AddFrame(vid string, frame int, ch types.Channel, data []byte, ext string) error {
	return w.write(vid, frameKey(vid, frame, ch)+"."+ext, data)
}

// AddFrameImage encodes img and stores it as a frame payload
func (w *Writer) AddFrameImage(vid string, frame int, ch types.Channel, img image.Image) error {
	var buf bytes.Buffer
	ext := "png"
	if ch == types.ChannelImage && w.format == "webp" {
		ext = "webp"
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
	} else if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return w.AddFrame(vid, frame, ch, buf.Bytes(), ext)
}

// AddObject stores one object track. frames must be sorted and boxes[i]
// belongs to frames[i].
func (w *Writer) AddObject(vid, oid string, frames []int, boxes []types.Box) error {
	if len(frames) != len(boxes) {
		return fmt.Errorf("object %s/%s: %d frames but %d boxes", vid, oid, len(frames), len(boxes))
	}
	for i := 1; i < len(frames); i++ {
		if frames[i] <= frames[i-1] {
			return fmt.Errorf("object %s/%s: frame indices not strictly increasing", vid, oid)
		}
	}
	rec := objectRecord{FrameIndices: frames, BBox: make([][4]float32, len(boxes))}
	for i, b := range boxes {
		rec.BBox[i] = b.Array()
	}
	return w.writeJSON(vid, objectKey(vid, oid), rec)
}

// Close finalizes every shard
func (w *Writer) Close() error {
	var first error
	for i := range w.shards {
		if err := w.shards[i].Close(); err != nil && first == nil {
			first = err
		}
		if err := w.files[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	w.log.Infof("Archive: wrote %v videos into %v shards", len(w.videoTo), len(w.shards))
	return first
}

func (w *Writer) abort() {
	for _, f := range w.files {
		f.Close()
		os.Remove(f.Name())
	}
}

func (w *Writer) writeJSON(vid, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.write(vid, name, data)
}

func (w *Writer) write(vid, name string, data []byte) error {
	shard, ok := w.videoTo[vid]
	if !ok {
		return fmt.Errorf("video %s not added", vid)
	}
	// payloads are already compressed images
	method := zip.Store
	if filepath.Ext(name) == ".json" {
		method = zip.Deflate
	}
	f, err := w.shards[shard].CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}
