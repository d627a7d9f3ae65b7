// Package archive stores tracking videos in sharded zip files.
//
// Each shard holds whole videos laid out as
//
//	<vid>/meta.json
//	<vid>/video/frm_000000/image.png
//	<vid>/video/frm_000000/foreground_pred.png
//	<vid>/video/frm_000000/orientation_pred/00.png ... 07.png
//	<vid>/annotations/<oid>.json
//
// Frame payloads stay encoded; decoding is left to the consumer.
package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/menta2k/tracking-data/pkg/types"
)

type videoMeta struct {
	NumFrames int  `json:"num_frames"`
	Annotated bool `json:"annotated"`
}

type objectRecord struct {
	FrameIndices []int        `json:"frame_indices"`
	BBox         [][4]float32 `json:"bbox"`
}

func metaKey(vid string) string {
	return vid + "/meta.json"
}

func objectKey(vid, oid string) string {
	return vid + "/annotations/" + oid + ".json"
}

// frameKey is the entry name of a payload, without its format extension
func frameKey(vid string, frame int, ch types.Channel) string {
	return fmt.Sprintf("%s/video/frm_%06d/%s", vid, frame, ch.String())
}

// splitEntry classifies a zip entry name. kind is "meta", "object" or "frame".
func splitEntry(name string) (vid, kind, rest string) {
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", "", ""
	}
	vid, rest = name[:i], name[i+1:]
	switch {
	case rest == "meta.json":
		return vid, "meta", ""
	case strings.HasPrefix(rest, "annotations/") && strings.HasSuffix(rest, ".json"):
		return vid, "object", strings.TrimSuffix(strings.TrimPrefix(rest, "annotations/"), ".json")
	case strings.HasPrefix(rest, "video/"):
		return vid, "frame", strings.TrimSuffix(name, path.Ext(name))
	}
	return vid, "", rest
}
