package source

import (
	"github.com/menta2k/tracking-data/pkg/types"
)

// AnnotationStore provides per-video, per-object ground truth
type AnnotationStore interface {
	VideoIDs() ([]string, error)
	// ObjectIDs returns nil, nil when the video carries no annotations (test split)
	ObjectIDs(videoID string) ([]string, error)
	// ValidFrames returns the sorted absolute frame indices where the object is annotated
	ValidFrames(videoID, objectID string) ([]int, error)
	Box(videoID, objectID string, frame int) (types.Box, error)
}

// VideoSource provides encoded per-frame payloads
type VideoSource interface {
	NumFrames(videoID string) (int, error)
	ReadFrame(videoID string, frame int, ch types.Channel) ([]byte, error)
}

// Dataset is a store that carries both annotations and frames
type Dataset interface {
	AnnotationStore
	VideoSource
}
