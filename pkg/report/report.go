// Package report summarises how a store splits into training windows
package report

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
	"github.com/menta2k/tracking-data/pkg/window"
)

// VideoStats describes one video
type VideoStats struct {
	VideoID    string
	NumObjects int
	NumWindows int
	// Span and coverage statistics over the video's objects. Coverage is the
	// fraction of frames inside an object's span where it is annotated.
	MeanSpan     float64
	StdSpan      float64
	MeanCoverage float64
}

// Report collects per-video statistics
type Report struct {
	Videos            []VideoStats
	TotalWindows      int
	MeanWindows       float64
	StdWindows        float64
	UnannotatedVideos int
}

// Compute gathers statistics of store. windows must come from the same store.
func Compute(store source.AnnotationStore, windows []types.Window) (*Report, error) {
	perVideo := map[string]int{}
	for _, w := range windows {
		perVideo[w.VideoID]++
	}

	vids, err := store.VideoIDs()
	if err != nil {
		return nil, err
	}
	vids = append([]string(nil), vids...)
	sort.Strings(vids)

	r := &Report{TotalWindows: len(windows)}
	var counts []float64
	for _, vid := range vids {
		oids, err := store.ObjectIDs(vid)
		if err != nil {
			return nil, err
		}
		if oids == nil {
			r.UnannotatedVideos++
			continue
		}
		vs := VideoStats{VideoID: vid, NumObjects: len(oids), NumWindows: perVideo[vid]}
		var spans, coverage []float64
		for _, oid := range oids {
			frames, err := store.ValidFrames(vid, oid)
			if err != nil {
				return nil, err
			}
			if len(frames) == 0 {
				continue
			}
			span := window.Span(frames)
			spans = append(spans, float64(span))
			coverage = append(coverage, float64(len(frames))/float64(span))
		}
		if len(spans) > 0 {
			vs.MeanSpan, vs.StdSpan = meanStd(spans)
			vs.MeanCoverage = stat.Mean(coverage, nil)
		}
		r.Videos = append(r.Videos, vs)
		counts = append(counts, float64(vs.NumWindows))
	}
	if len(counts) > 0 {
		r.MeanWindows, r.StdWindows = meanStd(counts)
	}
	return r, nil
}

// meanStd returns the mean and the sample standard deviation, which is 0 for
// a single value
func meanStd(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// Write prints the report as a table
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%-8s %8s %8s %10s %10s %9s\n", "video", "objects", "windows", "mean_span", "std_span", "coverage"); err != nil {
		return err
	}
	for _, v := range r.Videos {
		if _, err := fmt.Fprintf(w, "%-8s %8d %8d %10.1f %10.1f %9.2f\n",
			v.VideoID, v.NumObjects, v.NumWindows, v.MeanSpan, v.StdSpan, v.MeanCoverage); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total windows %d, per video %.1f ± %.1f, unannotated videos %d\n",
		r.TotalWindows, r.MeanWindows, r.StdWindows, r.UnannotatedVideos)
	return err
}
