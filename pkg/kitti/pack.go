package kitti

import (
	"fmt"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/types"
)

// Pack copies every video of ds into w: frame images, prediction maps when a
// prediction folder is set, and object tracks for labelled splits.
func Pack(log logs.Log, ds *Dataset, w *archive.Writer) error {
	vids, err := ds.VideoIDs()
	if err != nil {
		return err
	}
	for _, vid := range vids {
		if err := packVideo(ds, w, vid); err != nil {
			return fmt.Errorf("failed to pack video %s: %w", vid, err)
		}
		log.Infof("Packed video %v", vid)
	}
	return nil
}

func packVideo(ds *Dataset, w *archive.Writer, vid string) error {
	numFrames, err := ds.NumFrames(vid)
	if err != nil {
		return err
	}
	if err := w.AddVideo(vid, numFrames, ds.Annotated()); err != nil {
		return err
	}

	channels := []types.Channel{types.ChannelImage}
	if ds.HasPredictions() {
		channels = append(channels, types.ChannelForeground)
		for k := 0; k < types.NumOrientations; k++ {
			channels = append(channels, types.ChannelOrientation(k))
		}
	}
	for f := 0; f < numFrames; f++ {
		for _, ch := range channels {
			data, err := ds.ReadFrame(vid, f, ch)
			if err != nil {
				return err
			}
			if err := w.AddFrame(vid, f, ch, data, "png"); err != nil {
				return err
			}
		}
	}

	oids, err := ds.ObjectIDs(vid)
	if err != nil {
		return err
	}
	for _, oid := range oids {
		frames, err := ds.ValidFrames(vid, oid)
		if err != nil {
			return err
		}
		boxes := make([]types.Box, len(frames))
		for i, f := range frames {
			if boxes[i], err = ds.Box(vid, oid, f); err != nil {
				return err
			}
		}
		if err := w.AddObject(vid, oid, frames, boxes); err != nil {
			return err
		}
	}
	return nil
}
