package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	trackingdata "github.com/menta2k/tracking-data"
	"github.com/menta2k/tracking-data/internal/config"
	"github.com/menta2k/tracking-data/internal/synth"
	"github.com/menta2k/tracking-data/internal/utils"
	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/batch"
	"github.com/menta2k/tracking-data/pkg/imageproc"
	"github.com/menta2k/tracking-data/pkg/kitti"
	"github.com/menta2k/tracking-data/pkg/matching"
	"github.com/menta2k/tracking-data/pkg/types"
	"github.com/menta2k/tracking-data/pkg/window"
)

func main() {
	parser := argparse.NewParser("trackdata", "Tracking windows and matching pairs for tracker training")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file (json or yaml)", Required: false, Default: ""})
	archivePattern := parser.String("a", "archive", &argparse.Options{Help: "Archive shard glob, e.g. data/train-*", Required: false, Default: ""})

	windowsCmd := parser.NewCommand("windows", "Count windows and print per-video statistics")
	windowSize := windowsCmd.Int("w", "window", &argparse.Options{Help: "Window length in frames (overrides config)", Required: false, Default: 0})

	batchCmd := parser.NewCommand("batch", "Assemble a batch and print its tensors")
	indices := batchCmd.IntList("i", "index", &argparse.Options{Help: "Window index, repeatable", Required: true})
	fieldNames := batchCmd.StringList("f", "field", &argparse.Options{Help: "Field name (x, fg, angle, bbox_gt, s_gt), repeatable", Required: false})
	batchOut := batchCmd.String("o", "out", &argparse.Options{Help: "Write the resized frames of each example here", Required: false, Default: ""})

	pairsCmd := parser.NewCommand("pairs", "Sample matching patch pairs")
	split := pairsCmd.String("s", "split", &argparse.Options{Help: "train or valid (overrides config)", Required: false, Default: ""})
	seqs := pairsCmd.IntList("q", "seq", &argparse.Options{Help: "Sequence index, repeatable; overrides --split", Required: false})
	seed := pairsCmd.Int("", "seed", &argparse.Options{Help: "Random seed (overrides config)", Required: false, Default: -1})
	pairsOut := pairsCmd.String("o", "out", &argparse.Options{Help: "Write the patches here", Required: false, Default: ""})

	packCmd := parser.NewCommand("pack", "Pack a KITTI tracking folder into an archive")
	kittiFolder := packCmd.String("k", "kitti", &argparse.Options{Help: "KITTI tracking root (overrides config)", Required: false, Default: ""})
	packSplit := packCmd.String("s", "split", &argparse.Options{Help: "train, valid, train_all or test (overrides config)", Required: false, Default: ""})
	predFolder := packCmd.String("p", "pred", &argparse.Options{Help: "Folder with foreground/orientation predictions", Required: false, Default: ""})
	packPrefix := packCmd.String("o", "out", &argparse.Options{Help: "Output shard prefix", Required: true})

	synthCmd := parser.NewCommand("synth", "Write a small synthetic archive for smoke tests")
	synthPrefix := synthCmd.String("o", "out", &argparse.Options{Help: "Output shard prefix", Required: true})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		if cfg, err = config.LoadFromFile(*configFile); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	}
	if *archivePattern != "" {
		cfg.Dataset.Archive = *archivePattern
	}
	if *windowSize > 0 {
		cfg.Tracking.WindowSize = *windowSize
	}
	if *split != "" {
		cfg.Dataset.Split = *split
	}
	if *packSplit != "" {
		cfg.Dataset.Split = *packSplit
	}
	if *seed >= 0 {
		cfg.Matching.Seed = uint64(*seed)
	}
	if *kittiFolder != "" {
		cfg.Dataset.KITTIFolder = *kittiFolder
	}
	if *predFolder != "" {
		cfg.Dataset.PredictionFolder = *predFolder
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("Invalid config: %v", err)
		os.Exit(1)
	}

	switch {
	case windowsCmd.Happened():
		err = runWindows(log, cfg)
	case batchCmd.Happened():
		names := *fieldNames
		if len(names) == 0 {
			names = cfg.Tracking.Fields
		}
		err = runBatch(log, cfg, *indices, names, *batchOut)
	case pairsCmd.Happened():
		err = runPairs(log, cfg, *seqs, *pairsOut)
	case packCmd.Happened():
		err = runPack(log, cfg, *packPrefix)
	case synthCmd.Happened():
		err = runSynth(log, cfg, *synthPrefix)
	}
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// options maps the config file onto provider options
func options(cfg *config.Config) trackingdata.Options {
	return trackingdata.Options{
		Batch: batch.Options{
			WindowSize: cfg.Tracking.WindowSize,
			InpHeight:  cfg.Tracking.InpHeight,
			InpWidth:   cfg.Tracking.InpWidth,
		},
		Mode: window.Mode(cfg.Tracking.Mode),
		Matching: matching.Options{
			PatchHeight: cfg.Matching.PatchHeight,
			PatchWidth:  cfg.Matching.PatchWidth,
			Jitter: matching.Jitter{
				PaddingMean:  cfg.Matching.PaddingMean,
				PaddingNoise: cfg.Matching.PaddingNoise,
				CenterNoise:  cfg.Matching.CenterNoise,
			},
			NumPos:  cfg.Matching.NumPos,
			NumNeg:  cfg.Matching.NumNeg,
			Shuffle: cfg.Matching.Shuffle,
		},
	}
}

func openProvider(log logs.Log, cfg *config.Config) (*trackingdata.Provider, error) {
	if cfg.Dataset.Archive == "" {
		return nil, fmt.Errorf("no archive given, use --archive or dataset.archive")
	}
	return trackingdata.OpenArchive(log, cfg.Dataset.Archive, options(cfg))
}

func runWindows(log logs.Log, cfg *config.Config) error {
	p, err := openProvider(log, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	r, err := p.Report()
	if err != nil {
		return err
	}
	return r.Write(os.Stdout)
}

func runBatch(log logs.Log, cfg *config.Config, indices []int, names []string, outDir string) error {
	p, err := openProvider(log, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	fields, err := types.ParseFields(names)
	if err != nil {
		return err
	}
	windows, err := p.Windows()
	if err != nil {
		return err
	}
	b, err := p.AssembleBatch(indices, fields)
	if err != nil {
		return err
	}
	for _, f := range fields.List() {
		fmt.Printf("%-8s %v\n", f, b.Get(f).Shape)
	}
	for e, idx := range indices {
		fmt.Printf("example %d: %v\n", e, windows[idx])
		if b.Presence != nil {
			off := b.Presence.Index(e)
			fmt.Printf("  presence %v\n", b.Presence.Data[off:off+b.Presence.Shape[1]])
		}
	}
	if outDir != "" && b.Images != nil {
		return saveFrames(log, b, outDir, cfg.Output)
	}
	return nil
}

// saveFrames writes every time step of the image tensor as a picture, with
// the ground truth box drawn where the object is present
func saveFrames(log logs.Log, b *types.Batch, outDir string, out config.OutputConfig) error {
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}
	numEx, numT := b.Images.Shape[0], b.Images.Shape[1]
	for e := 0; e < numEx; e++ {
		for t := 0; t < numT; t++ {
			var img image.Image = batch.FrameImage(b.Images, e, t)
			if b.Boxes != nil && b.Presence != nil && b.Presence.At(e, t) == 1 {
				off := b.Boxes.Index(e, t)
				img = imageproc.Overlay(img, types.BoxFromArray([4]float32(b.Boxes.Data[off:off+4])), fmt.Sprintf("t=%d", t))
			}
			path := filepath.Join(outDir, fmt.Sprintf("ex%03d_t%03d.%s", e, t, out.Format))
			if err := imageproc.SaveImage(img, path, out.Format, out.Quality, false); err != nil {
				return fmt.Errorf("failed to save %s: %w", path, err)
			}
		}
	}
	log.Infof("Wrote %v frames to %v", numEx*numT, outDir)
	return nil
}

func runPairs(log logs.Log, cfg *config.Config, seqs []int, outDir string) error {
	p, err := openProvider(log, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	var pairs *types.PairBatch
	if len(seqs) > 0 {
		pairs, err = p.SamplePairs(seqs, cfg.Matching.Seed)
	} else {
		pairs, err = p.SampleSplit(cfg.Dataset.Split, cfg.Matching.Seed)
	}
	if err != nil {
		return err
	}
	pos := 0
	for _, l := range pairs.Labels {
		pos += int(l)
	}
	fmt.Printf("%d pairs, %d positive, %d negative\n", pairs.Len(), pos, pairs.Len()-pos)

	if outDir == "" {
		return nil
	}
	for i := 0; i < pairs.Len(); i++ {
		for side, img := range []*image.NRGBA{pairs.Images0[i], pairs.Images1[i]} {
			path := filepath.Join(outDir, fmt.Sprintf("pair%05d_%d_label%d.%s", i, side, pairs.Labels[i], cfg.Output.Format))
			if err := imageproc.SaveImage(img, path, cfg.Output.Format, cfg.Output.Quality, false); err != nil {
				return fmt.Errorf("failed to save %s: %w", path, err)
			}
		}
	}
	log.Infof("Wrote %v pairs to %v", pairs.Len(), outDir)
	return nil
}

func runPack(log logs.Log, cfg *config.Config, prefix string) error {
	if cfg.Dataset.KITTIFolder == "" {
		return fmt.Errorf("no KITTI folder given, use --kitti or dataset.kitti_folder")
	}
	ds, err := kitti.Open(log, cfg.Dataset.KITTIFolder, cfg.Dataset.Split)
	if err != nil {
		return err
	}
	if len(cfg.Dataset.TargetTypes) > 0 {
		ds.SetTargetTypes(cfg.Dataset.TargetTypes)
	}
	if cfg.Dataset.PredictionFolder != "" {
		ds.SetPredictionFolder(cfg.Dataset.PredictionFolder)
	}
	w, err := archive.NewWriter(log, prefix, cfg.Output.Shards)
	if err != nil {
		return err
	}
	if err := kitti.Pack(log, ds, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func runSynth(log logs.Log, cfg *config.Config, prefix string) error {
	box := types.Box{Left: 20, Top: 40, Right: 80, Bottom: 90}
	var videos []synth.Video
	for v := 0; v < 3; v++ {
		videos = append(videos, synth.Video{
			ID: fmt.Sprintf("%04d", v), NumFrames: 30, Width: 320, Height: 120, Annotated: true,
			Objects: []synth.Object{
				synth.Track("0000", box, synth.Frames(0, 24)...),
				synth.Track("0001", box.Scale(1.5, 1), synth.Frames(5+v, 20)...),
			},
		})
	}
	return synth.WriteArchive(log, prefix, cfg.Output.Shards, videos)
}
