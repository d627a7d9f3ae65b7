// Package trackingdata serves training data for a windowed object tracker.
//
// Videos with per-object box annotations are cut into fixed-length windows,
// one window per (video, object, start frame). Batches of windows are
// assembled into dense float32 tensors: the frame images, foreground and
// orientation probability maps, ground truth boxes in input-pixel units and a
// per-step presence flag. A second producer samples positive and negative
// pairs of object patches for training an appearance matcher.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//
//		"github.com/cyclopcam/logs"
//		trackingdata "github.com/menta2k/tracking-data"
//		"github.com/menta2k/tracking-data/pkg/types"
//	)
//
//	func main() {
//		log, _ := logs.NewLog()
//		p, err := trackingdata.OpenArchive(log, "data/train-*", trackingdata.DefaultOptions())
//		if err != nil {
//			panic(err)
//		}
//		defer p.Close()
//
//		n, _ := p.WindowCount()
//		batch, err := p.AssembleBatch([]int{0, 1, 2}, types.AllFields)
//		if err != nil {
//			panic(err)
//		}
//		fmt.Println(n, batch.Images.Shape)
//	}
//
// The package consists of these components:
//
// 1. Window indexer (pkg/window): enumerates windows of a store
// 2. Batch assembler (pkg/batch): builds tensors for selected windows
// 3. Pair sampler (pkg/matching): crops jittered patch pairs
// 4. Archive (pkg/archive): sharded zip container read by all of the above
package trackingdata

import (
	"io"

	"github.com/cyclopcam/logs"

	"github.com/menta2k/tracking-data/pkg/archive"
	"github.com/menta2k/tracking-data/pkg/batch"
	"github.com/menta2k/tracking-data/pkg/matching"
	"github.com/menta2k/tracking-data/pkg/report"
	"github.com/menta2k/tracking-data/pkg/source"
	"github.com/menta2k/tracking-data/pkg/types"
	"github.com/menta2k/tracking-data/pkg/window"
)

// Version of the tracking data library
const Version = "1.0.0"

// Options configures a Provider
type Options struct {
	Batch    batch.Options
	Mode     window.Mode
	Matching matching.Options
}

// DefaultOptions returns the standard KITTI training setup
func DefaultOptions() Options {
	return Options{
		Batch: batch.Options{WindowSize: 20, InpHeight: 128, InpWidth: 448},
		Mode:  window.ModeTrainDense,
		Matching: matching.Options{
			PatchHeight: 48,
			PatchWidth:  48,
			Jitter:      matching.Jitter{PaddingMean: 0.2, PaddingNoise: 0.2, CenterNoise: 0.2},
			NumPos:      100,
			NumNeg:      100,
			Shuffle:     true,
		},
	}
}

// Provider ties a dataset to the window indexer, batch assembler and pair
// sampler. It is safe for concurrent use once constructed.
type Provider struct {
	log       logs.Log
	dataset   source.Dataset
	indexer   *window.Indexer
	assembler *batch.Assembler
	sampler   *matching.Sampler
	closer    io.Closer
}

// New creates a Provider over dataset with default options
func New(log logs.Log, dataset source.Dataset) (*Provider, error) {
	return NewWithOptions(log, dataset, DefaultOptions())
}

// NewWithOptions creates a Provider over dataset
func NewWithOptions(log logs.Log, dataset source.Dataset, opts Options) (*Provider, error) {
	assembler, err := batch.New(dataset, dataset, opts.Batch)
	if err != nil {
		return nil, err
	}
	sampler, err := matching.NewSampler(opts.Matching)
	if err != nil {
		return nil, err
	}
	return &Provider{
		log:       log,
		dataset:   dataset,
		indexer:   window.NewIndexer(log, dataset, opts.Batch.WindowSize, opts.Mode),
		assembler: assembler,
		sampler:   sampler,
	}, nil
}

// OpenArchive opens the archive shards matching pattern and creates a
// Provider over them. Close releases the shards.
func OpenArchive(log logs.Log, pattern string, opts Options) (*Provider, error) {
	store, err := archive.Open(pattern)
	if err != nil {
		return nil, err
	}
	p, err := NewWithOptions(log, store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	p.closer = store
	return p, nil
}

// Close releases the archive opened by OpenArchive
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Windows returns every window, computing them on first use
func (p *Provider) Windows() ([]types.Window, error) {
	return p.indexer.Windows()
}

// WindowCount returns the number of windows
func (p *Provider) WindowCount() (int, error) {
	return p.indexer.Count()
}

// AssembleBatch builds the requested fields for the windows at indices
func (p *Provider) AssembleBatch(indices []int, fields types.FieldSet) (*types.Batch, error) {
	windows, err := p.indexer.Windows()
	if err != nil {
		return nil, err
	}
	return p.assembler.AssembleBatch(windows, indices, fields)
}

// AssembleBatchNamed is AssembleBatch with fields given by name ("x", "fg",
// "angle", "bbox_gt", "s_gt")
func (p *Provider) AssembleBatchNamed(indices []int, names []string) (map[string]*types.Tensor, error) {
	fields, err := types.ParseFields(names)
	if err != nil {
		return nil, err
	}
	b, err := p.AssembleBatch(indices, fields)
	if err != nil {
		return nil, err
	}
	return b.Map(), nil
}

// SamplePairs samples matching pairs from the videos at positions seqs of
// the sorted video list
func (p *Provider) SamplePairs(seqs []int, seed uint64) (*types.PairBatch, error) {
	return matching.Dataset(p.log, p.dataset, seqs, p.sampler, seed)
}

// SampleSplit samples matching pairs from a named split ("train" or "valid")
func (p *Provider) SampleSplit(split string, seed uint64) (*types.PairBatch, error) {
	seqs, err := matching.SplitSequences(split)
	if err != nil {
		return nil, err
	}
	return p.SamplePairs(seqs, seed)
}

// Report summarises the windows of the dataset
func (p *Provider) Report() (*report.Report, error) {
	windows, err := p.indexer.Windows()
	if err != nil {
		return nil, err
	}
	return report.Compute(p.dataset, windows)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
