// dwalk scans a single directory for image files and streams them, in
// filename order, to whoever owns the entry set.
package dwalk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jdefrancesco/dskOrder/internal/config"
	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/internal/dsklog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// StagePrefix marks the hidden staging directories created by commit and
// restore. The scanner never looks inside them.
const StagePrefix = ".dskorder-stage-"

// ScanError is returned when the target directory cannot be listed.
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("cannot read directory %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// DWalk is our scanner object. One DWalk serves one Run.
type DWalk struct {
	dir    string
	dFiles chan<- *dfs.Dfile
	sem    *semaphore.Weighted

	extensions    []string
	skipHidden    bool
	hashAlgorithm dfs.HashAlgorithm
	hashMaxSize   uint64

	progress func(loaded, total int)
}

// NewDWalker returns a DWalk for dir that sends what it finds over dFiles.
// The channel is closed when the scan is over.
func NewDWalker(dir string, dFiles chan<- *dfs.Dfile, cfg config.Config) *DWalk {
	algo := cfg.HashAlgorithm
	if algo == "" {
		algo = dfs.HashSHA256
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = dfs.ImageExtensions()
	}

	concurrency := getOptimalConcurrency()
	dsklog.Dlogger.Debugf("Setting hash concurrency to %d (based on %d CPUs)", concurrency, runtime.NumCPU())

	return &DWalk{
		dir:           dir,
		dFiles:        dFiles,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		extensions:    exts,
		skipHidden:    cfg.SkipHidden,
		hashAlgorithm: algo,
		hashMaxSize:   cfg.HashMaxSize,
	}
}

// OnProgress registers fn to be called after each file is sent. It must
// be set before Run.
func (d *DWalk) OnProgress(fn func(loaded, total int)) {
	d.progress = fn
}

// Run lists the directory and starts streaming. An unreadable directory
// is reported right away as a *ScanError and nothing is sent.
func (d *DWalk) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		close(d.dFiles)
		return err
	}

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		close(d.dFiles)
		dsklog.Dlogger.Errorf("Directory read error: %v", err)
		return &ScanError{Dir: d.dir, Err: err}
	}

	candidates := make([]os.DirEntry, 0, len(entries))
	for _, entry := range entries {
		if d.accept(entry) {
			candidates = append(candidates, entry)
		}
	}
	dsklog.Dlogger.Infof("Scanning %s: %d of %d entries are images", d.dir, len(candidates), len(entries))

	go d.stream(ctx, candidates)
	return nil
}

// accept filters on the cheap DirEntry facts. os.ReadDir already sorted
// the entries by filename.
func (d *DWalk) accept(entry os.DirEntry) bool {
	name := entry.Name()
	if strings.HasPrefix(name, StagePrefix) {
		return false
	}
	if d.skipHidden && strings.HasPrefix(name, ".") {
		dsklog.Dlogger.Debugf("Skipping hidden entry: %s", filepath.Join(d.dir, name))
		return false
	}
	// Subdirectories, symlinks, sockets, pipes, devices.
	if !entry.Type().IsRegular() {
		return false
	}
	return dfs.IsImage(name, d.extensions)
}

type slot struct {
	done  chan struct{}
	dfile *dfs.Dfile
}

// stream fingerprints candidates concurrently and sends them in order.
func (d *DWalk) stream(ctx context.Context, candidates []os.DirEntry) {
	defer close(d.dFiles)

	slots := make([]slot, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		slots[i].done = make(chan struct{})
		g.Go(func() error {
			defer close(slots[i].done)
			if err := d.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer d.sem.Release(1)
			slots[i].dfile = d.load(candidates[i])
			return nil
		})
	}
	defer func() {
		if err := g.Wait(); err != nil {
			dsklog.Dlogger.Debugf("Scan of %s stopped: %v", d.dir, err)
		}
	}()

	loaded := 0
	for i := range slots {
		select {
		case <-slots[i].done:
		case <-ctx.Done():
			return
		}
		if slots[i].dfile == nil {
			continue
		}
		select {
		case d.dFiles <- slots[i].dfile:
		case <-ctx.Done():
			return
		}
		loaded++
		if d.progress != nil {
			d.progress(loaded, len(slots))
		}
	}
}

// load builds the Dfile for entry. Files that vanished since the listing
// return nil. Hash failures are logged and the file is sent without a
// digest.
func (d *DWalk) load(entry os.DirEntry) *dfs.Dfile {
	name := entry.Name()
	info, err := entry.Info()
	if err != nil {
		dsklog.Dlogger.Debugf("Error getting file info for %s: %v", name, err)
		return nil
	}

	algo := d.hashAlgorithm
	fileSize := uint64(max(info.Size(), 0)) // #nosec G115
	if d.hashMaxSize > 0 && fileSize > d.hashMaxSize {
		dsklog.Dlogger.Infof("File %s larger than hash maximum. Not fingerprinting", name)
		algo = dfs.HashNone
	}

	dfile, err := dfs.NewDfile(d.dir, name, info.Size(), algo)
	if err != nil {
		dsklog.Dlogger.Warnf("Fingerprint of %s failed: %v", name, err)
		if dfile == nil {
			return nil
		}
	}
	return dfile
}

// Collect runs a full scan of dir and returns the files in filename order.
func Collect(ctx context.Context, dir string, cfg config.Config) ([]*dfs.Dfile, error) {
	dFiles := make(chan *dfs.Dfile)
	if err := NewDWalker(dir, dFiles, cfg).Run(ctx); err != nil {
		return nil, err
	}

	var files []*dfs.Dfile
	for f := range dFiles {
		files = append(files, f)
	}
	if err := ctx.Err(); err != nil {
		return files, err
	}
	return files, nil
}

// getOptimalConcurrency returns optimal concurrency based on system resources
func getOptimalConcurrency() int {
	procs := runtime.GOMAXPROCS(0)
	if procs < 1 {
		procs = runtime.NumCPU()
	}
	return min(procs*4, dfs.OpenFileDescLimMax)
}
