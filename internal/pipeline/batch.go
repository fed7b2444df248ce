package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the batch concurrency used when none is configured.
const DefaultWorkers = 4

// ProcessedFile is a document that completed the pipeline.
type ProcessedFile struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Result   Result `json:"result"`
}

// FileError is a document that ended in the Failed state. Error reads
// "<stage>: <cause>".
type FileError struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
}

// DirectoryResult is the outcome of a batch run, in file name order.
type DirectoryResult struct {
	ProcessedFiles []ProcessedFile `json:"processed_files"`
	Errors         []FileError     `json:"errors"`
}

// Batch runs a directory of documents through a pipeline.
type Batch struct {
	pipeline *Pipeline
	workers  int
	logger   zerolog.Logger
}

// NewBatch creates a batch runner with at most workers documents in flight.
func NewBatch(p *Pipeline, workers int, logger zerolog.Logger) *Batch {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Batch{pipeline: p, workers: workers, logger: logger}
}

// Run processes every regular, non-hidden file directly inside dir. Only a
// failure to list the directory is returned as an error. Once ctx is
// canceled, documents that have not started are reported as canceled.
func (b *Batch) Run(ctx context.Context, dir string) (*DirectoryResult, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]Result, len(files))
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, path := range files {
		g.Go(func() error {
			results[i] = b.pipeline.Process(ctx, path)
			return nil
		})
	}
	g.Wait()

	out := &DirectoryResult{
		ProcessedFiles: []ProcessedFile{},
		Errors:         []FileError{},
	}
	for _, res := range results {
		if res.Failed() {
			out.Errors = append(out.Errors, FileError{
				FileName: res.FileName,
				FilePath: res.FilePath,
				Error:    res.Failure.Error(),
			})
			continue
		}
		out.ProcessedFiles = append(out.ProcessedFiles, ProcessedFile{
			FileName: res.FileName,
			FilePath: res.FilePath,
			Result:   res,
		})
	}

	b.logger.Info().
		Str("dir", dir).
		Int("files", len(files)).
		Int("processed", len(out.ProcessedFiles)).
		Int("failed", len(out.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("batch complete")
	return out, nil
}

// listFiles returns the regular files in dir sorted by name. Hidden files and
// subdirectories are skipped; symlinks count when they point at a regular file.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&fs.ModeSymlink != 0 {
			fi, err := os.Stat(path)
			if err != nil {
				continue
			}
			mode = fi.Mode()
		}
		if mode.IsRegular() {
			files = append(files, path)
		}
	}
	return files, nil
}
