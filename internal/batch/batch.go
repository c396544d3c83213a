// Package batch watermarks a single image or every image of a directory tree,
// mirroring the input layout under the output directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

const dirPerm = 0o755

// Renderer watermarks one encoded image stream.
type Renderer interface {
	Process(src io.Reader, dst io.Writer, opts model.WatermarkOptions, format imaging.Format) error
}

type Processor struct {
	fs       afero.Fs
	renderer Renderer
	workers  int
	logger   zerolog.Logger
}

func NewProcessor(fs afero.Fs, r Renderer, workers int, logger zerolog.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{fs: fs, renderer: r, workers: workers, logger: logger}
}

// Failure - одна картинка, которую не удалось обработать
type Failure struct {
	Path string
	Err  error
}

type Report struct {
	Processed int
	Skipped   int
	Failed    []Failure
}

// Err joins all per-image errors, nil when every image succeeded.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

// Run watermarks every allowed image under inputDir into the same relative path under outputDir.
// A failed image is reported and the rest of the tree is still processed. Cancelling ctx stops
// scheduling new images; images already being rendered are finished.
func (p *Processor) Run(ctx context.Context, inputDir, outputDir string, opts model.WatermarkOptions) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}

	info, err := p.fs.Stat(inputDir)
	if err != nil {
		return Report{}, fmt.Errorf("stat input dir: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("input %q is not a directory", inputDir)
	}

	inRoot := filepath.Clean(inputDir)
	outRoot := filepath.Clean(outputDir)
	if inRoot == outRoot {
		return Report{}, fmt.Errorf("output dir %q must differ from input dir", outputDir)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	record := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			report.Processed++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			report.Skipped++
		default:
			report.Failed = append(report.Failed, Failure{Path: path, Err: err})
		}
	}

	workers := pool.New().WithMaxGoroutines(p.workers)
	walkErr := afero.Walk(p.fs, inRoot, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			p.logger.Error().Err(err).Str("path", path).Msg("failed to read path")
			record(path, err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if fi.IsDir() {
			// выходная папка внутри входной не обходится повторно
			if path != inRoot && filepath.Clean(path) == outRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !model.IsAllowedExt(path) {
			return nil
		}

		rel, err := filepath.Rel(inRoot, path)
		if err != nil {
			record(path, err)
			return nil
		}
		dst := filepath.Join(outRoot, rel)

		workers.Go(func() {
			if err := ctx.Err(); err != nil {
				record(path, err)
				return
			}
			err := p.processFile(path, dst, opts)
			if err != nil {
				p.logger.Error().Err(err).Str("path", path).Msg("failed to add watermark")
			} else {
				p.logger.Info().Str("path", path).Str("out", dst).Msg("watermark added")
			}
			record(path, err)
		})
		return nil
	})
	workers.Wait()

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		return report, fmt.Errorf("walk %q: %w", inRoot, walkErr)
	}
	return report, nil
}

// RunFile watermarks one image. When output is an existing directory the
// input file name is kept.
func (p *Processor) RunFile(ctx context.Context, input, output string, opts model.WatermarkOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if isDir, _ := afero.IsDir(p.fs, output); isDir {
		output = filepath.Join(output, filepath.Base(input))
	}

	if err := p.processFile(input, output, opts); err != nil {
		return err
	}
	p.logger.Info().Str("path", input).Str("out", output).Msg("watermark added")
	return nil
}

func (p *Processor) processFile(src, dst string, opts model.WatermarkOptions) (err error) {
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return fmt.Errorf("output format: %w", err)
	}

	in, err := p.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeFile(p.logger, in)

	if err := p.ensureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	out, err := p.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		closeFile(p.logger, out)
		if err != nil {
			if rmErr := p.fs.Remove(dst); rmErr != nil {
				p.logger.Warn().Err(rmErr).Str("path", dst).Msg("failed to remove partial output")
			}
		}
	}()

	return p.renderer.Process(in, out, opts, format)
}

// ensureDir creates dir and its parents, an existing directory is not an error.
func (p *Processor) ensureDir(dir string) error {
	exists, err := afero.DirExists(p.fs, dir)
	if err != nil {
		return fmt.Errorf("stat output dir: %w", err)
	}
	if exists {
		return nil
	}
	p.logger.Info().Str("dir", dir).Msg("create directory")
	if err := p.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

func closeFile(logger zerolog.Logger, f io.Closer) {
	if err := f.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close file")
	}
}
