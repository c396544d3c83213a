// Package main (in watermark-subfolder) provides the local CLI: watermark one image or a whole directory tree
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/UnendingLoop/TextWatermark/internal/batch"
	"github.com/UnendingLoop/TextWatermark/internal/imageproc"
	"github.com/UnendingLoop/TextWatermark/internal/layout"
	"github.com/UnendingLoop/TextWatermark/internal/model"
	"github.com/UnendingLoop/TextWatermark/internal/textdraw"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

type cliArgs struct {
	input    string
	output   string
	lines    []string
	font     string
	ratio    string
	color    string
	alpha    string
	anchor   string
	workers  int
	quality  int
	strict   bool
	logLevel string
}

func main() {
	// энвы и .env задают дефолты для флагов
	appConfig := config.New()
	appConfig.EnableEnv("")
	if _, err := os.Stat("./.env"); err == nil {
		if err := appConfig.LoadEnvFiles("./.env"); err != nil {
			log.Fatalf("Failed to load envs: %s\nExiting app...", err)
		}
	}

	args, err := parseArgs(appConfig, os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel(args.logLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, afero.NewOsFs(), args); err != nil {
		zlog.Logger.Error().Err(err).Msg("watermarking failed")
		stop()
		os.Exit(1)
	}
}

func parseArgs(cfg *config.Config, argv []string) (cliArgs, error) {
	var a cliArgs
	workers, _ := strconv.Atoi(cfg.GetString("WM_WORKERS"))
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	level := cfg.GetString("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	fs := pflag.NewFlagSet("watermark", pflag.ContinueOnError)
	fs.StringVarP(&a.input, "input", "i", "", "input image file or directory (required)")
	fs.StringVarP(&a.output, "output", "o", "", "output image file or directory (required)")
	fs.StringArrayVarP(&a.lines, "text", "t", nil, "watermark line, repeat for several lines (required)")
	fs.StringVar(&a.font, "font", cfg.GetString("FONT_PATH"), "path to a TTF/OTF/TTC font (required)")
	fs.StringVar(&a.ratio, "ratio", cfg.GetString("WM_RATIO"), "width of the widest line relative to image width, in (0,1)")
	fs.StringVar(&a.color, "color", cfg.GetString("WM_COLOR"), "text color #RRGGBB or #RRGGBBAA")
	fs.StringVar(&a.alpha, "alpha", cfg.GetString("WM_ALPHA"), "text opacity 0-255, overrides the color alpha")
	fs.StringVar(&a.anchor, "anchor", cfg.GetString("WM_ANCHOR"), "position: top-left, top, top-right, left, center, right, bottom-left, bottom, bottom-right")
	fs.IntVar(&a.workers, "workers", workers, "images rendered in parallel")
	fs.IntVar(&a.quality, "quality", model.DefaultQuality, "JPEG quality 1-100")
	fs.BoolVar(&a.strict, "strict", false, "fail when the stacked lines do not fit the image height")
	fs.StringVar(&a.logLevel, "log-level", level, "log level")

	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, err
	}

	switch {
	case a.input == "":
		return cliArgs{}, errors.New("--input is required")
	case a.output == "":
		return cliArgs{}, errors.New("--output is required")
	case len(a.lines) == 0:
		return cliArgs{}, errors.New("at least one --text is required")
	case a.font == "":
		return cliArgs{}, errors.New("--font (or FONT_PATH) is required")
	}
	return a, nil
}

func run(ctx context.Context, fs afero.Fs, a cliArgs) error {
	opts, err := model.ParseOptions(model.RawOptions{
		Lines:  a.lines,
		Ratio:  a.ratio,
		Color:  a.color,
		Alpha:  a.alpha,
		Anchor: a.anchor,
	})
	if err != nil {
		return err
	}
	opts.FontPath = a.font
	opts.ProbeSize = layout.DefaultProbeSize
	opts.Quality = a.quality
	opts.Strict = a.strict

	proc := batch.NewProcessor(fs, imageproc.NewRenderer(textdraw.NewLoader()), a.workers, zlog.Logger)

	isDir, err := afero.IsDir(fs, a.input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if !isDir {
		return proc.RunFile(ctx, a.input, a.output, opts)
	}

	report, err := proc.Run(ctx, a.input, a.output, opts)
	if err != nil {
		return err
	}
	zlog.Logger.Info().
		Int("processed", report.Processed).
		Int("failed", len(report.Failed)).
		Int("skipped", report.Skipped).
		Msg("batch finished")
	for _, f := range report.Failed {
		zlog.Logger.Warn().Str("path", f.Path).Err(f.Err).Msg("image failed")
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d images failed", len(report.Failed), len(report.Failed)+report.Processed)
	}
	return nil
}
