// gdalfade 为带alpha的GeoTIFF生成边缘渐变透明度
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wgdzlh/gdalfade"
	"github.com/wgdzlh/gdalfade/log"
	"github.com/wgdzlh/gdalfade/rasalg"
	"github.com/wgdzlh/gdalfade/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	exitOK = iota
	exitFailed
	exitUsage
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("gdalfade", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "YAML config file")
	fs.IntP("fade", "d", gdalfade.DefaultFadeDistance, "fade distance in pixels")
	fs.BoolP("edit", "e", false, "pause for manual edit of the boundary lines")
	fs.Int("connectivity", 4, "pixel connectivity of opaque regions (4 or 8)")
	fs.Float64("offset-factor", gdalfade.DefaultOffsetFactor, "inward offset in pixels, in (0, 0.5)")
	fs.Int("quad-segs", gdalfade.DefaultQuadSegs, "segments per quarter circle for round joins")
	fs.Int("strip-rows", gdalfade.DefaultStripRows, "rows per processing strip")
	fs.IntP("workers", "j", 0, "parallel strip workers, 0 for GOMAXPROCS")
	fs.Int("alpha-band", gdalfade.DefaultAlphaBand, "alpha band when none is flagged")
	fs.BoolP("overwrite", "f", false, "replace an existing output")
	fs.StringP("output", "o", "", "output GeoTIFF (default <input>Faded.tif)")
	fs.String("scratch", "", "scratch directory (default <input>FadeProcess)")
	fs.String("vector-format", gdalfade.VectorGPKG, "intermediate vector format (gpkg or shp)")
	fs.String("geometry-backend", gdalfade.BackendNative, "polygon repair/offset backend (native or ogr)")
	fs.String("distance-backend", gdalfade.BackendNative, "distance transform backend ("+strings.Join(rasalg.Backends(), ", ")+")")
	fs.String("compress", "", "output compression codec")
	fs.String("co", "", "extra output creation options, KEY=VALUE,...")
	fs.String("overview-levels", "", "overview levels, e.g. 2,4,8 (default by size)")
	fs.String("overview-compress", "", "overview compression codec")
	fs.String("log-level", "info", "log level")
	fs.Bool("log-json", false, "JSON logs")
	fs.BoolP("help", "h", false, "show help")
	return fs
}

// 命令行中显式给出的参数覆盖配置文件
func applyFlags(fs *pflag.FlagSet, cfg *gdalfade.Config) (err error) {
	var (
		ints = map[string]*int{
			"fade":         &cfg.FadeDistancePixels,
			"connectivity": &cfg.Connectivity,
			"quad-segs":    &cfg.QuadSegs,
			"strip-rows":   &cfg.StripRows,
			"workers":      &cfg.Workers,
			"alpha-band":   &cfg.AlphaBand,
		}
		strs = map[string]*string{
			"output":            &cfg.Output,
			"scratch":           &cfg.ScratchDir,
			"vector-format":     &cfg.VectorFormat,
			"geometry-backend":  &cfg.GeometryBackend,
			"distance-backend":  &cfg.DistanceBackend,
			"compress":          &cfg.ColorCompression.Codec,
			"overview-compress": &cfg.OverviewCompression,
			"log-level":         &cfg.LogLevel,
		}
		bools = map[string]*bool{
			"edit":      &cfg.InteractiveEdit,
			"overwrite": &cfg.Overwrite,
			"log-json":  &cfg.LogJSON,
		}
	)
	for name, p := range ints {
		if fs.Changed(name) {
			*p, _ = fs.GetInt(name)
		}
	}
	for name, p := range strs {
		if fs.Changed(name) {
			*p, _ = fs.GetString(name)
		}
	}
	for name, p := range bools {
		if fs.Changed(name) {
			*p, _ = fs.GetBool(name)
		}
	}
	if fs.Changed("offset-factor") {
		cfg.OffsetFactor, _ = fs.GetFloat64("offset-factor")
	}
	if fs.Changed("co") {
		s, _ := fs.GetString("co")
		var opts []string
		if opts, err = utils.SplitOptions(s); err != nil {
			return fmt.Errorf("%w: --co: %v", gdalfade.ErrInvalidConfig, err)
		}
		cfg.ColorCompression.Extra = append(cfg.ColorCompression.Extra, opts...)
	}
	if fs.Changed("overview-levels") {
		s, _ := fs.GetString("overview-levels")
		if cfg.OverviewLevels, err = utils.StrToInts(s, ","); err != nil {
			return fmt.Errorf("%w: --overview-levels: %v", gdalfade.ErrInvalidConfig, err)
		}
	}
	return cfg.Validate()
}

func loadConfig(fs *pflag.FlagSet) (cfg gdalfade.Config, err error) {
	cfg = gdalfade.DefaultConfig()
	if path, _ := fs.GetString("config"); path != "" {
		if cfg, err = gdalfade.LoadConfig(path); err != nil {
			return
		}
	}
	err = applyFlags(fs, &cfg)
	return
}

func run(args []string) int {
	fs := newFlagSet()
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(fs)
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	if help, _ := fs.GetBool("help"); help {
		printHelp(fs)
		return exitOK
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one input GeoTIFF is required")
		return exitUsage
	}
	input := fs.Arg(0)

	cfg, err := loadConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	if err = log.Init(cfg.LogLevel, cfg.LogJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: log init: %v\n", err)
		return exitUsage
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolbox := gdalfade.NewGdalToolbox()
	fader, err := gdalfade.NewFader(cfg, toolbox, toolbox, gdalfade.WithCheckpoint(newPrompt(os.Stdin, os.Stderr)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	sum, err := fader.Run(ctx, input)
	if err != nil {
		log.Error("fade failed", zap.String("input", input), zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}
	printSummary(os.Stdout, sum)
	return exitOK
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func printSummary(w io.Writer, sum gdalfade.Summary) {
	p := message.NewPrinter(language.English)
	line := func(label, format string, a ...any) {
		p.Fprintf(w, "%s %s\n", labelStyle.Render(label), p.Sprintf(format, a...))
	}
	fmt.Fprintln(w, okStyle.Render("done"))
	line("output", "%s", sum.Output)
	line("scratch", "%s", sum.ScratchDir)
	line("size", "%d x %d", sum.Width, sum.Height)
	line("opaque pixels", "%d", sum.OpaquePixels)
	line("polygons", "%d", sum.Polygons)
	line("boundary pixels", "%d", sum.BoundaryPixels)
	line("stages ran", "%s", strings.Join(sum.Ran, ", "))
	line("stages cached", "%s", strings.Join(sum.Skipped, ", "))
	line("elapsed", "%v", sum.Elapsed.Round(time.Millisecond))
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `gdalfade fades the edge of the opaque area of an RGBA GeoTIFF.

Usage:
  gdalfade [flags] <input.tif>

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}
