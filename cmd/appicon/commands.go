package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/Mavwarf/appicon/internal/config"
	"github.com/Mavwarf/appicon/internal/export"
	"github.com/Mavwarf/appicon/internal/generator"
	"github.com/Mavwarf/appicon/internal/history"
	"github.com/Mavwarf/appicon/internal/hooks"
	"github.com/Mavwarf/appicon/internal/manifest"
	"github.com/Mavwarf/appicon/internal/paths"
	"github.com/Mavwarf/appicon/internal/plan"
	"github.com/Mavwarf/appicon/internal/render"
	"github.com/Mavwarf/appicon/internal/sink"
)

// settings are the effective generation settings after merging CLI flags
// over the config file.
type settings struct {
	OutputDir   string // empty for dry runs
	Workers     int
	Filter      string
	Compression string
	Serialize   bool
}

// resolveSettings applies CLI > config > built-in precedence.
func resolveSettings(opts runOpts, cfg config.Config) settings {
	s := settings{
		OutputDir:   cfg.Options.OutputDir,
		Workers:     cfg.Options.Workers,
		Filter:      cfg.Options.Filter,
		Compression: cfg.Options.Compression,
		Serialize:   cfg.Options.Serialize || opts.Serialize,
	}
	if opts.Output != "" {
		s.OutputDir = opts.Output
	}
	if s.OutputDir == "" {
		s.OutputDir = "."
	}
	if opts.DryRun {
		s.OutputDir = ""
	}
	if opts.Workers >= 0 {
		s.Workers = opts.Workers
	}
	if opts.Filter != "" {
		s.Filter = opts.Filter
	}
	if opts.Compression != "" {
		s.Compression = opts.Compression
	}
	return s
}

func loadAndValidate(configPath string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func generateCmd(args []string, opts runOpts) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: appicon [options] generate <source>\n")
		os.Exit(1)
	}
	source := args[0]

	cfg, err := loadAndValidate(opts.ConfigPath)
	if err != nil {
		fatal("%v", err)
	}
	s := resolveSettings(opts, cfg)

	data, err := os.ReadFile(source)
	if err != nil {
		fatal("%v", err)
	}

	var r render.Rasterizer
	png, err := render.NewPNG(s.Filter, s.Compression)
	if err != nil {
		fatal("%v", err)
	}
	r = png
	if s.Serialize {
		serial := render.NewSerial(png)
		defer serial.Close()
		r = serial
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progress := !opts.Quiet && term.IsTerminal(int(os.Stderr.Fd()))
	genOpts := generator.Options{Rasterizer: r, Workers: s.Workers}
	if progress {
		genOpts.Progress = func(done, total int, filename string) {
			fmt.Fprintf(os.Stderr, "\r\033[K[%d/%d] %s", done, total, filename)
		}
	}

	start := time.Now()
	set, genErr := generator.Generate(ctx, data, s.OutputDir, genOpts)
	elapsed := time.Since(start)
	if progress {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}

	ev := hooks.Event{
		Source:   source,
		Output:   s.OutputDir,
		Duration: elapsed,
		Err:      genErr,
	}
	if set != nil {
		ev.Count = len(set.Images)
		ev.Bytes = set.TotalBytes()
	}

	if cfg.Options.History {
		id, err := recordHistory(historyPath(cfg), ev, set)
		if err != nil {
			warn("history", err)
		}
		ev.RunID = id
	}

	if err := runHooks(ctx, cfg.Hooks, ev); err != nil {
		warn("hooks", err)
	}

	if genErr != nil {
		fatal("%v", genErr)
	}
	if opts.Quiet {
		return
	}
	if s.OutputDir == "" {
		fmt.Print(renderSizes(set))
	}
	fmt.Println(summaryLine(ev, set.Source, s.OutputDir))
}

// runHooks fires the configured hooks for ev. Hooks still run after an
// interrupt so that failure hooks can report the cancelled run; each hook
// type bounds its own duration.
func runHooks(ctx context.Context, hs []config.Hook, ev hooks.Event) error {
	if len(hs) == 0 {
		return nil
	}
	return hooks.Execute(context.WithoutCancel(ctx), hs, ev)
}

// describeSource names the format and native size of src, e.g.
// "png 1024x1024".
func describeSource(src render.Source) string {
	if src == nil {
		return "unknown source"
	}
	b := src.Bounds()
	return fmt.Sprintf("%s %dx%d", src.Format(), b.Dx(), b.Dy())
}

// summaryLine describes a successful run in one line.
func summaryLine(ev hooks.Event, src render.Source, outputDir string) string {
	where := "in memory (dry run)"
	if outputDir != "" {
		where = "to " + sink.Path(outputDir)
	}
	return fmt.Sprintf("Rendered %d renditions (%s) from %s %s in %s",
		ev.Count, humanize.Bytes(uint64(ev.Bytes)), describeSource(src), where, hooks.FormatDuration(ev.Duration))
}

// renderSizes lists every rendition of set with its encoded size.
func renderSizes(set *export.IconSet) string {
	var b strings.Builder
	for _, img := range set.Images {
		fmt.Fprintf(&b, "  %-16s %5dpx  %s\n", img.Filename, img.Pixels, humanize.Bytes(uint64(len(img.Data))))
	}
	return b.String()
}

func historyPath(cfg config.Config) string {
	if cfg.Options.HistoryPath != "" {
		return cfg.Options.HistoryPath
	}
	return paths.HistoryPath()
}

func openStore(path string) (history.Store, error) {
	return history.NewSQLiteStore(path)
}

func recordHistory(path string, ev hooks.Event, set *export.IconSet) (string, error) {
	store, err := openStore(path)
	if err != nil {
		return "", err
	}
	defer store.Close()
	return recordRun(store, ev, set)
}

// recordRun stores ev and the renditions of set (nil on failure).
func recordRun(store history.Store, ev hooks.Event, set *export.IconSet) (string, error) {
	run := history.Run{
		ID:         history.NewID(),
		Source:     ev.Source,
		OutputDir:  ev.Output,
		Renditions: ev.Count,
		Bytes:      ev.Bytes,
		Duration:   ev.Duration,
	}
	if ev.Err != nil {
		run.Error = ev.Err.Error()
	}
	if abs, err := filepath.Abs(run.Source); err == nil {
		run.Source = abs
	}

	var rends []history.Rendition
	if set != nil {
		if set.Source != nil {
			b := set.Source.Bounds()
			run.Format, run.Width, run.Height = set.Source.Format(), b.Dx(), b.Dy()
		}
		rends = make([]history.Rendition, len(set.Images))
		for i, img := range set.Images {
			rends[i] = history.Rendition{Filename: img.Filename, Pixels: img.Pixels, Bytes: len(img.Data)}
		}
	}
	return store.Record(run, rends)
}

func planCmd() {
	m, p, err := generator.Plan()
	if err != nil {
		fatal("%v", err)
	}
	fmt.Print(renderPlan(p))
	if skipped := unplanned(m, p); len(skipped) > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d manifest filenames have no valid size or scale: %s\n",
			len(skipped), strings.Join(skipped, ", "))
	}
}

// unplanned returns the filenames m names that p does not produce.
func unplanned(m manifest.Manifest, p []plan.Rendition) []string {
	planned := make(map[string]bool, len(p))
	for _, name := range plan.Filenames(p) {
		planned[name] = true
	}
	var out []string
	for _, name := range m.Filenames() {
		if !planned[name] {
			out = append(out, name)
		}
	}
	return out
}

// renderPlan formats p as an aligned table.
func renderPlan(p []plan.Rendition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-14s %8s %6s %7s\n", "FILENAME", "IDIOM", "POINTS", "SCALE", "PIXELS")
	for _, r := range p {
		fmt.Fprintf(&b, "%-16s %-14s %8s %5sx %7d\n",
			r.Filename, r.Idiom, humanize.Ftoa(r.Points), humanize.Ftoa(r.Factor), r.Pixels)
	}
	fmt.Fprintf(&b, "%d renditions\n", len(p))
	return b.String()
}

func manifestCmd() {
	os.Stdout.Write(manifest.Bundled())
}
