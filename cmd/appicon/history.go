package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Mavwarf/appicon/internal/history"
	"github.com/Mavwarf/appicon/internal/hooks"
)

func historyCmd(args []string, configPath string) {
	cfg, err := loadAndValidate(configPath)
	if err != nil {
		fatal("%v", err)
	}
	path := historyPath(cfg)

	if len(args) > 0 {
		switch args[0] {
		case "clear":
			historyClear(path)
			return
		case "clean":
			historyClean(path, args[1:])
			return
		case "show":
			historyShow(path, args[1:])
			return
		}
	}

	count := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fatal("count must be a positive integer")
		}
		count = n
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No history found. Enable it with \"history\": true in config.")
		return
	}

	store, err := openStore(path)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	runs, err := store.Recent(count)
	if err != nil {
		fatal("%v", err)
	}
	if len(runs) == 0 {
		fmt.Println("History is empty.")
		return
	}

	var out strings.Builder
	renderRuns(&out, runs, time.Now())
	fmt.Print(out.String())
}

// renderRuns writes runs, newest first, as an aligned table.
func renderRuns(w *strings.Builder, runs []history.Run, now time.Time) {
	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
		bold(padR("WHEN", colWhen)), bold(padR("STATUS", colStatus)),
		bold(padL("FILES", colFiles)), bold(padL("SIZE", colSize)), bold("SOURCE"))
	for _, r := range runs {
		status := green(padR("ok", colStatus))
		if !r.OK() {
			status = red(padR("failed", colStatus))
		}
		source := r.Source
		if r.Format != "" {
			source += dim(fmt.Sprintf(" (%s %dx%d)", r.Format, r.Width, r.Height))
		}
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			dim(padR(humanize.RelTime(r.Time, now, "ago", "from now"), colWhen)),
			status,
			padL(strconv.Itoa(r.Renditions), colFiles),
			padL(humanize.Bytes(uint64(r.Bytes)), colSize),
			source)
		detail := "id " + r.ID + ", took " + hooks.FormatDuration(r.Duration)
		if r.OutputDir != "" {
			detail += ", wrote " + r.OutputDir
		}
		fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", colWhen), dim(detail))
		if !r.OK() {
			fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", colWhen), r.Error)
		}
	}
}

func historyClear(path string) {
	store, err := openStore(path)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()
	if err := store.Clear(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("History cleared.")
}

func historyClean(path string, args []string) {
	if len(args) == 0 {
		historyClear(path)
		return
	}

	days, err := strconv.Atoi(args[0])
	if err != nil || days <= 0 {
		fatal("days must be a positive integer")
	}

	store, err := openStore(path)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	removed, err := store.Clean(days)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Removed %d runs older than %d days.\n", removed, days)
}

func historyShow(path string, args []string) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: appicon history show <run-id>\n")
		os.Exit(1)
	}
	store, err := openStore(path)
	if err != nil {
		fatal("%v", err)
	}
	defer store.Close()

	var out strings.Builder
	if err := renderRenditions(&out, store, args[0]); err != nil {
		fatal("%v", err)
	}
	fmt.Print(out.String())
}

// renderRenditions writes the files recorded for runID.
func renderRenditions(w *strings.Builder, store history.Store, runID string) error {
	rends, err := store.Renditions(runID)
	if err != nil {
		return err
	}
	if len(rends) == 0 {
		fmt.Fprintf(w, "No renditions recorded for run %s.\n", runID)
		return nil
	}
	fmt.Fprintf(w, "%s  %s  %s\n",
		bold(padR("FILENAME", colFilename)), bold(padL("PIXELS", colPixels)), bold(padL("SIZE", colSize)))
	var total int64
	for _, r := range rends {
		fmt.Fprintf(w, "%s  %s  %s\n",
			padR(r.Filename, colFilename),
			padL(strconv.Itoa(r.Pixels), colPixels),
			padL(humanize.Bytes(uint64(r.Bytes)), colSize))
		total += int64(r.Bytes)
	}
	fmt.Fprintf(w, "%d files, %s\n", len(rends), humanize.Bytes(uint64(total)))
	return nil
}

// --- Table layout constants ---

const (
	colWhen   = 16
	colStatus = 6
	colFiles  = 5
	colSize   = 8

	colFilename = 16
	colPixels   = 6
)

// --- ANSI color helpers (disabled when NO_COLOR env var is set) ---

var noColor = os.Getenv("NO_COLOR") != ""

func ansi(code, s string) string {
	if noColor {
		return s
	}
	return code + s + "\033[0m"
}

func bold(s string) string  { return ansi("\033[1m", s) }
func dim(s string) string   { return ansi("\033[2m", s) }
func green(s string) string { return ansi("\033[32m", s) }
func red(s string) string   { return ansi("\033[31m", s) }

func padL(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padR(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
