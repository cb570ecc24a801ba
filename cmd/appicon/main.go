package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// runOpts holds global CLI flags. Zero values defer to the config file.
type runOpts struct {
	ConfigPath  string
	Output      string
	Workers     int
	Filter      string
	Compression string
	Serialize   bool
	DryRun      bool
	Quiet       bool
}

func main() {
	opts, rest, err := parseArgs(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}

	if len(rest) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch rest[0] {
	case "help", "-h", "--help":
		printUsage()
	case "version", "-V", "--version":
		printVersion()
	case "generate", "gen":
		generateCmd(rest[1:], opts)
	case "plan":
		planCmd()
	case "manifest":
		manifestCmd()
	case "history":
		historyCmd(rest[1:], opts.ConfigPath)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", rest[0])
		fmt.Fprintf(os.Stderr, "Run 'appicon help' for usage.\n")
		os.Exit(1)
	}
}

// parseArgs extracts global flags from args and returns the remaining
// positional arguments in order.
func parseArgs(args []string) (runOpts, []string, error) {
	opts := runOpts{Workers: -1}
	var rest []string

	value := func(i int, flag, what string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires %s", flag, what)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		var err error
		switch a := args[i]; a {
		case "--config", "-c":
			opts.ConfigPath, err = value(i, a, "a file path")
			i++
		case "--output", "-o":
			opts.Output, err = value(i, a, "a directory")
			i++
		case "--workers", "-w":
			var v string
			if v, err = value(i, a, "a number"); err == nil {
				n, convErr := strconv.Atoi(v)
				if convErr != nil || n < 0 {
					err = fmt.Errorf("workers must be a non-negative integer")
				}
				opts.Workers = n
			}
			i++
		case "--filter":
			opts.Filter, err = value(i, a, "a filter name")
			i++
		case "--compression":
			opts.Compression, err = value(i, a, "a compression level")
			i++
		case "--serialize":
			opts.Serialize = true
		case "--dry-run", "-n":
			opts.DryRun = true
		case "--quiet", "-q":
			opts.Quiet = true
		default:
			rest = append(rest, a)
		}
		if err != nil {
			return runOpts{}, nil, err
		}
	}
	return opts, rest, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// warn reports a best-effort failure without changing the exit code.
func warn(pkg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", pkg, err)
}

func printVersion() {
	fmt.Printf("appicon %s (%s) %s/%s\n", version, buildDate, runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Printf("appicon %s - Generate an AppIcon.appiconset from one source image\n", version)
	fmt.Println(`
Usage:
  appicon [options] generate <source>
  appicon plan
  appicon manifest
  appicon history [count]
  appicon history show <run-id>
  appicon history clean <days>
  appicon history clear

Options:
  --config, -c <path>        Path to appicon.json or appicon.yaml
  --output, -o <dir>         Output directory (default: config or ".")
  --workers, -w <n>          Concurrent renditions (0 = one per CPU)
  --filter <name>            nearest, approx-bilinear, bilinear, catmull-rom
  --compression <level>      default, none, speed, best
  --serialize                Rasterize one rendition at a time on one goroutine
  --dry-run, -n              Render in memory and report; write nothing
  --quiet, -q                No progress or summary output

Commands:
  generate, gen              Render every planned rendition and write the set
  plan                       List the renditions that would be produced
  manifest                   Print the bundled Contents.json
  history                    Show recent runs (requires "history": true)
  version, -V                Show version and build date
  help, -h, --help           Show this help message

Config resolution:
  1. --config <path>                        (explicit)
  2. appicon.json / appicon.yaml next to binary  (portable)
  3. ~/.config/appicon/appicon.json / .yaml      (user default)
  APPICON_* environment variables override file values.

Source formats:
  PNG, JPEG, GIF, BMP, TIFF, WebP, SVG

Examples:
  appicon generate logo.svg                 Write ./AppIcon.appiconset
  appicon -o Assets.xcassets generate logo.png
  appicon --dry-run generate logo.png       Check sizes without writing
  appicon history clean 30                  Drop runs older than 30 days`)
}
