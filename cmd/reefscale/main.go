// Command reefscale calibrates photogrammetry sessions of coral fragment
// racks: it applies scale bar and reference definitions to stored session
// snapshots and rewrites their reconstruction regions.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/reefmodel/reefscale/internal/version"
)

// Environment variables read after .env is loaded.
const (
	envDB     = "REEFSCALE_DB"
	envConfig = "REEFSCALE_CONFIG"
)

const defaultDBPath = "reefscale.db"

// errSessionsFailed marks a command that ran but had failing sessions.
var errSessionsFailed = errors.New("one or more sessions failed")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "import":
		err = handleImport(rest, stdout, stderr)
	case "calibrate":
		err = handleCalibrate(rest, stdout, stderr)
	case "region":
		err = handleRegion(rest, stdout, stderr)
	case "run":
		err = handleRun(rest, stdout, stderr)
	case "show":
		err = handleShow(rest, stdout, stderr)
	case "export":
		err = handleExport(rest, stdout, stderr)
	case "delete":
		err = handleDelete(rest, stdout, stderr)
	case "migrate":
		err = handleMigrate(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "reefscale %s\n", version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errSessionsFailed):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `reefscale - scale and region calibration for photogrammetry sessions

Usage: reefscale <command> [options] [session...]

Commands:
  import     Store session snapshots exported from the reconstruction engine
  calibrate  Apply reference coordinates and scale bar definitions
  region     Align and rewrite the reconstruction region
  run        Run every enabled stage
  show       Print a session summary and its recent stage runs
  export     Write a stored session snapshot as JSON
  delete     Remove stored sessions and their stage runs
  migrate    Manage the database schema (up, down, status, force)
  version    Show version information
  help       Show this help message

Common Flags:
  -db <path>       SQLite database (default $REEFSCALE_DB or reefscale.db)
  -config <file>   Pipeline config, .json or .toml (default $REEFSCALE_CONFIG,
                   then config/pipeline.defaults.json if present)
  -debug           Human-readable debug logging

Sessions are named by label or ID; -all selects every stored session.
A .env file in the working directory is loaded before flags are read.

Examples:
  reefscale import Tag23.json Tag24.json
  reefscale calibrate -scalebars rack.txt -unit mm Tag23
  reefscale region -size 0.1,0.1,0.14 -apply-rotation Tag23
  reefscale run -config pipeline.toml -all
`)
}
