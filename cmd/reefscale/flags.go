package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/reefmodel/reefscale/internal/config"
	"github.com/reefmodel/reefscale/internal/monitoring"
)

// commonFlags are accepted by every command that touches the database.
type commonFlags struct {
	dbPath     string
	configPath string
	debug      bool
	all        bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &commonFlags{}
	fs.StringVar(&c.dbPath, "db", envOr(envDB, defaultDBPath), "SQLite database path")
	fs.StringVar(&c.configPath, "config", os.Getenv(envConfig), "Pipeline config file (.json or .toml)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	return fs, c
}

func (c *commonFlags) initLogging(stderr io.Writer) {
	monitoring.Init(stderr, c.debug)
}

// vec3 parses "x,y,z".
type vec3 [3]float64

func (v *vec3) String() string {
	return fmt.Sprintf("%g,%g,%g", v[0], v[1], v[2])
}

func (v *vec3) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return fmt.Errorf("expected x,y,z, got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("invalid component %q: %w", p, err)
		}
		v[i] = f
	}
	return nil
}

// stageFlags are per-invocation overrides of the pipeline config. Only flags
// given on the command line override the file.
type stageFlags struct {
	scalebars      string
	reference      string
	unit           string
	skipRows       int
	refSkipRows    int
	center         vec3
	size           vec3
	angle          float64
	applyRotation  bool
	align          bool
	regionDisabled bool
}

func (o *stageFlags) registerCalibration(fs *flag.FlagSet) {
	fs.StringVar(&o.scalebars, "scalebars", "", "Scale bar definition file (labelA,labelB,distance,accuracy)")
	fs.StringVar(&o.reference, "reference", "", "Reference coordinate file (label,X,Y,Z[,accX,accY,accZ])")
	fs.StringVar(&o.unit, "unit", "", "Unit of distances in the definition files (m, cm, mm)")
	fs.IntVar(&o.skipRows, "skip-rows", 0, "Header rows to skip in the scale bar file")
	fs.IntVar(&o.refSkipRows, "reference-skip-rows", 2, "Header rows to skip in the reference file")
}

func (o *stageFlags) registerRegion(fs *flag.FlagSet) {
	fs.Var(&o.center, "center", "Region center x,y,z in reference system units")
	fs.Var(&o.size, "size", "Region size x,y,z in metres")
	fs.Float64Var(&o.angle, "angle", 90, "Region rotation about the vertical axis, degrees")
	fs.BoolVar(&o.applyRotation, "apply-rotation", false, "Write the region rotation")
	fs.BoolVar(&o.align, "align", false, "Align the region axes with the local frame first")
	fs.BoolVar(&o.regionDisabled, "no-region", false, "Skip the region rewrite")
}

// overrides returns a config holding only the flags set on fs.
func (o *stageFlags) overrides(fs *flag.FlagSet) *config.PipelineConfig {
	out := config.EmptyPipelineConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scalebars":
			out.ScalebarsPath = &o.scalebars
		case "reference":
			out.ReferencePath = &o.reference
		case "unit":
			out.DistanceUnit = &o.unit
		case "skip-rows":
			out.ScalebarsSkipRows = &o.skipRows
		case "reference-skip-rows":
			out.ReferenceSkipRows = &o.refSkipRows
		case "center":
			c := [3]float64(o.center)
			out.RegionCenter = &c
		case "size":
			s := [3]float64(o.size)
			out.RegionSize = &s
		case "angle":
			out.RegionAngleDeg = &o.angle
		case "apply-rotation":
			out.ApplyRegionRotation = &o.applyRotation
		case "align":
			out.AlignRegionAxes = &o.align
		case "no-region":
			enabled := !o.regionDisabled
			out.RegionEnabled = &enabled
		}
	})
	return out
}

// resolveConfigPath returns the config file to load: the one named by c, else
// config.DefaultConfigPath when it exists, else "".
func (c *commonFlags) resolveConfigPath() string {
	if c.configPath != "" {
		return c.configPath
	}
	if _, err := files.Stat(config.DefaultConfigPath); err == nil {
		return config.DefaultConfigPath
	}
	return ""
}

// loadConfig reads the config file named by c, or the default one, and
// applies the flag overrides.
func loadConfig(c *commonFlags, overrides *config.PipelineConfig) (*config.PipelineConfig, error) {
	base := config.EmptyPipelineConfig()
	if path := c.resolveConfigPath(); path != "" {
		loaded, err := config.LoadPipelineConfigFS(files, path)
		if err != nil {
			return nil, err
		}
		base = loaded
	}
	cfg := base.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
