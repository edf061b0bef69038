package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/reefmodel/reefscale/internal/fsutil"
	"github.com/reefmodel/reefscale/internal/units"
)

// DefaultConfigPath is where the CLI looks, relative to the working
// directory, for a pipeline config when none is given. A missing file is
// not an error.
const DefaultConfigPath = "config/pipeline.defaults.json"

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

// PipelineConfig holds the per-run settings of the calibration and region
// stages. Every field is optional; the Get* methods supply defaults, so a
// partial file only overrides what it names.
type PipelineConfig struct {
	// Calibration stage
	ScalebarsPath     *string `json:"scalebars_path,omitempty" toml:"scalebars_path,omitempty"`
	ScalebarsSkipRows *int    `json:"scalebars_skip_rows,omitempty" toml:"scalebars_skip_rows,omitempty"`
	ReferencePath     *string `json:"reference_path,omitempty" toml:"reference_path,omitempty"`
	ReferenceSkipRows *int    `json:"reference_skip_rows,omitempty" toml:"reference_skip_rows,omitempty"`
	DistanceUnit      *string `json:"distance_unit,omitempty" toml:"distance_unit,omitempty"` // m, cm or mm

	// Region stage
	RegionEnabled       *bool       `json:"region_enabled,omitempty" toml:"region_enabled,omitempty"`
	RegionCenter        *[3]float64 `json:"region_center,omitempty" toml:"region_center,omitempty"`
	RegionSize          *[3]float64 `json:"region_size,omitempty" toml:"region_size,omitempty"` // metres
	RegionAngleDeg      *float64    `json:"region_angle_deg,omitempty" toml:"region_angle_deg,omitempty"`
	ApplyRegionRotation *bool       `json:"apply_region_rotation,omitempty" toml:"apply_region_rotation,omitempty"`
	AlignRegionAxes     *bool       `json:"align_region_axes,omitempty" toml:"align_region_axes,omitempty"`
}

func ptrBool(v bool) *bool               { return &v }
func ptrString(v string) *string         { return &v }
func ptrInt(v int) *int                  { return &v }
func ptrFloat64(v float64) *float64      { return &v }
func ptrVec(x, y, z float64) *[3]float64 { return &[3]float64{x, y, z} }

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field set to its
// default.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ScalebarsSkipRows:   ptrInt(0),
		ReferenceSkipRows:   ptrInt(2),
		DistanceUnit:        ptrString(units.Metre),
		RegionEnabled:       ptrBool(true),
		RegionCenter:        ptrVec(0, 0, 0.02),
		RegionSize:          ptrVec(0.1, 0.1, 0.14),
		RegionAngleDeg:      ptrFloat64(90),
		ApplyRegionRotation: ptrBool(false),
		AlignRegionAxes:     ptrBool(false),
	}
}

// LoadPipelineConfig loads a config from a .json or .toml file. The file
// must be under 1MB. The result is validated before it is returned.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	return LoadPipelineConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadPipelineConfigFS is LoadPipelineConfig reading through fsys.
func LoadPipelineConfigFS(fsys fsutil.FileSystem, path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	switch ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *PipelineConfig) Validate() error {
	if c.ScalebarsSkipRows != nil && *c.ScalebarsSkipRows < 0 {
		return fmt.Errorf("scalebars_skip_rows must be non-negative, got %d", *c.ScalebarsSkipRows)
	}
	if c.ReferenceSkipRows != nil && *c.ReferenceSkipRows < 0 {
		return fmt.Errorf("reference_skip_rows must be non-negative, got %d", *c.ReferenceSkipRows)
	}
	if c.DistanceUnit != nil && *c.DistanceUnit != "" && !units.IsValid(*c.DistanceUnit) {
		return fmt.Errorf("invalid distance_unit %q, must be one of: %s", *c.DistanceUnit, units.GetValidUnitsString())
	}
	if c.RegionCenter != nil {
		for i, v := range c.RegionCenter {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("region_center[%d] must be finite, got %v", i, v)
			}
		}
	}
	if c.RegionSize != nil {
		for i, v := range c.RegionSize {
			if !(v > 0) || math.IsInf(v, 0) {
				return fmt.Errorf("region_size[%d] must be positive, got %v", i, v)
			}
		}
	}
	if c.RegionAngleDeg != nil && (math.IsNaN(*c.RegionAngleDeg) || math.IsInf(*c.RegionAngleDeg, 0)) {
		return fmt.Errorf("region_angle_deg must be finite, got %v", *c.RegionAngleDeg)
	}
	return nil
}

// GetScalebarsPath returns the scale definition file, or "" when the
// calibration stage should not run.
func (c *PipelineConfig) GetScalebarsPath() string {
	if c.ScalebarsPath == nil {
		return ""
	}
	return *c.ScalebarsPath
}

// GetScalebarsSkipRows returns the header rows to skip in the scale file.
func (c *PipelineConfig) GetScalebarsSkipRows() int {
	if c.ScalebarsSkipRows == nil {
		return 0
	}
	return *c.ScalebarsSkipRows
}

// GetReferencePath returns the reference coordinate file, or "" when no
// references are imported.
func (c *PipelineConfig) GetReferencePath() string {
	if c.ReferencePath == nil {
		return ""
	}
	return *c.ReferencePath
}

// GetReferenceSkipRows returns the header rows to skip in the reference
// file.
func (c *PipelineConfig) GetReferenceSkipRows() int {
	if c.ReferenceSkipRows == nil {
		return 2
	}
	return *c.ReferenceSkipRows
}

// GetDistanceUnit returns the unit definition files are written in.
func (c *PipelineConfig) GetDistanceUnit() string {
	if c.DistanceUnit == nil || *c.DistanceUnit == "" {
		return units.Metre
	}
	return *c.DistanceUnit
}

// GetRegionEnabled reports whether the region stage runs.
func (c *PipelineConfig) GetRegionEnabled() bool {
	if c.RegionEnabled == nil {
		return true
	}
	return *c.RegionEnabled
}

// GetRegionCenter returns the region center in reference-system units.
func (c *PipelineConfig) GetRegionCenter() [3]float64 {
	if c.RegionCenter == nil {
		return [3]float64{0, 0, 0.02}
	}
	return *c.RegionCenter
}

// GetRegionSize returns the region size in metres.
func (c *PipelineConfig) GetRegionSize() [3]float64 {
	if c.RegionSize == nil {
		return [3]float64{0.1, 0.1, 0.14}
	}
	return *c.RegionSize
}

// GetRegionAngleDeg returns the region rotation about the vertical axis.
func (c *PipelineConfig) GetRegionAngleDeg() float64 {
	if c.RegionAngleDeg == nil {
		return 90
	}
	return *c.RegionAngleDeg
}

// GetApplyRegionRotation reports whether the region rotation is written.
func (c *PipelineConfig) GetApplyRegionRotation() bool {
	if c.ApplyRegionRotation == nil {
		return false
	}
	return *c.ApplyRegionRotation
}

// GetAlignRegionAxes reports whether the region is aligned to the local
// frame before the region stage.
func (c *PipelineConfig) GetAlignRegionAxes() bool {
	if c.AlignRegionAxes == nil {
		return false
	}
	return *c.AlignRegionAxes
}

// Merge returns a copy of c with every field set in o overriding c.
func (c *PipelineConfig) Merge(o *PipelineConfig) *PipelineConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.ScalebarsPath != nil {
		out.ScalebarsPath = o.ScalebarsPath
	}
	if o.ScalebarsSkipRows != nil {
		out.ScalebarsSkipRows = o.ScalebarsSkipRows
	}
	if o.ReferencePath != nil {
		out.ReferencePath = o.ReferencePath
	}
	if o.ReferenceSkipRows != nil {
		out.ReferenceSkipRows = o.ReferenceSkipRows
	}
	if o.DistanceUnit != nil {
		out.DistanceUnit = o.DistanceUnit
	}
	if o.RegionEnabled != nil {
		out.RegionEnabled = o.RegionEnabled
	}
	if o.RegionCenter != nil {
		out.RegionCenter = o.RegionCenter
	}
	if o.RegionSize != nil {
		out.RegionSize = o.RegionSize
	}
	if o.RegionAngleDeg != nil {
		out.RegionAngleDeg = o.RegionAngleDeg
	}
	if o.ApplyRegionRotation != nil {
		out.ApplyRegionRotation = o.ApplyRegionRotation
	}
	if o.AlignRegionAxes != nil {
		out.AlignRegionAxes = o.AlignRegionAxes
	}
	return &out
}
