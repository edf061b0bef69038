package scaledef

import (
	"fmt"
	"io"
	"iter"

	"github.com/reefmodel/reefscale/internal/units"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultReferenceSkipRows matches the two header lines written at the top
// of rig coordinate files.
const DefaultReferenceSkipRows = 2

// ReferencePoint is the known position of a labeled marker in the rig's
// reference system, with optional per-axis accuracy.
type ReferencePoint struct {
	Label    string
	Position r3.Vec
	Accuracy r3.Vec // zero when the file carries no accuracy columns
	Line     int
}

// ParseReferences reads label,X,Y,Z[,accX,accY,accZ] records from r.
// Coordinates are converted to metres using opts.Unit.
func ParseReferences(r io.Reader, opts Options) iter.Seq2[ReferencePoint, error] {
	return func(yield func(ReferencePoint, error) bool) {
		perUnit, err := units.MetresPer(opts.Unit)
		if err != nil {
			yield(ReferencePoint{}, err)
			return
		}
		seq := records(r, opts.SkipRows, func(line int, text string, fields []string) (ReferencePoint, error) {
			if len(fields) != 4 && len(fields) != 7 {
				return ReferencePoint{}, &ParseError{
					Line:   line,
					Text:   text,
					Reason: fmt.Sprintf("expected 4 or 7 fields (label,X,Y,Z[,accX,accY,accZ]), got %d", len(fields)),
				}
			}
			if fields[0] == "" {
				return ReferencePoint{}, &ParseError{Line: line, Text: text, Reason: "empty marker label"}
			}
			var nums [6]float64
			names := [6]string{"X", "Y", "Z", "X accuracy", "Y accuracy", "Z accuracy"}
			for i, f := range fields[1:] {
				v, err := parseNumber(line, text, names[i], f)
				if err != nil {
					return ReferencePoint{}, err
				}
				if i >= 3 && v < 0 {
					return ReferencePoint{}, &ParseError{Line: line, Text: text, Reason: names[i] + " must not be negative"}
				}
				nums[i] = v * perUnit
			}
			return ReferencePoint{
				Label:    fields[0],
				Position: r3.Vec{X: nums[0], Y: nums[1], Z: nums[2]},
				Accuracy: r3.Vec{X: nums[3], Y: nums[4], Z: nums[5]},
				Line:     line,
			}, nil
		})
		for p, err := range seq {
			if !yield(p, err) {
				return
			}
		}
	}
}
