package scaledef

import (
	"fmt"
	"io"
	"iter"

	"github.com/reefmodel/reefscale/internal/fsutil"
	"github.com/reefmodel/reefscale/internal/units"
)

// Constraint is one known distance between two labeled markers. The pair
// is unordered: (A,B) and (B,A) describe the same constraint.
type Constraint struct {
	LabelA   string
	LabelB   string
	Distance float64 // metres
	Accuracy float64 // metres
	Line     int
}

// Options control how a definition file is read.
type Options struct {
	// SkipRows is the number of leading header rows to ignore.
	SkipRows int
	// Unit is the length unit distances and accuracies are written in.
	// Values are converted to metres. Empty means metres.
	Unit string
}

// ParseConstraints reads labelA,labelB,distance,accuracy records from r.
// Labels are kept byte for byte; case and whitespace matter because the
// marker lookup is exact.
func ParseConstraints(r io.Reader, opts Options) iter.Seq2[Constraint, error] {
	perUnit, unitErr := units.MetresPer(opts.Unit)
	if unitErr != nil {
		return func(yield func(Constraint, error) bool) {
			yield(Constraint{}, unitErr)
		}
	}
	return records(r, opts.SkipRows, func(line int, text string, fields []string) (Constraint, error) {
		if len(fields) != 4 {
			return Constraint{}, &ParseError{
				Line:   line,
				Text:   text,
				Reason: fmt.Sprintf("expected 4 fields (labelA,labelB,distance,accuracy), got %d", len(fields)),
			}
		}
		if fields[0] == "" || fields[1] == "" {
			return Constraint{}, &ParseError{Line: line, Text: text, Reason: "empty marker label"}
		}
		if fields[0] == fields[1] {
			return Constraint{}, &ParseError{Line: line, Text: text, Reason: "a scalebar needs two different markers"}
		}
		dist, err := parsePositive(line, text, "distance", fields[2])
		if err != nil {
			return Constraint{}, err
		}
		acc, err := parsePositive(line, text, "accuracy", fields[3])
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{
			LabelA:   fields[0],
			LabelB:   fields[1],
			Distance: dist * perUnit,
			Accuracy: acc * perUnit,
			Line:     line,
		}, nil
	})
}

// Source is a definition file that can be iterated any number of times;
// each iteration reopens the file.
type Source struct {
	FS   fsutil.FileSystem
	Path string
	Opts Options
}

// NewSource returns a Source reading path from the OS filesystem.
func NewSource(path string, opts Options) Source {
	return Source{FS: fsutil.OSFileSystem{}, Path: path, Opts: opts}
}

func (s Source) open() (io.ReadCloser, error) {
	fsys := s.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	f, err := fsys.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open definition file: %w", err)
	}
	return f, nil
}

// Constraints iterates the file as scale constraints.
func (s Source) Constraints() iter.Seq2[Constraint, error] {
	return func(yield func(Constraint, error) bool) {
		f, err := s.open()
		if err != nil {
			yield(Constraint{}, err)
			return
		}
		defer f.Close()
		for c, err := range ParseConstraints(f, s.Opts) {
			if !yield(c, err) {
				return
			}
		}
	}
}

// References iterates the file as reference coordinates.
func (s Source) References() iter.Seq2[ReferencePoint, error] {
	return func(yield func(ReferencePoint, error) bool) {
		f, err := s.open()
		if err != nil {
			yield(ReferencePoint{}, err)
			return
		}
		defer f.Close()
		for p, err := range ParseReferences(f, s.Opts) {
			if !yield(p, err) {
				return
			}
		}
	}
}
