// Package scaledef parses the plain-text definition files that accompany a
// capture rig: scale definitions (known distances between marker pairs) and
// reference coordinates (known marker positions).
//
// Both formats are comma-separated, one record per line. Parsing is lazy:
// callers range over an iter.Seq2 and stop at the first error. A zero-length
// line ends the file, so anything after a blank line is ignored.
package scaledef

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
)

// ParseError reports a malformed record. It is fatal to the parse: the
// sequence yields it and stops.
type ParseError struct {
	Line   int
	Text   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v (%q)", e.Line, e.Reason, e.Err, e.Text)
	}
	return fmt.Sprintf("line %d: %s (%q)", e.Line, e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// decodeFunc turns the fields of one line into a record.
type decodeFunc[T any] func(line int, text string, fields []string) (T, error)

// records yields one decoded record per line of r after skipping skip
// leading rows. Lines are split with encoding/csv rules so quoted labels
// may contain commas.
func records[T any](r io.Reader, skip int, decode decodeFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		br := bufio.NewReader(r)
		lineNo := 0
		for {
			raw, readErr := br.ReadString('\n')
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				yield(zero, fmt.Errorf("read line %d: %w", lineNo+1, readErr))
				return
			}
			if raw == "" && readErr != nil {
				return
			}
			lineNo++

			text := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
			if lineNo <= skip {
				if readErr != nil {
					return
				}
				continue
			}
			if text == "" {
				return
			}

			fields, err := splitFields(text)
			if err != nil {
				yield(zero, &ParseError{Line: lineNo, Text: text, Reason: "malformed fields", Err: err})
				return
			}
			rec, err := decode(lineNo, text, fields)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
			if readErr != nil {
				return
			}
		}
	}
}

// splitFields splits one line on commas. A field wrapped in double quotes
// may contain commas and loses its wrapping quotes; a quote anywhere else
// is kept as part of the field.
func splitFields(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	fields, err := cr.Read()
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// parsePositive parses a decimal field that must be strictly positive.
// Surrounding whitespace is tolerated on numbers, never on labels.
func parsePositive(line int, text, name, field string) (float64, error) {
	v, err := parseNumber(line, text, name, field)
	if err != nil {
		return 0, err
	}
	if !(v > 0) {
		return 0, &ParseError{Line: line, Text: text, Reason: fmt.Sprintf("%s must be positive, got %v", name, v)}
	}
	return v, nil
}

func parseNumber(line int, text, name, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, &ParseError{Line: line, Text: text, Reason: "invalid " + name, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Line: line, Text: text, Reason: name + " must be finite"}
	}
	return v, nil
}

// Collect drains a sequence into a slice, stopping at the first error. The
// records read before the error are returned alongside it.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
