package scaledef

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/reefmodel/reefscale/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParseConstraints_WellFormed(t *testing.T) {
	in := "target 1,target 2,0.25,0.001\r\n" +
		"target 2,target 3, 0.5 ,0.002\n" +
		"p1,p2,9.90,0.002"

	got, err := Collect(ParseConstraints(strings.NewReader(in), Options{}))
	require.NoError(t, err)

	want := []Constraint{
		{LabelA: "target 1", LabelB: "target 2", Distance: 0.25, Accuracy: 0.001, Line: 1},
		{LabelA: "target 2", LabelB: "target 3", Distance: 0.5, Accuracy: 0.002, Line: 2},
		{LabelA: "p1", LabelB: "p2", Distance: 9.90, Accuracy: 0.002, Line: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("constraints mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConstraints_LabelsNotNormalised(t *testing.T) {
	got, err := Collect(ParseConstraints(strings.NewReader(" Target 1,target 2 ,1,0.1\n"), Options{}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, " Target 1", got[0].LabelA)
	assert.Equal(t, "target 2 ", got[0].LabelB)
}

func TestParseConstraints_QuotedLabel(t *testing.T) {
	got, err := Collect(ParseConstraints(strings.NewReader(`"rack, left",p2,1.5,0.01`+"\n"), Options{}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "rack, left", got[0].LabelA)
}

func TestParseConstraints_BareQuoteKept(t *testing.T) {
	got, err := Collect(ParseConstraints(strings.NewReader(`rack 2"a,p"2,1.5,0.01`+"\n"), Options{}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, `rack 2"a`, got[0].LabelA)
	assert.Equal(t, `p"2`, got[0].LabelB)
}

func TestParseConstraints_BlankLineTerminates(t *testing.T) {
	in := "a,b,1,0.1\n\nthis line is never read\n"
	got, err := Collect(ParseConstraints(strings.NewReader(in), Options{}))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseConstraints_EmptyInput(t *testing.T) {
	got, err := Collect(ParseConstraints(strings.NewReader(""), Options{}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseConstraints_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		line   int
		reason string
	}{
		{"too few fields", "a,b,1,0.1\na,b,1\n", 2, "expected 4 fields"},
		{"too many fields", "a,b,1,0.1,extra\n", 1, "expected 4 fields"},
		{"non numeric distance", "a,b,ten,0.1\n", 1, "invalid distance"},
		{"non numeric accuracy", "a,b,1,tight\n", 1, "invalid accuracy"},
		{"zero distance", "a,b,0,0.1\n", 1, "distance must be positive"},
		{"negative accuracy", "a,b,1,-0.1\n", 1, "accuracy must be positive"},
		{"nan distance", "a,b,NaN,0.1\n", 1, "distance must be finite"},
		{"empty label", ",b,1,0.1\n", 1, "empty marker label"},
		{"same label twice", "a,a,1,0.1\n", 1, "two different markers"},
		{"whitespace only line", "a,b,1,0.1\n   \n", 2, "expected 4 fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(ParseConstraints(strings.NewReader(tt.input), Options{}))
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "expected ParseError, got %T", err)
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, pe.Error(), tt.reason)
		})
	}
}

func TestParseConstraints_RecordsBeforeErrorAreKept(t *testing.T) {
	got, err := Collect(ParseConstraints(strings.NewReader("a,b,1,0.1\nbad\nc,d,1,0.1\n"), Options{}))
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].LabelA)
}

func TestParseConstraints_SkipRowsAndUnit(t *testing.T) {
	in := "# rack scale bars\nMarker_1_label,Marker_2_label,distance,accuracy\np1,p2,250,1\n"
	got, err := Collect(ParseConstraints(strings.NewReader(in), Options{SkipRows: 2, Unit: "mm"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.25, got[0].Distance, 1e-12)
	assert.InDelta(t, 0.001, got[0].Accuracy, 1e-12)
	assert.Equal(t, 3, got[0].Line)

	_, err = Collect(ParseConstraints(strings.NewReader(in), Options{Unit: "furlong"}))
	assert.Error(t, err)
}

func TestParseConstraints_EarlyBreak(t *testing.T) {
	seq := ParseConstraints(strings.NewReader("a,b,1,0.1\nc,d,1,0.1\ne,f,1,0.1\n"), Options{})
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestSource_Restartable(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem().AddFile("/scales/frag.txt", "p1,p2,9.90,0.002\np2,p1,9.95,0.002\n")
	src := Source{FS: mfs, Path: "/scales/frag.txt"}

	first, err := Collect(src.Constraints())
	require.NoError(t, err)
	second, err := Collect(src.Constraints())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.Equal(t, 2, mfs.Opens("/scales/frag.txt"))
}

func TestSource_MissingFile(t *testing.T) {
	src := Source{FS: fsutil.NewMemoryFileSystem(), Path: "missing.txt"}
	_, err := Collect(src.Constraints())
	assert.Error(t, err)
	_, err = Collect(src.References())
	assert.Error(t, err)
}

func TestParseReferences(t *testing.T) {
	in := "Rack coordinates 011723\n" +
		"Label,X,Y,Z,X_acc,Y_acc,Z_acc\n" +
		"target 1,0,0,0,0.001,0.001,0.002\n" +
		"target 2,0.5,0,0\n"

	got, err := Collect(ParseReferences(strings.NewReader(in), Options{SkipRows: DefaultReferenceSkipRows}))
	require.NoError(t, err)

	want := []ReferencePoint{
		{Label: "target 1", Accuracy: r3.Vec{X: 0.001, Y: 0.001, Z: 0.002}, Line: 3},
		{Label: "target 2", Position: r3.Vec{X: 0.5}, Line: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReferences_Malformed(t *testing.T) {
	_, err := Collect(ParseReferences(strings.NewReader("t1,0,0\n"), Options{}))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "expected 4 or 7 fields")

	_, err = Collect(ParseReferences(strings.NewReader("t1,0,0,0,-1,0,0\n"), Options{}))
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "must not be negative")

	_, err = Collect(ParseReferences(strings.NewReader("t1,0,north,0\n"), Options{}))
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Reason, "invalid Y")
}
