package calibration

import (
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/reefmodel/reefscale/internal/monitoring"
	"github.com/reefmodel/reefscale/internal/scaledef"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func init() {
	monitoring.Init(io.Discard, false).SetLevel(logrus.PanicLevel)
}

func openSession(t *testing.T, labels []string, bars ...session.Scalebar) (*session.Session, *session.Memory) {
	t.Helper()
	snap := session.Snapshot{ID: "test", Label: "Tag23", Scalebars: bars}
	for i, l := range labels {
		snap.Markers = append(snap.Markers, session.Marker{ID: i + 1, Label: l, Position: r3.Vec{X: float64(i)}})
	}
	s, mem, err := session.Open(snap)
	require.NoError(t, err)
	return s, mem
}

func parse(in string) iter.Seq2[scaledef.Constraint, error] {
	return scaledef.ParseConstraints(strings.NewReader(in), scaledef.Options{})
}

func TestReconcile_CreatesOnePerPair(t *testing.T) {
	s, mem := openSession(t, []string{"p1", "p2", "p3"})

	report, err := Reconcile(s, parse("p1,p2,0.25,0.001\np2,p3,0.5,0.001\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Constraints)
	assert.Len(t, report.Created, 2)
	assert.Empty(t, report.Updated)
	assert.Empty(t, report.Unresolved)

	bars := mem.Scalebars()
	require.Len(t, bars, 2)
	assert.Equal(t, "p1_p2", bars[0].Label)
	assert.Equal(t, 1, bars[0].MarkerA)
	assert.Equal(t, 2, bars[0].MarkerB)
	assert.Equal(t, 0.25, bars[0].Distance)
	assert.Equal(t, "p2_p3", bars[1].Label)
}

func TestReconcile_Idempotent(t *testing.T) {
	s, mem := openSession(t, []string{"p1", "p2", "p3"})
	in := "p1,p2,0.25,0.001\np3,p2,0.5,0.002\n"

	_, err := Reconcile(s, parse(in))
	require.NoError(t, err)
	first := mem.Scalebars()

	report, err := Reconcile(s, parse(in))
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Len(t, report.Updated, 2)
	assert.Equal(t, 2, report.Existing)

	assert.Equal(t, first, mem.Scalebars())
}

func TestReconcile_ReverseLabelUpdatesExisting(t *testing.T) {
	existing := session.Scalebar{ID: 5, Label: "B_A", MarkerA: 2, MarkerB: 1, Distance: 1, Accuracy: 0.1}
	s, mem := openSession(t, []string{"A", "B"}, existing)

	report, err := Reconcile(s, parse("A,B,0.75,0.003\n"))
	require.NoError(t, err)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, 5, report.Updated[0].ID)
	assert.Empty(t, report.Created)

	bars := mem.Scalebars()
	require.Len(t, bars, 1)
	assert.Equal(t, "B_A", bars[0].Label)
	assert.Equal(t, 0.75, bars[0].Distance)
	assert.Equal(t, 0.003, bars[0].Accuracy)
}

func TestReconcile_DuplicateDirectionLastWriteWins(t *testing.T) {
	s, mem := openSession(t, []string{"p1", "p2"})

	report, err := Reconcile(s, parse("p1,p2,9.90,0.002\np2,p1,9.95,0.002\n"))
	require.NoError(t, err)
	assert.Len(t, report.Created, 1)
	assert.Len(t, report.Updated, 1)

	bars := mem.Scalebars()
	require.Len(t, bars, 1)
	assert.Equal(t, 9.95, bars[0].Distance)
}

func TestReconcile_UnresolvedLabelsAreIsolated(t *testing.T) {
	s, mem := openSession(t, []string{"p1", "p2", "p3"})

	in := "p1,ghost,0.2,0.001\n" +
		"phantom,spectre,0.3,0.001\n" +
		"p2,p3,0.4,0.001\n"
	report, err := Reconcile(s, parse(in))
	require.NoError(t, err)

	require.Len(t, report.Unresolved, 3)
	assert.Equal(t, UnresolvedLabel{Label: "ghost", Line: 1, Pair: "p1_ghost"}, report.Unresolved[0])
	assert.Equal(t, "phantom", report.Unresolved[1].Label)
	assert.Equal(t, "spectre", report.Unresolved[2].Label)
	assert.Equal(t, 2, report.Unresolved[2].Line)
	assert.Equal(t, 2, report.Skipped())

	bars := mem.Scalebars()
	require.Len(t, bars, 1)
	assert.Equal(t, "p2_p3", bars[0].Label)
	assert.Contains(t, report.Unresolved[0].String(), `marker "ghost" was not found`)
}

func TestReconcile_NoMarkersIsPrecondition(t *testing.T) {
	s, mem := openSession(t, nil)

	report, err := Reconcile(s, parse("p1,p2,0.25,0.001\n"))
	require.Error(t, err)

	var pe *session.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, session.StageCalibration, pe.Stage)
	assert.Zero(t, report.Constraints)
	assert.Empty(t, mem.Scalebars())
}

func TestReconcile_ParseErrorStopsPass(t *testing.T) {
	s, mem := openSession(t, []string{"p1", "p2", "p3"})

	report, err := Reconcile(s, parse("p1,p2,0.25,0.001\np2,p3,wide,0.001\np1,p3,0.1,0.001\n"))
	require.Error(t, err)

	var pe *scaledef.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, 1, report.Constraints)
	assert.Len(t, mem.Scalebars(), 1)
}

func TestImportReferences(t *testing.T) {
	s, mem := openSession(t, []string{"target 1", "target 2"})

	in := "header\nheader\ntarget 1,0,0,0,0.001,0.001,0.001\ntarget 9,1,1,1\ntarget 2,0.5,0,0\n"
	points := scaledef.ParseReferences(strings.NewReader(in), scaledef.Options{SkipRows: 2})

	report, err := ImportReferences(s, points)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Points)
	assert.Equal(t, []string{"target 1", "target 2"}, report.Applied)
	require.Len(t, report.Unresolved, 1)
	assert.Equal(t, "target 9", report.Unresolved[0].Label)

	markers := mem.Markers()
	require.NotNil(t, markers[1].Reference)
	assert.Equal(t, r3.Vec{X: 0.5}, markers[1].Reference.Position)
	assert.True(t, markers[1].Reference.Enabled)
}

func TestImportReferences_NoMarkers(t *testing.T) {
	s, _ := openSession(t, nil)
	_, err := ImportReferences(s, scaledef.ParseReferences(strings.NewReader("t1,0,0,0\n"), scaledef.Options{}))

	var pe *session.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, session.StageReference, pe.Stage)
}
