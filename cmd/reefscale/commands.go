package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/reefmodel/reefscale/internal/config"
	"github.com/reefmodel/reefscale/internal/frame"
	"github.com/reefmodel/reefscale/internal/fsutil"
	"github.com/reefmodel/reefscale/internal/monitoring"
	"github.com/reefmodel/reefscale/internal/pipeline"
	"github.com/reefmodel/reefscale/internal/security"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/reefmodel/reefscale/internal/store/sqlite"
)

var files fsutil.FileSystem = fsutil.OSFileSystem{}

func handleImport(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("import", stderr)
	label := fs.String("label", "", "Label to store the snapshot under (single file only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.initLogging(stderr)
	if fs.NArg() == 0 {
		return errors.New("import: at least one snapshot file is required")
	}
	if *label != "" && fs.NArg() > 1 {
		return errors.New("import: -label can only be used with a single file")
	}

	db, err := sqlite.Open(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewSessionStore(db.DB)
	ctx := context.Background()

	for _, path := range fs.Args() {
		snap, err := readSnapshot(path)
		if err != nil {
			return err
		}
		switch {
		case *label != "":
			snap.Label = *label
		case snap.Label == "":
			snap.Label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		// Reject snapshots no stage could run against.
		if _, _, err := session.Open(snap); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		rec, err := store.Save(ctx, snap)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "imported %s (id %s, %d markers, %d scalebars)\n",
			rec.Label, rec.SessionID, rec.MarkerCount, rec.ScalebarCount)
	}
	return nil
}

func readSnapshot(path string) (session.Snapshot, error) {
	var snap session.Snapshot
	data, err := files.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

func handleCalibrate(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("calibrate", stderr)
	fs.BoolVar(&common.all, "all", false, "Calibrate every stored session")
	var sf stageFlags
	sf.registerCalibration(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(common, sf.overrides(fs), fs.Args(), stdout, stderr,
		pipeline.StageReference, pipeline.StageCalibration)
}

func handleRegion(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("region", stderr)
	fs.BoolVar(&common.all, "all", false, "Rewrite the region of every stored session")
	var sf stageFlags
	sf.registerRegion(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(common, sf.overrides(fs), fs.Args(), stdout, stderr,
		pipeline.StageAlign, pipeline.StageRegion)
}

func handleRun(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("run", stderr)
	fs.BoolVar(&common.all, "all", false, "Run every stored session")
	var sf stageFlags
	sf.registerCalibration(fs)
	sf.registerRegion(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return runStages(common, sf.overrides(fs), fs.Args(), stdout, stderr, pipeline.AllStages...)
}

func runStages(common *commonFlags, overrides *config.PipelineConfig, names []string, stdout, stderr io.Writer, stages ...pipeline.Stage) error {
	common.initLogging(stderr)
	cfg, err := loadConfig(common, overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := sqlite.Open(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqlite.NewSessionStore(db.DB)
	runs := sqlite.NewRunStore(db.DB)

	recs, err := selectSessions(ctx, store, names, common.all)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(cfg, stages...)
	runner.Recorder = pipeline.StoreRecorder{Runs: runs}
	runner.BatchID = sqlite.NewBatchID()

	failed := 0
	for _, rec := range recs {
		s, mem, err := session.Open(rec.Snapshot)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: load failed: %v\n", rec.Label, err)
			recordLoadFailure(ctx, runs, runner.BatchID, rec, err)
			continue
		}

		res := runner.Run(ctx, s)
		if res.Changed() {
			snap := mem.Snapshot()
			snap.Label = rec.Label
			if _, err := store.Save(ctx, snap); err != nil {
				return fmt.Errorf("save session %s: %w", rec.Label, err)
			}
		}
		printResult(stdout, res)
		if res.Failed() {
			failed++
		}
	}

	if failed > 0 {
		fmt.Fprintf(stdout, "%d of %d sessions failed\n", failed, len(recs))
		return errSessionsFailed
	}
	return nil
}

type runInserter interface {
	Insert(ctx context.Context, run *sqlite.StageRun) error
}

// recordLoadFailure stores a failed load stage for rec. A store error is
// logged, not returned; the load error has already been reported.
func recordLoadFailure(ctx context.Context, runs runInserter, batchID string, rec *sqlite.SessionRecord, loadErr error) {
	now := time.Now().UnixNano()
	err := runs.Insert(ctx, &sqlite.StageRun{
		BatchID: batchID, SessionID: rec.SessionID, Stage: session.StageLoad,
		Status: sqlite.StatusFailed, Error: loadErr.Error(), StartedAtNs: now, FinishedAtNs: now,
	})
	if err != nil {
		monitoring.For("cli").WithField("session", rec.Label).Warnf("record load failure: %v", err)
	}
}

func selectSessions(ctx context.Context, store *sqlite.SessionStore, names []string, all bool) ([]*sqlite.SessionRecord, error) {
	if all {
		if len(names) > 0 {
			return nil, errors.New("-all cannot be combined with session names")
		}
		recs, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			return nil, errors.New("no sessions stored; run import first")
		}
		return recs, nil
	}
	if len(names) == 0 {
		return nil, errors.New("no sessions named; pass labels or -all")
	}
	recs := make([]*sqlite.SessionRecord, 0, len(names))
	for _, name := range names {
		rec, err := store.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func printResult(w io.Writer, res pipeline.SessionResult) {
	for _, st := range res.Stages {
		switch st.Status {
		case pipeline.StatusFailed:
			fmt.Fprintf(w, "%s: %s failed: %v\n", res.Label, st.Stage, st.Err)
		case pipeline.StatusSkipped:
			fmt.Fprintf(w, "%s: %s skipped\n", res.Label, st.Stage)
		default:
			fmt.Fprintf(w, "%s: %s ok (created %d, updated %d, unresolved %d)\n",
				res.Label, st.Stage, st.Created, st.Updated, len(st.Unresolved))
		}
		for _, u := range st.Unresolved {
			fmt.Fprintf(w, "  warning: %s\n", u)
		}
	}
	if res.Err != nil && len(res.Stages) == 0 {
		fmt.Fprintf(w, "%s: %v\n", res.Label, res.Err)
	}
}

func handleShow(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("show", stderr)
	limit := fs.Int("runs", 10, "Number of recent stage runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.initLogging(stderr)
	if fs.NArg() == 0 {
		return errors.New("show: a session label or ID is required")
	}

	db, err := sqlite.Open(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()
	store := sqlite.NewSessionStore(db.DB)
	runs := sqlite.NewRunStore(db.DB)

	for _, name := range fs.Args() {
		rec, err := store.Resolve(ctx, name)
		if err != nil {
			return err
		}
		showSession(stdout, rec)

		history, err := runs.ListBySession(ctx, rec.SessionID, *limit)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			fmt.Fprintln(stdout, "  runs:")
		}
		for _, r := range history {
			fmt.Fprintf(stdout, "    %s %-12s %-8s created=%d updated=%d unresolved=%d %s\n",
				time.Unix(0, r.StartedAtNs).UTC().Format(time.RFC3339), r.Stage, r.Status,
				r.CreatedCount, r.UpdatedCount, r.UnresolvedCount, r.Error)
		}
	}
	return nil
}

func showSession(w io.Writer, rec *sqlite.SessionRecord) {
	snap := rec.Snapshot
	crsName := snap.CRS
	if crsName == "" {
		crsName = "(none)"
	}
	fmt.Fprintf(w, "%s (id %s)\n", rec.Label, rec.SessionID)
	fmt.Fprintf(w, "  crs: %s\n", crsName)
	fmt.Fprintf(w, "  markers: %d\n", len(snap.Markers))
	fmt.Fprintf(w, "  scalebars: %d\n", len(snap.Scalebars))
	for _, sb := range snap.Scalebars {
		fmt.Fprintf(w, "    %s distance=%g accuracy=%g\n", sb.Label, sb.Distance, sb.Accuracy)
	}
	if s, _, err := session.Open(snap); err == nil {
		if f, err := frame.ForSession(s); err == nil {
			fmt.Fprintf(w, "  scale: %.6g m per unit\n", f.Scale)
		}
	}
	r := snap.Region
	fmt.Fprintf(w, "  region: center=(%.6g, %.6g, %.6g) size=(%.6g, %.6g, %.6g)\n",
		r.Center.X, r.Center.Y, r.Center.Z, r.Size.X, r.Size.Y, r.Size.Z)
}

func handleExport(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("export", stderr)
	out := fs.String("o", "", "Output file (default stdout)")
	dir := fs.String("dir", "", "Write one <label>.json per session into this directory")
	fs.BoolVar(&common.all, "all", false, "Export every stored session (requires -dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.initLogging(stderr)
	if *dir == "" && (common.all || fs.NArg() != 1) {
		return errors.New("export: exactly one session label or ID is required without -dir")
	}
	if *dir != "" && *out != "" {
		return errors.New("export: -o and -dir are mutually exclusive")
	}

	db, err := sqlite.Open(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()
	store := sqlite.NewSessionStore(db.DB)

	if *dir == "" {
		rec, err := store.Resolve(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		return exportSnapshot(stdout, rec, *out)
	}

	recs, err := selectSessions(ctx, store, fs.Args(), common.all)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		path, err := security.ExportPath(*dir, rec.Label, ".json")
		if err != nil {
			return fmt.Errorf("export %s: %w", rec.Label, err)
		}
		if err := exportSnapshot(stdout, rec, path); err != nil {
			return err
		}
	}
	return nil
}

// exportSnapshot writes rec as indented JSON to path, or to stdout when
// path is empty.
func exportSnapshot(stdout io.Writer, rec *sqlite.SessionRecord, path string) error {
	data, err := json.MarshalIndent(rec.Snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := files.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	fmt.Fprintf(stdout, "exported %s to %s\n", rec.Label, path)
	return nil
}

func handleDelete(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("delete", stderr)
	fs.BoolVar(&common.all, "all", false, "Delete every stored session")
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.initLogging(stderr)

	db, err := sqlite.Open(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()
	store := sqlite.NewSessionStore(db.DB)

	recs, err := selectSessions(ctx, store, fs.Args(), common.all)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := store.Delete(ctx, rec.SessionID); err != nil {
			return fmt.Errorf("delete %s: %w", rec.Label, err)
		}
		fmt.Fprintf(stdout, "deleted %s (id %s)\n", rec.Label, rec.SessionID)
	}
	return nil
}

func handleMigrate(args []string, stdout, stderr io.Writer) error {
	fs, common := newFlagSet("migrate", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	common.initLogging(stderr)
	if fs.NArg() < 1 {
		return errors.New("usage: reefscale migrate <up|down|status|force N>")
	}

	db, err := sqlite.OpenNoMigrate(common.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "All migrations applied")
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Rolled back one migration")
	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "version %d", version)
		if dirty {
			fmt.Fprint(stdout, " (dirty)")
		}
		fmt.Fprintln(stdout)
	case "force":
		if fs.NArg() < 2 {
			return errors.New("usage: reefscale migrate force <version>")
		}
		v, err := strconv.Atoi(fs.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", fs.Arg(1), err)
		}
		if err := db.MigrateForce(v); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Forced version %d\n", v)
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return nil
}
