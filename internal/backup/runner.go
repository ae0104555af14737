package backup

import (
	"fmt"
	"linksnap/internal/archive"
	"linksnap/internal/config"
	"linksnap/internal/engine"
	"linksnap/internal/layout"
	"linksnap/internal/logger"
	"linksnap/internal/model"
	"linksnap/internal/runlog"
	"linksnap/internal/shadow"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const stampLayout = "2006-01-02_15-04-05"

// RunSaver persists one finished run. Satisfied by repository.RunRepository;
// nil means no persistence, which is how tests and dry bootstraps run.
type RunSaver interface {
	Save(run *model.Run) error
}

type Options struct {
	Source string
	Backup string
	DryRun bool
}

// Runner sequences one complete backup invocation: lock, layout, shadow
// bootstrap, sync, both shadow refreshes, archive prune, then the run log
// and history row.
type Runner struct {
	cfg  *config.Config
	eng  engine.Engine
	sink runlog.Sink
	repo RunSaver
}

func NewRunner(cfg *config.Config, eng engine.Engine, sink runlog.Sink, repo RunSaver) *Runner {
	return &Runner{
		cfg:  cfg,
		eng:  eng,
		sink: sink,
		repo: repo,
	}
}

func (r *Runner) Run(opts Options) (*model.Run, error) {
	paths, err := layout.New(opts.Source, opts.Backup,
		r.cfg.ArchiveName, r.cfg.LogsName, r.cfg.ShadowName, r.cfg.RunPrefix)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(paths.Source); err != nil {
		return nil, fmt.Errorf("source root not readable: %w", err)
	}

	stamp := time.Now().Format(stampLayout)
	bucket := paths.Bucket(stamp)
	rec := runlog.New(stamp, opts.DryRun)
	run := &model.Run{
		Source:    paths.Source,
		Backup:    paths.Backup,
		Bucket:    filepath.Base(bucket),
		Status:    model.RunStatusSuccess,
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
	}

	if !opts.DryRun {
		lock, lerr := AcquireLock(paths.Backup)
		if lerr != nil {
			return nil, lerr
		}
		defer lock.Release()

		if merr := paths.Materialize(); merr != nil {
			return nil, merr
		}
	}

	updater := shadow.NewUpdater(r.eng, r.cfg.ShadowName, r.shadowExcludes())

	r.bootstrap(rec, run, updater, paths, opts.DryRun)
	r.sync(rec, run, paths, bucket, opts.DryRun)

	if !opts.DryRun {
		r.refreshShadow(rec, run, updater, "shadow source", paths.Source)
		r.refreshShadow(rec, run, updater, "shadow mirror", paths.Mirror)
		r.prune(rec, run, paths.Archive)
	}

	run.FinishedAt = time.Now()
	r.finish(rec, run, paths)

	return run, nil
}

// bootstrap gives the source its first shadow so the very first sync already
// has move detection. Skipped in dry runs because it would mutate the source.
func (r *Runner) bootstrap(rec *runlog.Record, run *model.Run, updater *shadow.Updater, paths layout.Paths, dryRun bool) {
	if updater.Exists(paths.Source) {
		return
	}

	phase := rec.Begin("bootstrap shadow")
	if dryRun {
		phase.Logf("source has no shadow yet; a real run would create %s", paths.SourceShadow())
		phase.Done(nil)
		return
	}

	report, err := updater.Update(paths.Source)
	if err != nil {
		run.Status = model.Worse(run.Status, model.RunStatusFailed)
	} else {
		phase.Logf("linked %d entries", report.Stats.Linked+report.Stats.Transferred)
	}
	phase.Done(err)
}

func (r *Runner) sync(rec *runlog.Record, run *model.Run, paths layout.Paths, bucket string, dryRun bool) {
	phase := rec.Begin("sync")

	report, err := r.eng.Sync(engine.Request{
		Source:        paths.Source,
		Dest:          paths.Mirror,
		BackupDir:     bucket,
		Exclude:       append([]string{".*"}, r.cfg.IgnoreList...),
		Include:       []string{r.cfg.ShadowName},
		DryRun:        dryRun,
		NumericIDs:    true,
		OneFileSystem: true,
	})

	if report != nil {
		for _, c := range report.Itemized {
			phase.Logf("%-6s %s", c.Action, c.Path)
		}
		phase.Logf("scanned %d, transferred %d (%d bytes), linked %d, deleted %d, failed %d",
			report.Stats.Scanned, report.Stats.Transferred, report.Stats.Bytes,
			report.Stats.Linked, report.Stats.Deleted, report.Stats.Failures)

		run.Transferred = report.Stats.Transferred
		run.Linked = report.Stats.Linked
		run.Failed = report.Stats.Failures
		run.Bytes = report.Stats.Bytes

		if report.Stats.Failures > 0 {
			run.Status = model.Worse(run.Status, model.RunStatusPartial)
		}
	}

	if err != nil {
		// Shadow refresh and pruning still run; a half-applied sync is
		// exactly the state they are built to converge from.
		run.Status = model.Worse(run.Status, model.RunStatusFailed)
		logger.Log.Error("sync failed", zap.Error(err))
	}
	phase.Done(err)
}

func (r *Runner) refreshShadow(rec *runlog.Record, run *model.Run, updater *shadow.Updater, name, root string) {
	phase := rec.Begin(name)

	report, err := updater.Update(root)
	if err != nil {
		run.Status = model.Worse(run.Status, model.RunStatusFailed)
		logger.Log.Error("shadow update failed",
			zap.String("root", root),
			zap.Error(err))
	} else {
		phase.Logf("linked %d, removed %d",
			report.Stats.Linked+report.Stats.Transferred, report.Stats.Deleted)
		if report.Stats.Failures > 0 {
			run.Status = model.Worse(run.Status, model.RunStatusPartial)
		}
	}
	phase.Done(err)
}

func (r *Runner) prune(rec *runlog.Record, run *model.Run, archiveRoot string) {
	phase := rec.Begin("prune archive")

	res := archive.NewPruner(r.cfg.ShadowName).Prune(archiveRoot)
	phase.Logf("removed %d shadow trees, %d still-referenced files, %d empty dirs",
		res.Shadows, res.Linked, res.EmptyDirs)

	if res.Failures > 0 {
		run.Status = model.Worse(run.Status, model.RunStatusPartial)
		phase.Logf("%d entries could not be removed", res.Failures)
	}
	phase.Done(nil)
}

func (r *Runner) finish(rec *runlog.Record, run *model.Run, paths layout.Paths) {
	if sink := r.logSink(run, paths); sink != nil {
		path, err := sink.Write(rec)
		if err != nil {
			logger.Log.Warn("failed to write run log", zap.Error(err))
		} else {
			run.LogPath = path
		}
	}

	if r.repo != nil {
		if err := r.repo.Save(run); err != nil {
			logger.Log.Warn("failed to save run history", zap.Error(err))
		}
	}

	logger.Log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("transferred", run.Transferred),
		zap.Int("linked", run.Linked),
		zap.Int("failed", run.Failed))
}

func (r *Runner) logSink(run *model.Run, paths layout.Paths) runlog.Sink {
	if r.sink != nil {
		return r.sink
	}

	// A dry run against a fresh backup root has nowhere to put a log file
	// and must not create one.
	if run.DryRun {
		if _, err := os.Stat(paths.Logs); err != nil {
			return nil
		}
	}

	return runlog.FileSink{Dir: paths.Logs}
}

func (r *Runner) shadowExcludes() []string {
	patterns := []string{".*", r.cfg.ArchiveName, r.cfg.LogsName}
	return append(patterns, r.cfg.IgnoreList...)
}
