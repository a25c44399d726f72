package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openrelik/chopchopgo-worker/internal/log"
	"github.com/openrelik/chopchopgo-worker/internal/model"
	"github.com/openrelik/chopchopgo-worker/internal/store"
	"github.com/openrelik/chopchopgo-worker/internal/worker"
)

const requestSuffix = ".task.json"

type Supervisor struct {
	analyzer  worker.Analyzer
	uploaders []model.Uploader
	db        *sql.DB
	spool     string
	oneshot   bool
	scheduler gocron.Scheduler
	trigger   chan struct{}
}

func NewSupervisor(ctx context.Context, cfg model.Config) (*Supervisor, error) {
	if cfg.Worker.SpoolDir == "" {
		return nil, errors.New("worker.spool_dir must be set for the supervisor")
	}

	analyzer, err := worker.NewAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	uploaders, err := Uploaders(cfg.Results)
	if err != nil {
		return nil, fmt.Errorf("initializing uploaders: %w", err)
	}

	db, err := store.InitDB(ctx, cfg.Worker.DB)
	if err != nil {
		return nil, fmt.Errorf("initializing run ledger: %w", err)
	}

	s := &Supervisor{
		analyzer:  analyzer,
		uploaders: uploaders,
		db:        db,
		spool:     cfg.Worker.SpoolDir,
		oneshot:   cfg.Worker.Mode == model.ModeManual,
		trigger:   make(chan struct{}, 1),
	}

	if cfg.Worker.Mode == model.ModeTimer {
		if cfg.Worker.Schedule == nil {
			return nil, errors.New("worker.schedule is required in timer mode")
		}
		interval, err := cfg.Worker.Schedule.Interval()
		if err != nil {
			return nil, fmt.Errorf("parsing worker.schedule: %w", err)
		}
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.Trigger),
		)
		if err != nil {
			return nil, fmt.Errorf("initializing gocron job: %w", err)
		}
		s.scheduler = scheduler
	}

	return s, nil
}

// WithUploaders replaces the publication chain of an initialized
// Supervisor. This method exists for unit testing only.
func (s *Supervisor) WithUploaders(ctx context.Context, uploaders ...model.Uploader) *Supervisor {
	s.closeUploaders(ctx)
	s.uploaders = uploaders
	return s
}

// Trigger requests a spool sweep. This is a hint, it never blocks.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Do runs the supervisor. Manual mode performs one sweep and returns its
// first error. Timer mode sweeps on every trigger until ctx is
// cancelled, logging errors instead of returning them.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting the supervisor", "spool", s.spool)

	defer s.closeUploaders(ctx)
	defer func() {
		if err := s.db.Close(); err != nil {
			slog.ErrorContext(ctx, "closing run ledger failed", "error", err)
		}
	}()

	if s.oneshot {
		return s.sweep(ctx)
	}

	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			err := s.scheduler.Shutdown()
			if err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			if err := s.sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "spool sweep failed", "error", err)
			}
		}
	}
}

// sweep processes every pending request file in name order, one at a
// time.
func (s *Supervisor) sweep(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(s.spool, "*"+requestSuffix))
	if err != nil {
		return fmt.Errorf("listing spool: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.process(ctx, path); err != nil {
			if s.oneshot {
				return err
			}
			slog.ErrorContext(ctx, "task failed", "request", path, "error", err)
		}
	}
	return nil
}

func (s *Supervisor) process(ctx context.Context, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	var req model.TaskRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return fmt.Errorf("decoding request %s: %w", filepath.Base(path), err)
	}

	runID := uuid.NewString()
	ctx = log.ContextAttrs(ctx,
		slog.String("run_id", runID),
		slog.String("request", filepath.Base(path)),
	)

	if err := store.Start(ctx, s.db, runID, req.WorkflowID); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}

	// request file goes away no matter the outcome, the ledger keeps
	// the history
	defer func() {
		if err := os.Remove(path); err != nil {
			slog.WarnContext(ctx, "cannot remove processed request", "error", err)
		}
	}()

	result, err := s.analyzer.Do(ctx, req)
	if err != nil {
		if ferr := store.FinishErr(ctx, s.db, runID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "recording run failure failed", "error", ferr)
		}
		return err
	}

	encoded, err := result.Encode()
	if err != nil {
		if ferr := store.FinishErr(ctx, s.db, runID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "recording run failure failed", "error", ferr)
		}
		return err
	}

	if err := store.FinishOK(ctx, s.db, runID, encoded); err != nil {
		slog.ErrorContext(ctx, "recording run success failed", "error", err)
	}

	return s.upload(ctx, []byte(encoded))
}

func (s *Supervisor) upload(ctx context.Context, raw []byte) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range s.uploaders {
		g.Go(func() error {
			return u.Upload(ctx, raw)
		})
	}
	return g.Wait()
}

func (s *Supervisor) closeUploaders(ctx context.Context) {
	for _, uploader := range s.uploaders {
		if closer, ok := uploader.(model.UploadCloser); ok {
			err := closer.Close()
			if err != nil {
				slog.ErrorContext(ctx, "closing uploader have failed", "error", err)
			}
		}
	}
}
