package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/mosquesync/internal/model"
	"github.com/njoerd114/mosquesync/internal/state"
)

const (
	otelScope         = "mosquesync/sync"
	spanSettings      = "sync.settings"
	spanImages        = "sync.images"
	spanUpload        = "sync.image.upload"
	spanDelete        = "sync.image.delete"
	metricSettings    = "mosquesync.sync.settings.applied"
	metricAdded       = "mosquesync.sync.images.added"
	metricRemoved     = "mosquesync.sync.images.removed"
	metricReordered   = "mosquesync.sync.images.reordered"
	metricErrors      = "mosquesync.sync.errors"
	metricUploads     = "mosquesync.images.uploaded"
	metricDeletes     = "mosquesync.images.deleted"
	metricMutationErr = "mosquesync.images.mutation_errors"
)

// EngineOptions configures an [Engine].
type EngineOptions struct {
	PollInterval time.Duration
	Folder       string
	MaxImages    int
}

// Engine orchestrates the sync lifecycle: one polling [Scheduler] per
// resource type, plus the user-triggered image mutations and settings edits.
// Create one with [NewEngine] and start it with [Engine.Run].
type Engine struct {
	remote   RemoteStore
	local    LocalStore
	settings *SettingsSyncer
	images   *ImageSyncer
	mutator  *ImageMutator
	log      *slog.Logger

	settingsSched *Scheduler
	imagesSched   *Scheduler

	// OTel instruments; always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntSettings  metric.Int64Counter
	cntAdded     metric.Int64Counter
	cntRemoved   metric.Int64Counter
	cntReordered metric.Int64Counter
	cntErrors    metric.Int64Counter
	cntUploads   metric.Int64Counter
	cntDeletes   metric.Int64Counter
	cntMutErrors metric.Int64Counter
}

// NewEngine creates an Engine wired to the given stores.
func NewEngine(remote RemoteStore, blob BlobStore, local LocalStore, opts EngineOptions, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		remote:   remote,
		local:    local,
		settings: NewSettingsSyncer(remote, local, logger),
		images:   NewImageSyncer(remote, local, logger),
		mutator:  NewImageMutator(remote, blob, local, opts.Folder, opts.MaxImages, logger),
		log:      logger,

		tracer:       tracer,
		cntSettings:  mustCounter(metricSettings, "Number of settings records applied from remote"),
		cntAdded:     mustCounter(metricAdded, "Number of images added to the local mirror"),
		cntRemoved:   mustCounter(metricRemoved, "Number of images removed from the local mirror"),
		cntReordered: mustCounter(metricReordered, "Number of local images whose display order changed"),
		cntErrors:    mustCounter(metricErrors, "Number of errors encountered during sync"),
		cntUploads:   mustCounter(metricUploads, "Number of images uploaded"),
		cntDeletes:   mustCounter(metricDeletes, "Number of images deleted"),
		cntMutErrors: mustCounter(metricMutationErr, "Number of failed image uploads and deletes"),
	}
	e.settingsSched = NewScheduler(string(state.ResourceSettings), opts.PollInterval, e.syncSettings, logger)
	e.imagesSched = NewScheduler(string(state.ResourceImages), opts.PollInterval, e.syncImages, logger)
	return e
}

func alwaysAlive() bool { return true }

// syncSettings runs one settings pass, recording a trace span and metrics.
func (e *Engine) syncSettings(ctx context.Context, alive func() bool) error {
	ctx, span := e.tracer.Start(ctx, spanSettings)
	defer span.End()

	stats, err := e.settings.SyncOnce(ctx, alive)
	e.record(ctx, span, state.ResourceSettings, stats, err)
	return err
}

// syncImages runs one images pass, recording a trace span and metrics.
func (e *Engine) syncImages(ctx context.Context, alive func() bool) error {
	ctx, span := e.tracer.Start(ctx, spanImages)
	defer span.End()

	stats, err := e.images.SyncOnce(ctx, alive)
	e.record(ctx, span, state.ResourceImages, stats, err)
	return err
}

func (e *Engine) record(ctx context.Context, span trace.Span, res state.Resource, stats Stats, err error) {
	if stats.SettingsApplied > 0 {
		e.cntSettings.Add(ctx, int64(stats.SettingsApplied))
	}
	if stats.Added > 0 {
		e.cntAdded.Add(ctx, int64(stats.Added))
	}
	if stats.Removed > 0 {
		e.cntRemoved.Add(ctx, int64(stats.Removed))
	}
	if stats.Reordered > 0 {
		e.cntReordered.Add(ctx, int64(stats.Reordered))
	}
	errCount := stats.Errors
	if err != nil && errCount == 0 {
		errCount = 1
	}
	if errCount > 0 {
		e.cntErrors.Add(ctx, int64(errCount), metric.WithAttributes(attribute.String("resource", string(res))))
	}

	span.SetAttributes(
		attribute.Int("sync.settings_applied", stats.SettingsApplied),
		attribute.Int("sync.added", stats.Added),
		attribute.Int("sync.removed", stats.Removed),
		attribute.Int("sync.reordered", stats.Reordered),
		attribute.Int("sync.errors", errCount),
	)
	if err != nil {
		span.RecordError(err)
	}

	if ctx.Err() != nil {
		return
	}
	if recErr := e.local.RecordSync(ctx, res, err, time.Now().UTC()); recErr != nil {
		e.log.Warn("recording sync status", "resource", res, "error", recErr)
	}
}

// RunOnce performs one settings pass and one images pass and returns. Both
// passes run even if the first fails; the first error is returned.
func (e *Engine) RunOnce(ctx context.Context) error {
	var firstErr error
	if err := e.syncSettings(ctx, alwaysAlive); err != nil {
		firstErr = err
	}
	if err := e.syncImages(ctx, alwaysAlive); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run starts both polling loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.settingsSched.Start(ctx)
	e.imagesSched.Start(ctx)

	<-ctx.Done()
	e.log.Info("sync engine shutting down")
	e.settingsSched.Stop()
	e.imagesSched.Stop()
	e.settingsSched.Wait()
	e.imagesSched.Wait()
	return ctx.Err()
}

// Running reports whether the polling loops are active.
func (e *Engine) Running() bool {
	return e.settingsSched.Running() && e.imagesSched.Running()
}

// ForceSyncNow runs one iteration of both loops immediately.
func (e *Engine) ForceSyncNow() {
	e.settingsSched.ForceSyncNow()
	e.imagesSched.ForceSyncNow()
}

// SetInterval changes the poll interval of both loops.
func (e *Engine) SetInterval(d time.Duration) {
	e.settingsSched.SetInterval(d)
	e.imagesSched.SetInterval(d)
}

// SaveSettings validates s and writes it to the backend, then mirrors the
// accepted record locally. A backend failure is returned and the mirror is
// left as it was, so the caller can retry instead of losing the edit to the
// next poll.
func (e *Engine) SaveSettings(ctx context.Context, s *model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := e.remote.UpsertSettings(ctx, s); err != nil {
		return fmt.Errorf("saving remote settings: %w", err)
	}
	// Already on the backend; tagged as remote so it is not pushed again.
	if err := e.local.ReplaceSettings(ctx, s, model.OriginRemote); err != nil {
		return fmt.Errorf("saving local settings: %w", err)
	}
	return nil
}

// UploadImage uploads and commits a new image, then brings the local mirror
// up to date: through the images loop when it is running, inline otherwise.
func (e *Engine) UploadImage(ctx context.Context, req UploadRequest) (*model.Image, error) {
	ctx, span := e.tracer.Start(ctx, spanUpload)
	defer span.End()

	img, err := e.mutator.Upload(ctx, req)
	if err != nil {
		e.cntMutErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "upload")))
		span.RecordError(err)
		return nil, err
	}
	e.cntUploads.Add(ctx, 1)
	span.SetAttributes(attribute.String("image.id", img.ID))

	if e.imagesSched.Running() {
		e.imagesSched.ForceSyncNow()
	} else if err := e.syncImages(ctx, alwaysAlive); err != nil {
		e.log.Warn("refreshing local images after upload", "error", err)
	}
	return img, nil
}

// DeleteImage deletes an image and applies the returned order to the local
// mirror without waiting for the next poll.
func (e *Engine) DeleteImage(ctx context.Context, req DeleteRequest) ([]model.Image, error) {
	ctx, span := e.tracer.Start(ctx, spanDelete)
	defer span.End()

	remaining, err := e.mutator.Delete(ctx, req)
	if err != nil {
		e.cntMutErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "delete")))
		span.RecordError(err)
		return nil, err
	}
	e.cntDeletes.Add(ctx, 1)

	stats, err := e.images.ApplySnapshot(ctx, remaining)
	e.record(ctx, span, state.ResourceImages, stats, err)
	if err != nil {
		e.log.Warn("applying post-delete image order", "error", err)
	}
	return remaining, nil
}
