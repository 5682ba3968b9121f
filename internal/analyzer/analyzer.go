// Package analyzer runs one video through Video Indexer: stage the file,
// register it, wait for processing to finish and save the index.
//
// Nothing is retried. The job ledger, completion events and metrics are side
// channels; their failures are logged and never change the outcome.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mjrousos/video-analysis-exploration/internal/events"
	"github.com/mjrousos/video-analysis-exploration/internal/indexer"
	"github.com/mjrousos/video-analysis-exploration/internal/metrics"
	"github.com/mjrousos/video-analysis-exploration/internal/output"
	"github.com/mjrousos/video-analysis-exploration/internal/source"
	"github.com/mjrousos/video-analysis-exploration/internal/store"
)

// bookkeepingTimeout bounds ledger and event calls made after the run's
// context may already be cancelled.
const bookkeepingTimeout = 10 * time.Second

// VideoIndexer is the part of *indexer.Client the analyzer drives.
type VideoIndexer interface {
	StartUpload(ctx context.Context, req indexer.UploadRequest) (*indexer.Upload, error)
	PollUntilTerminal(ctx context.Context, upload *indexer.Upload, observers ...indexer.PollObserver) (indexer.UploadState, error)
	FetchIndex(ctx context.Context, videoID string) (io.ReadCloser, error)
}

// Notifier publishes run completion.
type Notifier interface {
	AnalysisCompleted(ctx context.Context, event events.AnalysisCompleted) error
}

// Options configures an Analyzer.
type Options struct {
	// OutputPath receives the index; empty selects output.DefaultPath.
	OutputPath string

	// SourceBackend, Location and AccountID are recorded in the ledger.
	SourceBackend string
	Location      string
	AccountID     string

	// Metrics receives one EMF line per run; nil disables metrics.
	Metrics io.Writer
}

// Request is one analysis run.
type Request struct {
	InputPath   string
	Name        string
	Description string
}

// Analyzer wires the run's collaborators.
type Analyzer struct {
	indexer  VideoIndexer
	resolver source.Resolver
	jobs     store.JobStore
	notifier Notifier
	opts     Options

	save func(path string, r io.Reader) (int64, error)
	now  func() time.Time
}

// New creates an Analyzer.
func New(idx VideoIndexer, resolver source.Resolver, opts Options) *Analyzer {
	if opts.OutputPath == "" {
		opts.OutputPath = output.DefaultPath
	}
	return &Analyzer{
		indexer:  idx,
		resolver: resolver,
		opts:     opts,
		save:     output.Save,
		now:      time.Now,
	}
}

// WithJobStore records every run in jobs.
func (a *Analyzer) WithJobStore(jobs store.JobStore) *Analyzer {
	a.jobs = jobs
	return a
}

// WithNotifier publishes a completion event for every run.
func (a *Analyzer) WithNotifier(n Notifier) *Analyzer {
	a.notifier = n
	return a
}

// Analyze runs req to completion. An empty req.Name defaults to the input
// file's base name without its extension.
//
// A terminal Failed state and cancellation are outcomes, not errors: both
// return a Result and a nil error. Cancellation leaves the server-side job
// running. Errors are returned for staging, upload, token, retrieval and
// save failures.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := a.now()
	if req.Name == "" {
		req.Name = indexer.DefaultName(req.InputPath)
	}

	videoURL, err := a.resolver.Resolve(ctx, req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("resolve video source: %w", err)
	}

	upload, err := a.indexer.StartUpload(ctx, indexer.UploadRequest{
		FilePath:    req.InputPath,
		VideoURL:    videoURL,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		VideoID:     upload.VideoID,
		Name:        req.Name,
		State:       upload.State,
		UploadStart: a.now().Sub(start),
	}
	a.recordJob(ctx, req, upload)

	lastState := upload.State
	state, err := a.indexer.PollUntilTerminal(ctx, upload, func(u indexer.Upload) {
		if u.State != lastState {
			lastState = u.State
			a.updateJob(ctx, u.VideoID, u.State.String(), "")
		}
	})
	result.State = state
	result.Polls = upload.Polls

	switch {
	case isCancellation(err):
		log.Warn().
			Str("videoId", upload.VideoID).
			Stringer("state", state).
			Msg("Analysis cancelled; the video continues processing in Video Indexer")
		result.Outcome = OutcomeCancelled
		a.finish(ctx, result, start)
		return result, nil

	case err != nil:
		result.Outcome = OutcomeFailed
		a.finish(ctx, result, start)
		return nil, err

	case state != indexer.StateProcessed:
		log.Error().
			Str("videoId", upload.VideoID).
			Stringer("state", state).
			Msg("Video processing failed")
		result.Outcome = OutcomeFailed
		a.finish(ctx, result, start)
		return result, nil
	}

	n, err := a.fetchAndSave(ctx, upload.VideoID)
	if err != nil {
		result.Outcome = OutcomeFailed
		a.finish(ctx, result, start)
		return nil, err
	}

	result.Outcome = OutcomeCompleted
	result.OutputPath = a.opts.OutputPath
	result.Bytes = n
	a.finish(ctx, result, start)

	log.Info().
		Str("videoId", upload.VideoID).
		Str("path", result.OutputPath).
		Int64("bytes", n).
		Msg("Video index saved")
	return result, nil
}

// fetchAndSave streams the index to the output path. The file is only
// opened once the service answered with a success status.
func (a *Analyzer) fetchAndSave(ctx context.Context, videoID string) (int64, error) {
	body, err := a.indexer.FetchIndex(ctx, videoID)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := a.save(a.opts.OutputPath, body)
	if err != nil {
		return n, fmt.Errorf("save index: %w", err)
	}
	return n, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// --- Side channels ---

// bookkeepingContext survives cancellation of the run.
func bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

func (a *Analyzer) recordJob(ctx context.Context, req Request, upload *indexer.Upload) {
	if a.jobs == nil {
		return
	}
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	err := a.jobs.PutJob(bctx, &store.JobRecord{
		VideoID:   upload.VideoID,
		Name:      req.Name,
		InputPath: req.InputPath,
		Source:    a.opts.SourceBackend,
		Location:  a.opts.Location,
		AccountID: a.opts.AccountID,
		State:     upload.State.String(),
	})
	if err != nil {
		log.Warn().Err(err).Str("videoId", upload.VideoID).Msg("Failed to record job")
	}
}

func (a *Analyzer) updateJob(ctx context.Context, videoID, state, outputPath string) {
	if a.jobs == nil {
		return
	}
	bctx, cancel := bookkeepingContext(ctx)
	defer cancel()

	if err := a.jobs.UpdateJobState(bctx, videoID, state, outputPath); err != nil {
		log.Warn().Err(err).Str("videoId", videoID).Msg("Failed to update job state")
	}
}

// finish emits metrics, the final ledger update and the completion event.
func (a *Analyzer) finish(ctx context.Context, result *Result, start time.Time) {
	result.Elapsed = a.now().Sub(start)

	if a.opts.Metrics != nil {
		rec := metrics.NewWithWriter(metrics.Namespace, a.opts.Metrics).
			Dimension("Outcome", result.Outcome.String()).
			Duration("UploadStartMs", result.UploadStart).
			Duration("ProcessingMs", result.Elapsed).
			Metric("PollCount", float64(result.Polls), metrics.UnitCount).
			Property("videoId", result.VideoID).
			Property("state", result.State.String())
		if result.Bytes > 0 {
			rec.Metric("IndexBytes", float64(result.Bytes), metrics.UnitBytes)
		}
		rec.Flush()
	}

	a.updateJob(ctx, result.VideoID, result.State.String(), result.OutputPath)

	if a.notifier != nil {
		bctx, cancel := bookkeepingContext(ctx)
		defer cancel()

		err := a.notifier.AnalysisCompleted(bctx, events.AnalysisCompleted{
			VideoID:    result.VideoID,
			Name:       result.Name,
			Outcome:    result.Outcome.String(),
			State:      result.State.String(),
			OutputPath: result.OutputPath,
			DurationMs: result.Elapsed.Milliseconds(),
		})
		if err != nil {
			log.Warn().Err(err).Str("videoId", result.VideoID).Msg("Failed to publish completion event")
		}
	}
}
