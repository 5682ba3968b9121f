package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mjrousos/video-analysis-exploration/internal/events"
	"github.com/mjrousos/video-analysis-exploration/internal/indexer"
	"github.com/mjrousos/video-analysis-exploration/internal/store"
)

const sampleIndex = `{"id":"vid-1","state":"Processed"}`

// fakeIndexer replays a scripted sequence of poll states.
type fakeIndexer struct {
	uploadErr error
	initial   indexer.UploadState
	states    []indexer.UploadState
	pollErr   error
	fetchErr  error

	uploads []indexer.UploadRequest
	polls   int
	fetches int
}

func (f *fakeIndexer) StartUpload(ctx context.Context, req indexer.UploadRequest) (*indexer.Upload, error) {
	f.uploads = append(f.uploads, req)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &indexer.Upload{VideoID: "vid-1", State: f.initial}, nil
}

func (f *fakeIndexer) PollUntilTerminal(ctx context.Context, upload *indexer.Upload, observers ...indexer.PollObserver) (indexer.UploadState, error) {
	f.polls++
	for _, state := range f.states {
		upload.State = state
		upload.Polls++
		for _, observe := range observers {
			observe(*upload)
		}
	}
	return upload.State, f.pollErr
}

func (f *fakeIndexer) FetchIndex(ctx context.Context, videoID string) (io.ReadCloser, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return io.NopCloser(strings.NewReader(sampleIndex)), nil
}

type fakeResolver struct {
	url   string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, localPath string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakeJobs struct {
	puts    []store.JobRecord
	updates []string
	err     error
}

func (f *fakeJobs) PutJob(ctx context.Context, job *store.JobRecord) error {
	f.puts = append(f.puts, *job)
	return f.err
}

func (f *fakeJobs) GetJob(ctx context.Context, videoID string) (*store.JobRecord, error) {
	return nil, nil
}

func (f *fakeJobs) UpdateJobState(ctx context.Context, videoID, state, outputPath string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.updates = append(f.updates, state+":"+outputPath)
	return f.err
}

type fakeNotifier struct {
	events []events.AnalysisCompleted
	err    error
}

func (f *fakeNotifier) AnalysisCompleted(ctx context.Context, event events.AnalysisCompleted) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.events = append(f.events, event)
	return f.err
}

type harness struct {
	idx      *fakeIndexer
	resolver *fakeResolver
	jobs     *fakeJobs
	notifier *fakeNotifier
	metrics  *bytes.Buffer
	output   string
	analyzer *Analyzer
}

func newHarness(t *testing.T, idx *fakeIndexer) *harness {
	h := &harness{
		idx:      idx,
		resolver: &fakeResolver{url: "https://example.com/talk.mp4"},
		jobs:     &fakeJobs{},
		notifier: &fakeNotifier{},
		metrics:  &bytes.Buffer{},
		output:   filepath.Join(t.TempDir(), "VideoIndex.json"),
	}
	h.analyzer = New(idx, h.resolver, Options{
		OutputPath:    h.output,
		SourceBackend: "url",
		Location:      "trial",
		AccountID:     "acct-1",
		Metrics:       h.metrics,
	}).WithJobStore(h.jobs).WithNotifier(h.notifier)
	return h
}

func (h *harness) outputExists() bool {
	_, err := os.Stat(h.output)
	return err == nil
}

func (h *harness) metricsDoc(t *testing.T) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal(h.metrics.Bytes(), &doc); err != nil {
		t.Fatalf("metrics output is not JSON: %v\n%s", err, h.metrics.String())
	}
	return doc
}

var testRequest = Request{InputPath: "/videos/talk.mp4", Name: "talk", Description: "A talk"}

func TestAnalyze_Completed(t *testing.T) {
	h := newHarness(t, &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessing, indexer.StateProcessing, indexer.StateProcessed},
	})

	result, err := h.analyzer.Analyze(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeCompleted || result.State != indexer.StateProcessed {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Polls != 3 || result.Bytes != int64(len(sampleIndex)) || result.OutputPath != h.output {
		t.Errorf("unexpected result details: %+v", result)
	}

	upload := h.idx.uploads[0]
	if upload.VideoURL != "https://example.com/talk.mp4" || upload.FilePath != "/videos/talk.mp4" || upload.Name != "talk" {
		t.Errorf("unexpected upload request: %+v", upload)
	}
	if h.idx.fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", h.idx.fetches)
	}

	data, err := os.ReadFile(h.output)
	if err != nil || string(data) != sampleIndex {
		t.Errorf("index not saved: %q, %v", data, err)
	}

	if len(h.jobs.puts) != 1 || h.jobs.puts[0].State != "Uploaded" || h.jobs.puts[0].Source != "url" {
		t.Errorf("unexpected ledger put: %+v", h.jobs.puts)
	}
	// state changes only, then the final update with the output path
	want := []string{"Processing:", "Processed:", "Processed:" + h.output}
	if strings.Join(h.jobs.updates, ",") != strings.Join(want, ",") {
		t.Errorf("ledger updates = %v, want %v", h.jobs.updates, want)
	}

	if len(h.notifier.events) != 1 || h.notifier.events[0].Outcome != "Completed" {
		t.Errorf("unexpected events: %+v", h.notifier.events)
	}

	doc := h.metricsDoc(t)
	if doc["Outcome"] != "Completed" || doc["PollCount"] != float64(3) || doc["IndexBytes"] != float64(len(sampleIndex)) {
		t.Errorf("unexpected metrics: %v", doc)
	}
}

func TestAnalyze_FailedStateSkipsFetch(t *testing.T) {
	h := newHarness(t, &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessing, indexer.StateFailed},
	})

	result, err := h.analyzer.Analyze(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("a Failed state is an outcome, not an error: %v", err)
	}
	if result.Outcome != OutcomeFailed || result.State != indexer.StateFailed {
		t.Errorf("unexpected result: %+v", result)
	}
	if h.idx.fetches != 0 {
		t.Error("index must not be fetched for a failed video")
	}
	if h.outputExists() {
		t.Error("no output file should be created")
	}
	if h.notifier.events[0].Outcome != "Failed" {
		t.Errorf("unexpected event outcome: %s", h.notifier.events[0].Outcome)
	}
	if _, ok := h.metricsDoc(t)["IndexBytes"]; ok {
		t.Error("IndexBytes should not be recorded without an index")
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	idx := &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessing},
		pollErr: context.Canceled,
	}
	h := newHarness(t, idx)
	cancel()

	result, err := h.analyzer.Analyze(ctx, testRequest)
	if err != nil {
		t.Fatalf("cancellation should not be an error: %v", err)
	}
	if result.Outcome != OutcomeCancelled || result.State != indexer.StateProcessing {
		t.Errorf("unexpected result: %+v", result)
	}
	if idx.fetches != 0 || h.outputExists() {
		t.Error("nothing should be fetched or written after cancellation")
	}

	// Bookkeeping still runs after the run's context is cancelled.
	if len(h.notifier.events) != 1 || h.notifier.events[0].Outcome != "Cancelled" {
		t.Errorf("expected a Cancelled event, got %+v", h.notifier.events)
	}
	if len(h.jobs.updates) == 0 {
		t.Error("expected a final ledger update")
	}
}

func TestAnalyze_UploadFailureSkipsPolling(t *testing.T) {
	uploadErr := &indexer.Error{Kind: indexer.KindUpload, StatusCode: 401}
	idx := &fakeIndexer{uploadErr: uploadErr}
	h := newHarness(t, idx)

	result, err := h.analyzer.Analyze(context.Background(), testRequest)
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	if !errors.Is(err, uploadErr) {
		t.Errorf("expected upload error, got %v", err)
	}
	if idx.polls != 0 || idx.fetches != 0 {
		t.Errorf("expected no polling or fetch, got %d polls, %d fetches", idx.polls, idx.fetches)
	}
	if len(h.jobs.puts) != 0 || len(h.notifier.events) != 0 || h.metrics.Len() != 0 {
		t.Error("no bookkeeping without a video ID")
	}
}

func TestAnalyze_ResolveFailureSkipsUpload(t *testing.T) {
	idx := &fakeIndexer{}
	h := newHarness(t, idx)
	h.resolver.err = errors.New("bucket not found")

	_, err := h.analyzer.Analyze(context.Background(), testRequest)
	if !errors.Is(err, h.resolver.err) {
		t.Errorf("expected resolver error, got %v", err)
	}
	if len(idx.uploads) != 0 {
		t.Error("upload should not start when staging fails")
	}
}

func TestAnalyze_TokenFailureWhilePolling(t *testing.T) {
	authErr := &indexer.Error{Kind: indexer.KindAuthentication, Err: errors.New("expired")}
	idx := &fakeIndexer{initial: indexer.StateUploaded, pollErr: authErr}
	h := newHarness(t, idx)

	_, err := h.analyzer.Analyze(context.Background(), testRequest)
	if !errors.Is(err, authErr) {
		t.Errorf("expected auth error, got %v", err)
	}
	if idx.fetches != 0 {
		t.Error("no fetch after a token failure")
	}
	if h.notifier.events[0].Outcome != "Failed" {
		t.Errorf("expected Failed event, got %s", h.notifier.events[0].Outcome)
	}
}

func TestAnalyze_FetchFailureWritesNothing(t *testing.T) {
	fetchErr := &indexer.Error{Kind: indexer.KindFetch, StatusCode: 500}
	idx := &fakeIndexer{
		initial:  indexer.StateUploaded,
		states:   []indexer.UploadState{indexer.StateProcessed},
		fetchErr: fetchErr,
	}
	h := newHarness(t, idx)

	_, err := h.analyzer.Analyze(context.Background(), testRequest)
	if !errors.Is(err, fetchErr) {
		t.Errorf("expected fetch error, got %v", err)
	}
	if h.outputExists() {
		t.Error("output file must not be created when retrieval fails")
	}
}

func TestAnalyze_SideChannelFailuresAreNotFatal(t *testing.T) {
	h := newHarness(t, &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessed},
	})
	h.jobs.err = errors.New("table missing")
	h.notifier.err = errors.New("bus missing")

	result, err := h.analyzer.Analyze(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("side channel failures must not fail the run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Errorf("expected Completed, got %s", result.Outcome)
	}
}

func TestAnalyze_WithoutOptionalCollaborators(t *testing.T) {
	idx := &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessed},
	}
	out := filepath.Join(t.TempDir(), "VideoIndex.json")
	a := New(idx, &fakeResolver{url: "https://example.com/v.mp4"}, Options{OutputPath: out})

	result, err := a.Analyze(context.Background(), testRequest)
	if err != nil || result.Outcome != OutcomeCompleted {
		t.Fatalf("unexpected result: %+v, %v", result, err)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		OutcomeCompleted: "Completed",
		OutcomeFailed:    "Failed",
		OutcomeCancelled: "Cancelled",
		Outcome(9):       "Unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %s, want %s", int(o), got, want)
		}
	}
}

func TestAnalyze_DefaultNameDropsExtension(t *testing.T) {
	h := newHarness(t, &fakeIndexer{
		initial: indexer.StateUploaded,
		states:  []indexer.UploadState{indexer.StateProcessed},
	})

	result, err := h.analyzer.Analyze(context.Background(), Request{InputPath: "/videos/talk.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.idx.uploads) != 1 || h.idx.uploads[0].Name != "talk" {
		t.Fatalf("expected upload named talk, got %+v", h.idx.uploads)
	}
	if result.Name != "talk" {
		t.Errorf("result.Name = %q, want talk", result.Name)
	}
	if len(h.jobs.puts) != 1 || h.jobs.puts[0].Name != "talk" {
		t.Errorf("expected ledger record named talk, got %+v", h.jobs.puts)
	}
}
