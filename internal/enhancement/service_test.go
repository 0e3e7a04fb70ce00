package enhancement

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"skinstudio/internal/domain"
	"skinstudio/internal/providers/runpod"
	"skinstudio/internal/queue"
	"skinstudio/internal/storage"
)

type memLedger struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	seq         int64
	unavailable bool
	createErr   error
	updates     []domain.JobUpdate
}

func newMemLedger() *memLedger {
	return &memLedger{jobs: map[string]*domain.Job{}}
}

func (l *memLedger) Create(_ context.Context, job *domain.Job) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return 0, domain.ErrLedgerUnavailable
	}
	if l.createErr != nil {
		return 0, l.createErr
	}
	l.seq++
	cp := *job
	cp.ID = l.seq
	cp.CreatedAt = time.Now().Add(time.Duration(l.seq) * time.Millisecond)
	cp.UpdatedAt = cp.CreatedAt
	l.jobs[job.JobID] = &cp
	job.ID = cp.ID
	return cp.ID, nil
}

func (l *memLedger) UpdateOnPoll(_ context.Context, u domain.JobUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return domain.ErrLedgerUnavailable
	}
	job, ok := l.jobs[u.JobID]
	if !ok {
		return domain.ErrNotFound
	}
	l.updates = append(l.updates, u)
	job.State = u.State
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	job.Error = u.Error
	if u.ResultURL != nil {
		url := *u.ResultURL
		job.EnhancedURL = &url
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (l *memLedger) Get(_ context.Context, id string) (*domain.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return nil, domain.ErrLedgerUnavailable
	}
	job, ok := l.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (l *memLedger) LatestForImage(_ context.Context, imageID string) (*domain.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return nil, domain.ErrLedgerUnavailable
	}
	var latest *domain.Job
	for _, job := range l.jobs {
		if job.ImageID == imageID && (latest == nil || job.ID > latest.ID) {
			latest = job
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (l *memLedger) ListRecent(_ context.Context, limit int) ([]domain.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return nil, domain.ErrLedgerUnavailable
	}
	out := make([]domain.Job, 0, len(l.jobs))
	for _, job := range l.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

type fakeProvider struct {
	configured bool
	submitErr  error
	submitted  []string
	polls      map[string]runpod.PollResult
	pollErr    error
	pollCount  int
	fetchURL   string
	fetches    int
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) Submit(_ context.Context, imageID string, _ domain.FeatureConfig) (*runpod.SubmitResult, error) {
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	p.submitted = append(p.submitted, imageID)
	return &runpod.SubmitResult{JobID: "rp-" + imageID, Status: "IN_QUEUE"}, nil
}

func (p *fakeProvider) Poll(_ context.Context, jobID string) (runpod.PollResult, error) {
	p.pollCount++
	if p.pollErr != nil {
		return runpod.PollResult{State: domain.JobStateProcessing, Transient: true}, p.pollErr
	}
	res, ok := p.polls[jobID]
	if !ok {
		return runpod.PollResult{State: domain.JobStateProcessing}, nil
	}
	return res, nil
}

func (p *fakeProvider) FetchResult(_ context.Context, jobID string) (string, error) {
	p.fetches++
	if p.fetchURL == "" {
		return "", runpod.ErrAmbiguousResult
	}
	return p.fetchURL, nil
}

type copyEnhancer struct {
	err error
}

func (e copyEnhancer) EnhanceFile(_ context.Context, src, dst string) error {
	if e.err != nil {
		return e.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("enhanced:"), data...), 0o644)
}

type recordingQueue struct {
	tasks []queue.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type seqCounter struct {
	next int64
	err  error
}

func (c *seqCounter) Next(context.Context, string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.next++
	return c.next, nil
}

type failingRemote struct{}

func (failingRemote) Upload(context.Context, string, string) (string, error) {
	return "", domain.ErrUpstreamUnavailable
}
func (failingRemote) Download(context.Context, string, string) error { return domain.ErrNotFound }
func (failingRemote) Exists(context.Context, string) (bool, error) {
	return false, domain.ErrUpstreamUnavailable
}
func (failingRemote) URLPrefix() string { return "https://s3.example.com/bucket/" }

type okRemote struct{ objects map[string]bool }

func (r *okRemote) Upload(_ context.Context, _, key string) (string, error) {
	r.objects[key] = true
	return r.URLPrefix() + key, nil
}
func (r *okRemote) Download(context.Context, string, string) error { return domain.ErrNotFound }
func (r *okRemote) Exists(_ context.Context, key string) (bool, error) {
	return r.objects[key], nil
}
func (r *okRemote) URLPrefix() string { return "https://s3.example.com/bucket/" }

type fixture struct {
	svc      *Service
	ledger   *memLedger
	provider *fakeProvider
	queue    *recordingQueue
	store    *storage.Store
}

func newFixture(t *testing.T, remote storage.Remote, provider *fakeProvider) *fixture {
	t.Helper()
	uploads, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("uploads: %v", err)
	}
	enhanced, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("enhanced: %v", err)
	}
	store, err := storage.NewStore(storage.Options{
		Remote:        remote,
		Uploads:       uploads,
		Enhanced:      enhanced,
		PublicBaseURL: "http://localhost:5000",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if provider == nil {
		provider = &fakeProvider{}
	}
	ledger := newMemLedger()
	q := &recordingQueue{}
	svc, err := NewService(Options{
		Ledger:   ledger,
		Counter:  &seqCounter{next: 1000},
		Store:    store,
		Provider: provider,
		Enhancer: copyEnhancer{},
		Queue:    q,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.newID = func() string { return "fixed" }
	return &fixture{svc: svc, ledger: ledger, provider: provider, queue: q, store: store}
}

func (f *fixture) upload(t *testing.T, name, body string) *UploadResult {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), UploadInput{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)})
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return res
}

func TestUploadStoresLocallyAndSchedules(t *testing.T) {
	f := newFixture(t, nil, nil)
	res := f.upload(t, "photo.png", "png-bytes")

	if res.FileName != "1001_photo.png" {
		t.Fatalf("file name = %q", res.FileName)
	}
	if res.StorageKind != storage.KindLocal || res.OriginalURL != "http://localhost:5000/uploads/1001_photo.png" {
		t.Fatalf("result = %+v", res)
	}
	if res.Status != UploadProcessing || !res.JobCreationDeferred {
		t.Fatalf("status = %q deferred=%v", res.Status, res.JobCreationDeferred)
	}
	if !f.store.Uploads().Exists(res.FileName) {
		t.Fatalf("upload not written to cache")
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].ImageID != res.FileName || f.queue.tasks[0].Kind != queue.KindEnhanceUpload {
		t.Fatalf("tasks = %+v", f.queue.tasks)
	}
	if f.ledger.count() != 0 {
		t.Fatalf("upload must not create a job row")
	}
}

func TestUploadRemoteLocatorIsProxied(t *testing.T) {
	f := newFixture(t, &okRemote{objects: map[string]bool{}}, nil)
	res := f.upload(t, "photo.png", "png")

	if res.StorageKind != storage.KindB2 {
		t.Fatalf("kind = %q", res.StorageKind)
	}
	if res.OriginalURL != "https://s3.example.com/bucket/1001_photo.png" {
		t.Fatalf("original url = %q", res.OriginalURL)
	}
	if res.FileURL != "http://localhost:5000/skin-studio/b2-proxy/1001_photo.png" {
		t.Fatalf("file url = %q", res.FileURL)
	}
}

func TestUploadRemoteFailureFallsBack(t *testing.T) {
	f := newFixture(t, failingRemote{}, nil)
	res := f.upload(t, "photo.png", "png")
	if res.StorageKind != storage.KindLocal {
		t.Fatalf("kind = %q, want local", res.StorageKind)
	}
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"no body", UploadInput{Filename: "a.png"}, domain.ErrValidation},
		{"empty name", UploadInput{Filename: "", Body: strings.NewReader("x")}, domain.ErrValidation},
		{"bad extension", UploadInput{Filename: "notes.txt", Body: strings.NewReader("x")}, domain.ErrValidation},
		{"declared too large", UploadInput{Filename: "a.png", Size: 11 << 20, Body: strings.NewReader("x")}, domain.ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Upload(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if len(f.queue.tasks) != 0 || f.ledger.count() != 0 {
		t.Fatalf("rejected uploads must not schedule work or create rows")
	}
}

func TestUploadUndeclaredOversizeBody(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.maxBytes = 8

	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "a.png", Size: -1, Body: strings.NewReader("0123456789")})
	if !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if f.store.Uploads().Exists("1001_a.png") {
		t.Fatalf("oversized upload must be removed")
	}
}

func TestUploadCounterUnavailableUsesTimestamp(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.counter = &seqCounter{err: domain.ErrLedgerUnavailable}
	f.svc.now = func() time.Time { return time.Unix(0, 1700000000123456789) }

	res := f.upload(t, "photo.png", "x")
	if res.FileName != "1700000000123456789_photo.png" {
		t.Fatalf("file name = %q", res.FileName)
	}
}

func TestUploadSucceedsWhenQueueFull(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.queue.err = domain.ErrQueueFull
	res := f.upload(t, "photo.png", "x")
	if res.Status != UploadProcessing {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestCreateJobRecordsProcessingRow(t *testing.T) {
	f := newFixture(t, nil, &fakeProvider{configured: true})

	job, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "1001_photo.png", OriginalURL: "http://x/1001_photo.png"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.JobID != "rp-1001_photo.png" || job.State != domain.JobStateProcessing || job.Progress != 10 {
		t.Fatalf("job = %+v", job)
	}
	if len(job.Config) == 0 {
		t.Fatalf("default config should be applied")
	}
	if f.ledger.count() != 1 {
		t.Fatalf("rows = %d", f.ledger.count())
	}
}

func TestCreateJobProviderFailureWritesNoRow(t *testing.T) {
	provider := &fakeProvider{configured: true, submitErr: &runpod.Error{Op: "submit", StatusCode: 500}}
	f := newFixture(t, nil, provider)

	_, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "1001_photo.png"})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if f.ledger.count() != 0 {
		t.Fatalf("failed submission must not create a row")
	}
}

func TestCreateJobLedgerFailureSurfaced(t *testing.T) {
	f := newFixture(t, nil, &fakeProvider{configured: true})
	f.ledger.createErr = errors.New("unique violation")

	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); err == nil {
		t.Fatalf("expected ledger error")
	}
}

func TestCreateJobRequiresProvider(t *testing.T) {
	f := newFixture(t, nil, nil)
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func progress(v int) *int { return &v }

func TestCheckStatusInProgress(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateProcessing, Progress: progress(50), ProviderStatus: "IN_PROGRESS"},
	}}
	f := newFixture(t, nil, provider)
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	view, err := f.svc.CheckStatus(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if view.Job.State != domain.JobStateProcessing || view.Job.Progress != 50 || view.Degraded {
		t.Fatalf("view = %+v job=%+v", view, view.Job)
	}
}

func TestCheckStatusCompletedIsIdempotent(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateCompleted, Progress: progress(100), Result: runpod.Result{URL: "https://x/y.png"}},
	}}
	f := newFixture(t, nil, provider)
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	first, err := f.svc.CheckStatus(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("first CheckStatus: %v", err)
	}
	second, err := f.svc.CheckStatus(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("second CheckStatus: %v", err)
	}
	if first.Job.EnhancedURLValue() != "https://x/y.png" || second.Job.EnhancedURLValue() != first.Job.EnhancedURLValue() {
		t.Fatalf("urls = %q / %q", first.Job.EnhancedURLValue(), second.Job.EnhancedURLValue())
	}
	if second.Job.State != domain.JobStateCompleted {
		t.Fatalf("state = %q", second.Job.State)
	}
}

func TestCheckStatusFailedRecordsError(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateFailed, Progress: progress(0), Error: "CUDA out of memory"},
	}}
	f := newFixture(t, nil, provider)
	_, _ = f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"})

	view, err := f.svc.CheckStatus(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if view.Job.State != domain.JobStateFailed || view.Job.ErrorValue() != "CUDA out of memory" {
		t.Fatalf("job = %+v", view.Job)
	}
}

func TestCheckStatusTransientPollKeepsLedger(t *testing.T) {
	provider := &fakeProvider{configured: true}
	f := newFixture(t, nil, provider)
	_, _ = f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"})
	provider.pollErr = errors.New("timeout")

	view, err := f.svc.CheckStatus(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if !view.Transient || view.Job.Progress != 10 {
		t.Fatalf("view = %+v", view)
	}
	if len(f.ledger.updates) != 0 {
		t.Fatalf("transient polls must not write the ledger")
	}
}

func TestCheckStatusDegradedWhenLedgerDown(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-x": {State: domain.JobStateProcessing, Progress: progress(50), ProviderStatus: "IN_PROGRESS"},
	}}
	f := newFixture(t, nil, provider)
	f.ledger.unavailable = true

	view, err := f.svc.CheckStatus(context.Background(), "rp-x")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if !view.Degraded || view.Job.Progress != 50 || view.ProviderStatus != "IN_PROGRESS" {
		t.Fatalf("view = %+v", view)
	}
}

func TestCheckStatusUnknownJob(t *testing.T) {
	f := newFixture(t, nil, &fakeProvider{configured: true})
	if _, err := f.svc.CheckStatus(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchResult(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{}}
	f := newFixture(t, &okRemote{objects: map[string]bool{}}, provider)
	_, _ = f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"})

	if _, err := f.svc.FetchResult(context.Background(), "rp-a.png"); !errors.Is(err, domain.ErrNotCompleted) {
		t.Fatalf("pending err = %v, want ErrNotCompleted", err)
	}

	provider.polls["rp-a.png"] = runpod.PollResult{State: domain.JobStateCompleted, Progress: progress(100), Result: runpod.Result{Ambiguous: true}}
	provider.fetchURL = "https://s3.example.com/bucket/enhanced_a.png"

	res, err := f.svc.FetchResult(context.Background(), "rp-a.png")
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if res.EnhancedURL != "http://localhost:5000/skin-studio/b2-proxy/enhanced_a.png" {
		t.Fatalf("url = %q", res.EnhancedURL)
	}
	job, _ := f.ledger.Get(context.Background(), "rp-a.png")
	if job.EnhancedURLValue() != provider.fetchURL {
		t.Fatalf("fetched result should be written back, got %q", job.EnhancedURLValue())
	}
}

func TestFetchResultFailedJob(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateFailed, Progress: progress(0), Error: "boom"},
	}}
	f := newFixture(t, nil, provider)
	_, _ = f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"})

	if _, err := f.svc.FetchResult(context.Background(), "rp-a.png"); !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", err)
	}
}

func TestProcessUploadLocalFallbackCompletes(t *testing.T) {
	f := newFixture(t, nil, nil)
	res := f.upload(t, "photo.png", "png-bytes")

	status, err := f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus before processing: %v", err)
	}
	if status.Status != UploadProcessing || status.StorageKind != storage.KindLocal {
		t.Fatalf("status before = %+v", status)
	}

	if err := f.svc.ProcessUpload(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	status, err = f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus after processing: %v", err)
	}
	if status.Status != UploadComplete {
		t.Fatalf("status after = %+v", status)
	}
	if status.EnhancedURL != "http://localhost:5000/enhanced/enhanced_1001_photo.png" {
		t.Fatalf("enhanced url = %q", status.EnhancedURL)
	}
	if status.JobID != "local-fixed" || status.Progress != 100 {
		t.Fatalf("job = %s progress=%d", status.JobID, status.Progress)
	}
	data, err := os.ReadFile(mustPath(t, f.store.Enhanced(), "enhanced_1001_photo.png"))
	if err != nil || string(data) != "enhanced:png-bytes" {
		t.Fatalf("enhanced file = %q, %v", data, err)
	}
}

func TestProcessUploadProviderFailureFallsBackToLocal(t *testing.T) {
	provider := &fakeProvider{configured: true, submitErr: &runpod.Error{Op: "submit", StatusCode: 500}}
	f := newFixture(t, nil, provider)
	res := f.upload(t, "photo.png", "x")

	if err := f.svc.ProcessUpload(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	job, err := f.ledger.LatestForImage(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("LatestForImage: %v", err)
	}
	if !domain.IsLocalJob(job.JobID) || job.State != domain.JobStateCompleted {
		t.Fatalf("job = %+v", job)
	}
}

func TestProcessUploadUsesProvider(t *testing.T) {
	provider := &fakeProvider{configured: true}
	f := newFixture(t, nil, provider)
	res := f.upload(t, "photo.png", "x")

	if err := f.svc.ProcessUpload(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	if len(provider.submitted) != 1 || provider.submitted[0] != res.FileName {
		t.Fatalf("submitted = %v", provider.submitted)
	}
	status, err := f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.JobID != "rp-"+res.FileName || status.Status != UploadProcessing {
		t.Fatalf("status = %+v", status)
	}
}

func TestProcessUploadEnhancerFailureMarksError(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.svc.enhancer = copyEnhancer{err: errors.New("corrupt image")}
	res := f.upload(t, "photo.png", "x")

	if err := f.svc.ProcessUpload(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	status, err := f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.Status != UploadError || status.Error != "corrupt image" {
		t.Fatalf("status = %+v", status)
	}
}

func TestProcessUploadMissingSourceIsRetryable(t *testing.T) {
	f := newFixture(t, nil, nil)
	err := f.svc.ProcessUpload(context.Background(), queue.Task{Kind: queue.KindEnhanceUpload, ImageID: "gone.png"})
	if err == nil {
		t.Fatalf("expected error for missing upload")
	}
	if f.ledger.count() != 0 {
		t.Fatalf("no row should be written before the source is available")
	}
}

func TestUploadStatusUnknownImage(t *testing.T) {
	f := newFixture(t, nil, nil)
	if _, err := f.svc.UploadStatus(context.Background(), "nope.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUploadStatusLedgerDown(t *testing.T) {
	f := newFixture(t, nil, nil)
	res := f.upload(t, "photo.png", "x")
	f.ledger.unavailable = true

	status, err := f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.Status != UploadProcessing || !status.Degraded {
		t.Fatalf("status = %+v", status)
	}
}

func TestUploadStatusLedgerDownServesEnhancedCache(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.ledger.unavailable = true
	res := f.upload(t, "photo.png", "png-bytes")

	if err := f.svc.ProcessUpload(context.Background(), f.queue.tasks[0]); err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}
	status, err := f.svc.UploadStatus(context.Background(), res.FileName)
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.Status != UploadComplete || !status.Degraded || status.Progress != 100 {
		t.Fatalf("status = %+v", status)
	}
	if status.EnhancedURL != "http://localhost:5000/enhanced/enhanced_1001_photo.png" {
		t.Fatalf("enhanced url = %q", status.EnhancedURL)
	}
}

func TestUploadStatusCompletedWithUnrecognizedResult(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateCompleted, Progress: progress(100), Result: runpod.Result{Ambiguous: true}},
	}}
	f := newFixture(t, nil, provider)
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	for i := 0; i < 3; i++ {
		status, err := f.svc.UploadStatus(context.Background(), "a.png")
		if err != nil {
			t.Fatalf("UploadStatus: %v", err)
		}
		if status.Status != UploadComplete || status.EnhancedURL != "" || status.Progress != 100 {
			t.Fatalf("call %d: status = %+v", i, status)
		}
	}
	if provider.fetches == 0 {
		t.Fatalf("completed job without a result should ask the provider directly")
	}
}

func TestUploadStatusFetchesMissingResult(t *testing.T) {
	provider := &fakeProvider{configured: true, polls: map[string]runpod.PollResult{
		"rp-a.png": {State: domain.JobStateCompleted, Progress: progress(100), Result: runpod.Result{Ambiguous: true}},
	}}
	f := newFixture(t, &okRemote{objects: map[string]bool{}}, provider)
	if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: "a.png"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := f.svc.UploadStatus(context.Background(), "a.png"); err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}

	provider.fetchURL = "https://s3.example.com/bucket/enhanced_a.png"
	status, err := f.svc.UploadStatus(context.Background(), "a.png")
	if err != nil {
		t.Fatalf("UploadStatus: %v", err)
	}
	if status.Status != UploadComplete || status.EnhancedURL != "http://localhost:5000/skin-studio/b2-proxy/enhanced_a.png" {
		t.Fatalf("status = %+v", status)
	}
	job, _ := f.ledger.Get(context.Background(), "rp-a.png")
	if job.EnhancedURLValue() != provider.fetchURL {
		t.Fatalf("fetched result not written back: %q", job.EnhancedURLValue())
	}
}

func TestListJobsClampsLimit(t *testing.T) {
	f := newFixture(t, nil, &fakeProvider{configured: true})
	for _, id := range []string{"a.png", "b.png", "c.png"} {
		if _, err := f.svc.CreateJob(context.Background(), CreateJobInput{ImageID: id}); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	jobs, err := f.svc.ListJobs(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ImageID != "c.png" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs, _ = f.svc.ListJobs(context.Background(), 0); len(jobs) != 3 {
		t.Fatalf("default limit returned %d jobs", len(jobs))
	}
}

func mustPath(t *testing.T, fs *storage.FileStore, key string) string {
	t.Helper()
	p, err := fs.Path(key)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	return p
}
