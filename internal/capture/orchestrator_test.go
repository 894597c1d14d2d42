package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOpts = Options{
	MaxAttempts:       3,
	InitialTimeout:    10 * time.Second,
	TimeoutMultiplier: 2,
	FailureThreshold:  5,
	ResetTimeout:      time.Minute,
}

func TestOrchestratorRunAllSucceed(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(nil)
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	var progress []int
	summary, err := o.Run(context.Background(), "job-1", []string{"https://a.test", "https://b.test"}, func(_ context.Context, completed int) {
		progress = append(progress, completed)
	})
	require.NoError(t, err)

	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Completed)
	require.Zero(t, summary.Abandoned)
	require.Equal(t, []int{1, 2}, progress)

	require.Len(t, summary.Artifacts, 2)
	require.Equal(t, "jobs/job-1/0-a-test-1700000000000.png", summary.Artifacts[0].Key)
	require.Equal(t, "jobs/job-1/1-b-test-1700000000000.png", summary.Artifacts[1].Key)
	require.Equal(t, PNGContentType, summary.Artifacts[0].ContentType)
	require.Contains(t, store.objects, summary.Artifacts[0].Key)
	require.Contains(t, store.objects, summary.Artifacts[1].Key)

	require.Equal(t, []renderCall{
		{url: "https://a.test", timeout: 10 * time.Second},
		{url: "https://b.test", timeout: 10 * time.Second},
	}, renderer.calls)
}

func TestOrchestratorRetriesWithGrowingTimeout(t *testing.T) {
	t.Parallel()

	boom := errors.New("context deadline exceeded")
	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {boom, boom},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), "job-1", []string{"https://a.test", "https://b.test"}, nil)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Completed)
	require.Zero(t, summary.Abandoned)

	// Retries go to the back of the queue with a doubled timeout.
	require.Equal(t, []renderCall{
		{url: "https://a.test", timeout: 10 * time.Second},
		{url: "https://b.test", timeout: 10 * time.Second},
		{url: "https://a.test", timeout: 20 * time.Second},
		{url: "https://a.test", timeout: 40 * time.Second},
	}, renderer.calls)
}

func TestOrchestratorAbandonsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("context deadline exceeded")
	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {boom, boom, boom},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	var progress []int
	summary, err := o.Run(context.Background(), "job-1", []string{"https://a.test", "https://b.test"}, func(_ context.Context, completed int) {
		progress = append(progress, completed)
	})
	require.NoError(t, err)

	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Abandoned)
	require.Equal(t, []int{1}, progress)
	require.Len(t, summary.Artifacts, 1)
	require.Equal(t, "jobs/job-1/1-b-test-1700000000000.png", summary.Artifacts[0].Key)

	attempts := 0
	for _, call := range renderer.calls {
		if call.url == "https://a.test" {
			attempts++
		}
	}
	require.Equal(t, 3, attempts, "abandoned url should be attempted exactly MaxAttempts times")
}

func TestOrchestratorBreakerAbortsRun(t *testing.T) {
	t.Parallel()

	boom := errors.New("context deadline exceeded")
	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {boom, boom, boom},
		"https://b.test": {boom, boom, boom},
		"https://c.test": {boom, boom, boom},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	opts := testOpts
	opts.MaxAttempts = 10
	opts.FailureThreshold = 2

	o, err := NewOrchestrator(renderer, store, clock, opts, zap.NewNop())
	require.NoError(t, err)

	urls := []string{"https://a.test", "https://b.test", "https://c.test"}
	summary, err := o.Run(context.Background(), "job-1", urls, nil)
	require.ErrorIs(t, err, ErrServiceUnavailable)

	require.Zero(t, summary.Completed)
	require.Equal(t, 3, summary.Total)
	// The third failure trips the breaker; nothing is navigated afterwards.
	require.Len(t, renderer.calls, 3)
}

func TestOrchestratorSuccessResetsBreakerStreak(t *testing.T) {
	t.Parallel()

	boom := errors.New("context deadline exceeded")
	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {boom, boom},
		"https://c.test": {boom},
		"https://d.test": {boom},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	opts := testOpts
	opts.FailureThreshold = 2

	o, err := NewOrchestrator(renderer, store, clock, opts, zap.NewNop())
	require.NoError(t, err)

	urls := []string{"https://a.test", "https://b.test", "https://c.test", "https://d.test"}
	summary, err := o.Run(context.Background(), "job-1", urls, nil)
	require.ErrorIs(t, err, ErrServiceUnavailable)

	// b succeeds and resets the streak, so the run survives the c and d
	// failures and aborts only after a's retry makes it three in a row.
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, []renderCall{
		{url: "https://a.test", timeout: 10 * time.Second},
		{url: "https://b.test", timeout: 10 * time.Second},
		{url: "https://c.test", timeout: 10 * time.Second},
		{url: "https://d.test", timeout: 10 * time.Second},
		{url: "https://a.test", timeout: 20 * time.Second},
	}, renderer.calls)
}

func TestOrchestratorFatalFaultRecyclesSession(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {errors.New("chromedp: protocol error: websocket gone")},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), "job-1", []string{"https://a.test"}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, renderer.recycles)
}

func TestOrchestratorBenignFailureDoesNotRecycle(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(map[string][]error{
		"https://a.test": {errors.New("context deadline exceeded")},
	})
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), "job-1", []string{"https://a.test"}, nil)
	require.NoError(t, err)
	require.Zero(t, renderer.recycles)
}

func TestOrchestratorStorageFailureAbortsRun(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(nil)
	store := newMemStore()
	store.failAt = 2
	store.err = errors.New("bucket unavailable")
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), "job-1", []string{"https://a.test", "https://b.test", "https://c.test"}, nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "put object")
	require.ErrorContains(t, err, "bucket unavailable")

	require.Equal(t, 1, summary.Completed)
	require.Len(t, summary.Artifacts, 1)
	require.Len(t, renderer.calls, 2, "run should stop at the failed write")
}

func TestOrchestratorContextCanceled(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(nil)
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	o, err := NewOrchestrator(renderer, store, clock, testOpts, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Run(ctx, "job-1", []string{"https://a.test"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, renderer.calls)
}

func TestOrchestratorEmptyBatch(t *testing.T) {
	t.Parallel()

	o, err := NewOrchestrator(newScriptedRenderer(nil), newMemStore(), &fakeClock{now: time.Unix(0, 0)}, testOpts, zap.NewNop())
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), "job-1", nil, nil)
	require.NoError(t, err)
	require.Zero(t, summary.Total)
	require.Zero(t, summary.Completed)
}

func TestOrchestratorPausesBetweenCaptures(t *testing.T) {
	t.Parallel()

	renderer := newScriptedRenderer(nil)
	store := newMemStore()
	clock := &fakeClock{now: time.UnixMilli(1700000000000)}

	opts := testOpts
	opts.BaseDelay = 7 * time.Millisecond

	o, err := NewOrchestrator(renderer, store, clock, opts, zap.NewNop())
	require.NoError(t, err)

	rec := &recordingPauser{}
	o.pauser = rec

	urls := []string{"https://a.test", "https://b.test", "https://c.test"}
	_, err = o.Run(context.Background(), "job-1", urls, nil)
	require.NoError(t, err)

	// A pause after every capture except the last.
	require.Equal(t, []time.Duration{7 * time.Millisecond, 7 * time.Millisecond}, rec.delays)
}

func TestNewOrchestratorValidatesOptions(t *testing.T) {
	t.Parallel()

	opts := testOpts
	opts.TimeoutMultiplier = 0.5

	_, err := NewOrchestrator(newScriptedRenderer(nil), newMemStore(), &fakeClock{}, opts, zap.NewNop())
	require.Error(t, err)
	require.ErrorContains(t, err, "timeout multiplier")
}

// --- fakes ---

type renderCall struct {
	url     string
	timeout time.Duration
}

type scriptedRenderer struct {
	mu       sync.Mutex
	outcomes map[string][]error
	calls    []renderCall
	recycles int
}

func newScriptedRenderer(outcomes map[string][]error) *scriptedRenderer {
	if outcomes == nil {
		outcomes = make(map[string][]error)
	}
	return &scriptedRenderer{outcomes: outcomes}
}

// Capture consumes the scripted outcomes for the URL in order and succeeds
// once they run out.
func (r *scriptedRenderer) Capture(_ context.Context, url string, timeout time.Duration) (Shot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{url: url, timeout: timeout})
	if outs := r.outcomes[url]; len(outs) > 0 {
		err := outs[0]
		r.outcomes[url] = outs[1:]
		if err != nil {
			return Shot{}, err
		}
	}
	return Shot{Bytes: []byte("png-bytes"), StatusCode: 200, FinalURL: url}, nil
}

func (r *scriptedRenderer) Recycle(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recycles++
	return nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
	failAt  int
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failAt > 0 && s.puts >= s.failAt {
		return s.err
	}
	s.objects[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.delays = append(p.delays, delay)
}
