package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-mod.ewintr.nl/ytdigest/model"
	"go-mod.ewintr.nl/ytdigest/process"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
)

var day = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRegistry struct {
	channels   []model.ChannelRef
	unresolved []string
	err        error
}

func (f *fakeRegistry) ListChannels(_ context.Context) ([]model.ChannelRef, error) {
	return f.channels, f.err
}

func (f *fakeRegistry) Unresolved() []string {
	return f.unresolved
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSource struct {
	mu     sync.Mutex
	videos map[model.YoutubeChannelID][]model.VideoRef
	errs   map[model.YoutubeChannelID]error
	sinces map[model.YoutubeChannelID]time.Time
}

func (f *fakeSource) ListRecentVideos(_ context.Context, channelID model.YoutubeChannelID, since time.Time) ([]model.VideoRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sinces == nil {
		f.sinces = map[model.YoutubeChannelID]time.Time{}
	}
	f.sinces[channelID] = since
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	return f.videos[channelID], nil
}

type fakeWorker struct {
	mu        sync.Mutex
	fail      map[model.YoutubeVideoID]bool
	calls     map[model.YoutubeVideoID]int
	delay     time.Duration
	onProcess func(model.VideoRef)
}

func (f *fakeWorker) Process(_ context.Context, video model.VideoRef) (process.Outcome, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[model.YoutubeVideoID]int{}
	}
	f.calls[video.ID]++
	fail := f.fail[video.ID]
	onProcess := f.onProcess
	f.mu.Unlock()

	if onProcess != nil {
		onProcess(video)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return process.Outcome{}, &model.ProcessingError{VideoID: video.ID, Reason: "summary", Err: errors.New("model unavailable")}
	}
	return process.Outcome{Summary: fmt.Sprintf("summary of %s", video.ID)}, nil
}

func (f *fakeWorker) Calls(id model.YoutubeVideoID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeWorker) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeDispatcher struct {
	mu      sync.Mutex
	err     error
	digests []model.RunDigest
}

func (f *fakeDispatcher) Deliver(_ context.Context, digest model.RunDigest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests = append(f.digests, digest)
	return f.err
}

func (f *fakeDispatcher) Calls() []model.RunDigest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RunDigest{}, f.digests...)
}

type fakeIndex struct {
	mu    sync.Mutex
	saved []model.YoutubeVideoID
	err   error
	hang  bool
}

func (f *fakeIndex) Save(ctx context.Context, rec model.ProcessingRecord) error {
	f.mu.Lock()
	f.saved = append(f.saved, rec.VideoID)
	hang := f.hang
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type fixture struct {
	store      *storage.SQLStore
	registry   *fakeRegistry
	source     *fakeSource
	worker     *fakeWorker
	dispatcher *fakeDispatcher
	coord      *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := storage.NewSQLStore(context.Background(), db, storage.DialectSQLite)
	require.NoError(t, err)

	f := &fixture{
		store:      store,
		registry:   &fakeRegistry{},
		source:     &fakeSource{videos: map[model.YoutubeChannelID][]model.VideoRef{}, errs: map[model.YoutubeChannelID]error{}},
		worker:     &fakeWorker{fail: map[model.YoutubeVideoID]bool{}},
		dispatcher: &fakeDispatcher{},
	}
	f.coord = f.newCoordinator()
	return f
}

func (f *fixture) newCoordinator() *Coordinator {
	return NewCoordinator(f.store, f.registry, f.source, f.worker, f.dispatcher, DefaultOptions(), testLogger())
}

func (f *fixture) addChannel(id model.YoutubeChannelID, videos ...string) {
	f.registry.channels = append(f.registry.channels, model.ChannelRef{ID: id, Name: string(id)})
	refs := []model.VideoRef{}
	for i, v := range videos {
		refs = append(refs, video(v, id, day.Add(-time.Duration(i+1)*time.Hour)))
	}
	f.source.videos[id] = refs
}

func video(id string, channelID model.YoutubeChannelID, published time.Time) model.VideoRef {
	return model.VideoRef{
		ID:          model.YoutubeVideoID(id),
		ChannelID:   channelID,
		PublishedAt: published,
		Title:       "title " + id,
	}
}

func (f *fixture) record(t *testing.T, id string) model.ProcessingRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), model.YoutubeVideoID(id))
	require.NoError(t, err)
	return rec
}

func digestVideoIDs(d model.RunDigest) []string {
	ids := []string{}
	for _, item := range d.Items {
		ids = append(ids, string(item.VideoID))
	}
	sort.Strings(ids)
	return ids
}

func TestRunOnceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")
	f.addChannel("B", "v3")
	f.worker.fail["v2"] = true

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Channels)
	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, model.DeliveryDelivered, report.Delivery)
	assert.Equal(t, 2, report.DigestItems)

	assert.Equal(t, model.StatusSucceeded, f.record(t, "v1").Status)
	assert.Equal(t, "summary of v1", f.record(t, "v1").ResultSummary)
	v2 := f.record(t, "v2")
	assert.Equal(t, model.StatusFailed, v2.Status)
	assert.Equal(t, 1, v2.AttemptCount)
	assert.Equal(t, "summary: model unavailable", v2.LastError)
	assert.Equal(t, model.StatusSucceeded, f.record(t, "v3").Status)

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"v1", "v3"}, digestVideoIDs(calls[0]))

	last, ok := f.coord.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.RunID, last.RunID)

	t.Run("immediate rerun retries only the failure", func(t *testing.T) {
		report, err := f.coord.RunOnce(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Discovered)
		assert.Equal(t, 0, report.Succeeded)
		assert.Equal(t, 2, report.SkippedSeen)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, model.DeliveryNone, report.Delivery)

		assert.Equal(t, 2, f.record(t, "v2").AttemptCount)
		assert.Equal(t, 1, f.worker.Calls("v1"))
		assert.Equal(t, 1, f.worker.Calls("v3"))
		assert.Equal(t, 2, f.worker.Calls("v2"))
		assert.Len(t, f.dispatcher.Calls(), 1)
	})
}

func TestRunOnceIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")
	f.addChannel("B", "v3")

	_, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	before, err := f.store.FindByStatus(ctx)
	require.NoError(t, err)

	report, err := f.coord.RunOnce(ctx, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, model.DeliveryNone, report.Delivery)
	assert.Nil(t, report.DigestID)

	after, err := f.store.FindByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 3, f.worker.Total())
	assert.Len(t, f.dispatcher.Calls(), 1)
}

func TestRunOnceRetryBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	f.worker.fail["v1"] = true

	var report model.RunReport
	for i := 0; i < 5; i++ {
		var err error
		report, err = f.coord.RunOnce(ctx, day.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.worker.Calls("v1"))
	rec := f.record(t, "v1")
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.Equal(t, 1, report.Exhausted)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunOncePartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2", "v3", "v4", "v5")
	f.worker.fail["v3"] = true

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"v1", "v2", "v4", "v5"}, digestVideoIDs(calls[0]))
}

func TestRunOnceDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")
	f.dispatcher.err = errors.New("smtp down")

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, model.DeliveryFailed, report.Delivery)
	assert.Contains(t, report.DeliveryError, "smtp down")
	require.NotNil(t, report.DigestID)
	failedID := *report.DigestID
	assert.Equal(t, model.StatusSucceeded, f.record(t, "v1").Status)
	assert.Equal(t, model.StatusSucceeded, f.record(t, "v2").Status)

	f.dispatcher.err = nil
	report, err = f.coord.RunOnce(ctx, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, model.DeliveryDelivered, report.Delivery)
	assert.Equal(t, 2, f.worker.Total(), "no reprocessing")

	calls := f.dispatcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"v1", "v2"}, digestVideoIDs(calls[1]))

	old, err := f.store.FindDigest(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, model.DigestMerged, old.Status)
	require.NotNil(t, old.MergedInto)
	assert.Equal(t, calls[1].ID, *old.MergedInto)
}

func TestRunOnceChannelSourceError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	stuck := video("v0", "A", day.Add(-10*time.Hour))
	_, err := f.store.CreatePending(ctx, stuck, day.Add(-5*time.Hour))
	require.NoError(t, err)
	ok, err := f.store.MarkProcessing(ctx, stuck.ID, 3, day.Add(-5*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	f.registry.err = errors.New("registry unreachable")

	_, err = f.coord.RunOnce(ctx, day)
	var csErr *model.ChannelSourceError
	require.True(t, errors.As(err, &csErr))

	assert.Equal(t, model.StatusProcessing, f.record(t, "v0").Status, "nothing mutated")
	_, err = f.store.Get(ctx, "v1")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.Equal(t, 0, f.worker.Total())
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunOnceRecoverySweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	_, err := f.store.CreatePending(ctx, f.source.videos["A"][0], day.Add(-3*time.Hour))
	require.NoError(t, err)
	ok, err := f.store.MarkProcessing(ctx, "v1", 3, day.Add(-3*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Equal(t, 1, report.Succeeded)

	rec := f.record(t, "v1")
	assert.Equal(t, model.StatusSucceeded, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount, "interrupted attempt is counted")
}

func TestRunOnceFreshProcessingLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	_, err := f.store.CreatePending(ctx, f.source.videos["A"][0], day.Add(-time.Minute))
	require.NoError(t, err)
	ok, err := f.store.MarkProcessing(ctx, "v1", 3, day.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recovered)
	assert.Equal(t, 1, report.SkippedClaimed)
	assert.Equal(t, 0, f.worker.Total())
}

func TestRunOnceChannelIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	f.addChannel("B", "v2")
	f.source.errs["B"] = &model.VideoSourceError{ChannelID: "B", Err: errors.New("quota")}

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "quota")

	_, ok, err := f.store.HighWaterMark(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = f.store.HighWaterMark(ctx, "B")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunOnceRejectsAndDedupes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	f.addChannel("B", "v2")
	f.source.videos["A"] = append(f.source.videos["A"],
		model.VideoRef{ID: "", ChannelID: "A", PublishedAt: day, Title: "no id"},
		model.VideoRef{ID: "v9", ChannelID: "A", Title: "no publish time"},
	)
	f.source.videos["B"] = append(f.source.videos["B"], video("v1", "B", day.Add(-2*time.Hour)))

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, f.worker.Calls("v1"))
	assert.Equal(t, model.YoutubeChannelID("A"), f.record(t, "v1").ChannelID, "first sighting wins")
}

func TestRunOnceHighWaterMark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")

	_, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.True(t, f.source.sinces["A"].Equal(day.Add(-24*time.Hour)), "first run uses the lookback window")

	mark, ok, err := f.store.HighWaterMark(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mark.Equal(day.Add(-time.Hour)))

	_, err = f.coord.RunOnce(ctx, day.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, f.source.sinces["A"].Equal(mark), "later runs start at the mark")
}

func TestRunOnceRetriesUndiscovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A")
	old := video("v1", "A", day.Add(-72*time.Hour))
	_, err := f.store.CreatePending(ctx, old, day.Add(-48*time.Hour))
	require.NoError(t, err)
	ok, err := f.store.MarkProcessing(ctx, "v1", 3, day.Add(-48*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.store.MarkFailed(ctx, "v1", "timeout", day.Add(-48*time.Hour)))

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Discovered)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, model.StatusSucceeded, f.record(t, "v1").Status)
	require.Len(t, f.dispatcher.Calls(), 1)
}

func TestRunOnceIndexesSummaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")
	f.worker.fail["v2"] = true
	index := &fakeIndex{err: errors.New("weaviate down")}
	f.coord.WithIndex(index)

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded, "index failures do not fail videos")
	assert.Equal(t, []model.YoutubeVideoID{"v1"}, index.saved)
}

func TestRunOnceConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := []string{}
	for i := 0; i < 12; i++ {
		ids = append(ids, fmt.Sprintf("v%02d", i))
	}
	f.addChannel("A", ids...)
	f.worker.delay = 5 * time.Millisecond

	coords := []*Coordinator{f.newCoordinator(), f.newCoordinator(), f.newCoordinator()}
	reports := make([]model.RunReport, len(coords))
	var wg sync.WaitGroup
	for i, coord := range coords {
		wg.Add(1)
		go func(i int, coord *Coordinator) {
			defer wg.Done()
			var err error
			reports[i], err = coord.RunOnce(ctx, day)
			assert.NoError(t, err)
		}(i, coord)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 1, f.worker.Calls(model.YoutubeVideoID(id)), id)
	}
	succeeded, delivered := 0, map[string]int{}
	for _, r := range reports {
		succeeded += r.Succeeded
	}
	for _, d := range f.dispatcher.Calls() {
		for _, id := range digestVideoIDs(d) {
			delivered[id]++
		}
	}
	assert.Equal(t, len(ids), succeeded)
	assert.Len(t, delivered, len(ids))
	for id, n := range delivered {
		assert.Equal(t, 1, n, id)
	}
}

func TestRunOnceCancelled(t *testing.T) {
	f := newFixture(t)
	f.addChannel("A", "v1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.RunOnce(ctx, day)
	assert.Error(t, err)
	assert.Empty(t, f.dispatcher.Calls())
}

func TestRunOnceLongRunKeepsLateClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")

	clock := &testClock{now: day}
	started, release := make(chan struct{}), make(chan struct{})
	f.worker.onProcess = func(v model.VideoRef) {
		switch v.ID {
		case "v1":
			clock.Advance(3 * time.Hour)
		case "v2":
			close(started)
			<-release
		}
	}
	opts := DefaultOptions()
	opts.Workers = 1
	long := NewCoordinator(f.store, f.registry, f.source, f.worker, f.dispatcher, opts, testLogger()).WithClock(clock.Now)

	var (
		longReport model.RunReport
		longErr    error
		wg         sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		longReport, longErr = long.RunOnce(ctx, day)
	}()
	<-started

	claim := f.record(t, "v2")
	assert.Equal(t, model.StatusProcessing, claim.Status)
	require.NotNil(t, claim.LastAttemptedAt)
	assert.True(t, claim.LastAttemptedAt.Equal(day.Add(3*time.Hour)), "claim is stamped with the elapsed run time")

	report, err := f.newCoordinator().RunOnce(ctx, day.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recovered, "a live claim is not stale")
	assert.Equal(t, 1, report.SkippedClaimed)

	close(release)
	wg.Wait()
	require.NoError(t, longErr)
	assert.Equal(t, 2, longReport.Succeeded)
	assert.Equal(t, 1, f.worker.Calls("v2"))
	rec := f.record(t, "v2")
	assert.Equal(t, model.StatusSucceeded, rec.Status)
	assert.Equal(t, 0, rec.AttemptCount)
	require.Len(t, f.dispatcher.Calls(), 1)
	assert.Equal(t, []string{"v1", "v2"}, digestVideoIDs(f.dispatcher.Calls()[0]))
}

func TestRunOnceLostClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1", "v2")
	f.worker.onProcess = func(v model.VideoRef) {
		if v.ID != "v2" {
			return
		}
		// another run recovers the claim while this one is still working
		n, err := f.store.ResetStale(ctx, day.Add(24*time.Hour), day)
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	opts := DefaultOptions()
	opts.Workers = 1
	coord := NewCoordinator(f.store, f.registry, f.source, f.worker, f.dispatcher, opts, testLogger())

	report, err := coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.SkippedClaimed)
	for _, res := range report.Videos {
		if res.VideoID == "v2" {
			assert.Equal(t, model.OutcomeSkippedClaimed, res.Outcome)
			assert.NotEmpty(t, res.Reason)
		}
	}
	assert.Equal(t, model.DeliveryDelivered, report.Delivery)
	require.Len(t, f.dispatcher.Calls(), 1)
	assert.Equal(t, []string{"v1"}, digestVideoIDs(f.dispatcher.Calls()[0]))

	rec := f.record(t, "v2")
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, model.ReasonInterrupted, rec.LastError)
	_, ok, err := f.store.HighWaterMark(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnceIndexTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	opts := DefaultOptions()
	opts.IndexTimeout = 50 * time.Millisecond
	coord := NewCoordinator(f.store, f.registry, f.source, f.worker, f.dispatcher, opts, testLogger()).
		WithIndex(&fakeIndex{hang: true})

	start := time.Now()
	report, err := coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, model.DeliveryDelivered, report.Delivery)
}

func TestRunOnceReportsUnresolvedChannels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addChannel("A", "v1")
	f.registry.unresolved = []string{"@gone"}

	report, err := f.coord.RunOnce(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"@gone"}, report.ChannelsNotFound)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "@gone")
	assert.Equal(t, 1, report.Succeeded)
}
