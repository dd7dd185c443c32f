package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go-mod.ewintr.nl/ytdigest/deliver"
	"go-mod.ewintr.nl/ytdigest/fetch"
	"go-mod.ewintr.nl/ytdigest/model"
	"go-mod.ewintr.nl/ytdigest/process"
	"go-mod.ewintr.nl/ytdigest/storage"
	"golang.org/x/exp/slog"
)

type Worker interface {
	Process(ctx context.Context, video model.VideoRef) (process.Outcome, error)
}

type Options struct {
	MaxAttempts     int
	Workers         int
	Lookback        time.Duration
	StaleAfter      time.Duration
	ListTimeout     time.Duration
	ProcessTimeout  time.Duration
	DeliveryTimeout time.Duration
	IndexTimeout    time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		Workers:         4,
		Lookback:        24 * time.Hour,
		StaleAfter:      2 * time.Hour,
		ListTimeout:     30 * time.Second,
		ProcessTimeout:  5 * time.Minute,
		DeliveryTimeout: time.Minute,
		IndexTimeout:    30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Lookback <= 0 {
		o.Lookback = def.Lookback
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = def.StaleAfter
	}
	if o.ListTimeout <= 0 {
		o.ListTimeout = def.ListTimeout
	}
	if o.ProcessTimeout <= 0 {
		o.ProcessTimeout = def.ProcessTimeout
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = def.DeliveryTimeout
	}
	if o.IndexTimeout <= 0 {
		o.IndexTimeout = def.IndexTimeout
	}
	return o
}

// Coordinator runs the daily cycle: list channels, find videos that were not
// processed yet, process each of them at most once and deliver one digest.
type Coordinator struct {
	store      storage.Store
	registry   fetch.ChannelRegistry
	source     fetch.VideoSource
	worker     Worker
	dispatcher deliver.Dispatcher
	index      storage.VideoVecRepository
	opts       Options
	clock      func() time.Time
	logger     *slog.Logger

	mu   sync.Mutex
	last *model.RunReport
}

func NewCoordinator(store storage.Store, registry fetch.ChannelRegistry, source fetch.VideoSource, worker Worker, dispatcher deliver.Dispatcher, opts Options, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		registry:   registry,
		source:     source,
		worker:     worker,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		clock:      time.Now,
		logger:     logger,
	}
}

// WithClock replaces the wall clock used to measure how long a run has been
// going.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// runClock places the moment of a write on the timeline of the run: the run's
// now plus the wall time elapsed since the run started. Claims made late in a
// long run are stamped late, so other runs do not take them for stale.
type runClock struct {
	now     time.Time
	started time.Time
	wall    func() time.Time
}

func (rc runClock) At() time.Time {
	return rc.now.Add(rc.wall().Sub(rc.started)).UTC()
}

// WithIndex makes the coordinator save every new summary in index. Index
// failures are logged only.
func (c *Coordinator) WithIndex(index storage.VideoVecRepository) *Coordinator {
	c.index = index
	return c
}

func (c *Coordinator) LastReport() (model.RunReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return model.RunReport{}, false
	}
	return *c.last, true
}

type candidate struct {
	ref      model.VideoRef
	attempts int
}

// RunOnce returns an error only when the channel registry is unavailable, the
// store fails or ctx is cancelled. Failing channels, videos and delivery are
// reported in the RunReport.
func (c *Coordinator) RunOnce(ctx context.Context, now time.Time) (model.RunReport, error) {
	now = now.UTC()
	report := model.RunReport{
		RunID:     uuid.New(),
		StartedAt: now,
		Delivery:  model.DeliveryNone,
		Videos:    []model.VideoResult{},
	}
	logger := c.logger.With(slog.String("run", report.RunID.String()))
	logger.Info("run started")

	clock := runClock{now: now, started: c.clock(), wall: c.clock}
	report, err := c.runOnce(ctx, clock, report, logger)
	report.FinishedAt = clock.At()
	if err != nil {
		logger.Error("run aborted", slog.String("err", err.Error()))
	} else {
		logger.Info("run finished",
			slog.Int("discovered", report.Discovered),
			slog.Int("succeeded", report.Succeeded),
			slog.Int("failed", report.Failed),
			slog.String("delivery", string(report.Delivery)),
		)
	}

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()

	return report, err
}

func (c *Coordinator) runOnce(ctx context.Context, clock runClock, report model.RunReport, logger *slog.Logger) (model.RunReport, error) {
	now := clock.now
	listCtx, cancel := context.WithTimeout(ctx, c.opts.ListTimeout)
	channels, err := c.registry.ListChannels(listCtx)
	cancel()
	if err != nil {
		var csErr *model.ChannelSourceError
		if !errors.As(err, &csErr) {
			err = &model.ChannelSourceError{Err: err}
		}
		return report, err
	}
	report.Channels = len(channels)
	if lister, ok := c.registry.(fetch.UnresolvedLister); ok {
		for _, name := range lister.Unresolved() {
			report.ChannelsNotFound = append(report.ChannelsNotFound, name)
			report.Warnings = append(report.Warnings, fmt.Sprintf("channel %q not found", name))
		}
	}

	cutoff := now.Add(-c.opts.StaleAfter)
	recovered, err := c.store.ResetStale(ctx, cutoff, now)
	if err != nil {
		return report, fmt.Errorf("could not reset stale records: %w", err)
	}
	report.Recovered = recovered
	staleDigests, err := c.store.ResetStaleDigests(ctx, cutoff, now)
	if err != nil {
		return report, fmt.Errorf("could not reset stale digests: %w", err)
	}
	if recovered > 0 || staleDigests > 0 {
		logger.Warn("recovered interrupted work", slog.Int("records", recovered), slog.Int("digests", staleDigests))
	}

	videos, marks, err := c.discover(ctx, channels, now, &report, logger)
	if err != nil {
		return report, err
	}
	report.Discovered = len(videos)

	eligible, err := c.partition(ctx, videos, now, &report, logger)
	if err != nil {
		return report, err
	}

	succeeded, err := c.dispatch(ctx, eligible, clock, &report, logger)
	if err != nil {
		return report, err
	}

	for _, channelID := range sortedChannels(marks) {
		if err := c.store.AdvanceHighWaterMark(ctx, channelID, marks[channelID], clock.At()); err != nil {
			return report, fmt.Errorf("could not advance high water mark: %w", err)
		}
	}

	if err := c.deliver(ctx, succeeded, cutoff, clock, &report, logger); err != nil {
		return report, err
	}

	return report, nil
}

// discover lists the recent videos of every channel. A channel that cannot be
// listed is skipped with a warning. The returned marks hold the newest publish
// time per successfully listed channel.
func (c *Coordinator) discover(ctx context.Context, channels []model.ChannelRef, now time.Time, report *model.RunReport, logger *slog.Logger) ([]model.VideoRef, map[model.YoutubeChannelID]time.Time, error) {
	all := []model.VideoRef{}
	marks := map[model.YoutubeChannelID]time.Time{}
	for _, channel := range channels {
		since := now.Add(-c.opts.Lookback)
		mark, ok, err := c.store.HighWaterMark(ctx, channel.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("could not read high water mark: %w", err)
		}
		if ok && mark.After(since) {
			since = mark
		}

		listCtx, cancel := context.WithTimeout(ctx, c.opts.ListTimeout)
		refs, err := c.source.ListRecentVideos(listCtx, channel.ID, since)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("could not list channel", slog.String("channel", string(channel.ID)), slog.String("err", err.Error()))
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}

		for _, ref := range refs {
			if ref.ChannelID == "" {
				ref.ChannelID = channel.ID
			}
			if err := ref.Validate(); err != nil {
				logger.Warn("rejected video", slog.String("channel", string(channel.ID)), slog.String("err", err.Error()))
				report.Add(model.VideoResult{VideoID: ref.ID, ChannelID: channel.ID, Outcome: model.OutcomeRejected, Reason: err.Error()})
				continue
			}
			if ref.PublishedAt.After(marks[channel.ID]) {
				marks[channel.ID] = ref.PublishedAt
			}
			all = append(all, ref)
		}
	}

	unique, dupes := model.Dedupe(all)
	for _, dupe := range dupes {
		logger.Warn("duplicate video", slog.String("video", string(dupe.ID)), slog.String("channel", string(dupe.ChannelID)))
	}

	return unique, marks, nil
}

// partition compares the discovered videos with the store. New videos get a
// pending record. Retryable records from earlier runs that were not
// rediscovered are added as well.
func (c *Coordinator) partition(ctx context.Context, videos []model.VideoRef, now time.Time, report *model.RunReport, logger *slog.Logger) ([]candidate, error) {
	eligible := []candidate{}
	seen := make(map[model.YoutubeVideoID]bool, len(videos))
	for _, ref := range videos {
		seen[ref.ID] = true
		rec, err := c.store.Get(ctx, ref.ID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			if _, err := c.store.CreatePending(ctx, ref, now); err != nil {
				var dkErr *model.DuplicateKeyError
				if !errors.As(err, &dkErr) {
					return nil, fmt.Errorf("could not create record: %w", err)
				}
				logger.Debug("record created concurrently", slog.String("video", string(ref.ID)))
			}
			eligible = append(eligible, candidate{ref: ref})
			continue
		case err != nil:
			return nil, fmt.Errorf("could not get record: %w", err)
		}

		result := model.VideoResult{VideoID: ref.ID, ChannelID: ref.ChannelID, Attempts: rec.AttemptCount}
		switch {
		case rec.Status == model.StatusSucceeded:
			result.Outcome = model.OutcomeSkippedSeen
		case rec.Exhausted(c.opts.MaxAttempts):
			result.Outcome = model.OutcomeExhausted
			result.Reason = rec.LastError
		case rec.Status == model.StatusProcessing:
			result.Outcome = model.OutcomeSkippedClaimed
		default:
			eligible = append(eligible, candidate{ref: ref, attempts: rec.AttemptCount})
			continue
		}
		report.Add(result)
	}

	retryable, err := c.store.FindRetryable(ctx, c.opts.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("could not find retryable records: %w", err)
	}
	for _, rec := range retryable {
		if seen[rec.VideoID] {
			continue
		}
		seen[rec.VideoID] = true
		eligible = append(eligible, candidate{ref: rec.Ref(), attempts: rec.AttemptCount})
	}

	return eligible, nil
}

// dispatch processes the eligible videos on the worker pool. A video is only
// processed after this run won its claim in the store.
func (c *Coordinator) dispatch(ctx context.Context, eligible []candidate, clock runClock, report *model.RunReport, logger *slog.Logger) ([]model.YoutubeVideoID, error) {
	var (
		mu        sync.Mutex
		succeeded []model.YoutubeVideoID
		storeErr  error
	)
	record := func(res model.VideoResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if storeErr == nil {
				storeErr = err
			}
			return
		}
		report.Add(res)
		if res.Outcome == model.OutcomeSucceeded {
			succeeded = append(succeeded, res.VideoID)
		}
	}

	p := newPool(c.opts.Workers)
	for _, cand := range eligible {
		cand := cand
		p.Submit(func() {
			record(c.processOne(ctx, cand, clock, logger))
		})
	}
	p.Stop()

	if storeErr != nil {
		return nil, storeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return succeeded, nil
}

func (c *Coordinator) processOne(ctx context.Context, cand candidate, clock runClock, logger *slog.Logger) (model.VideoResult, error) {
	ref := cand.ref
	res := model.VideoResult{VideoID: ref.ID, ChannelID: ref.ChannelID, Attempts: cand.attempts}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	claimed, err := c.store.MarkProcessing(ctx, ref.ID, c.opts.MaxAttempts, clock.At())
	if err != nil {
		return res, fmt.Errorf("could not claim video %s: %w", ref.ID, err)
	}
	if !claimed {
		logger.Info("video claimed elsewhere", slog.String("video", string(ref.ID)))
		res.Outcome = model.OutcomeSkippedClaimed
		return res, nil
	}

	procCtx, cancel := context.WithTimeout(ctx, c.opts.ProcessTimeout)
	outcome, perr := c.worker.Process(procCtx, ref)
	cancel()
	if ctx.Err() != nil {
		// record stays in processing, the recovery sweep of a later run picks it up
		return res, ctx.Err()
	}

	res.Attempts = cand.attempts + 1
	if perr != nil {
		reason := model.Reason(perr)
		if err := c.store.MarkFailed(ctx, ref.ID, reason, clock.At()); err != nil {
			if lost, ok := claimLost(res, err, logger); ok {
				return lost, nil
			}
			return res, fmt.Errorf("could not mark video %s failed: %w", ref.ID, err)
		}
		logger.Warn("video failed", slog.String("video", string(ref.ID)), slog.Int("attempts", res.Attempts), slog.String("err", reason))
		res.Outcome = model.OutcomeFailed
		res.Reason = reason
		return res, nil
	}

	if err := c.store.MarkSucceeded(ctx, ref.ID, outcome.Summary, clock.At()); err != nil {
		if lost, ok := claimLost(res, err, logger); ok {
			return lost, nil
		}
		return res, fmt.Errorf("could not mark video %s succeeded: %w", ref.ID, err)
	}
	res.Outcome = model.OutcomeSucceeded

	if c.index != nil {
		rec := model.ProcessingRecord{
			VideoID:       ref.ID,
			ChannelID:     ref.ChannelID,
			Title:         ref.Title,
			PublishedAt:   ref.PublishedAt,
			Status:        model.StatusSucceeded,
			AttemptCount:  res.Attempts,
			ResultSummary: outcome.Summary,
		}
		indexCtx, cancel := context.WithTimeout(ctx, c.opts.IndexTimeout)
		err := c.index.Save(indexCtx, rec)
		cancel()
		if err != nil {
			logger.Warn("could not index summary", slog.String("video", string(ref.ID)), slog.String("err", err.Error()))
		}
	}

	return res, nil
}

// deliver claims every undelivered success into one digest and hands it to
// the dispatcher. A failed delivery leaves the digest pending for the next
// run, processing results are kept.
func (c *Coordinator) deliver(ctx context.Context, succeeded []model.YoutubeVideoID, orphanCutoff time.Time, clock runClock, report *model.RunReport, logger *slog.Logger) error {
	digest, err := c.store.ClaimDigest(ctx, storage.DigestClaim{
		ID:           uuid.New(),
		VideoIDs:     succeeded,
		OrphanCutoff: orphanCutoff,
		Now:          clock.At(),
	})
	if err != nil {
		return fmt.Errorf("could not claim digest: %w", err)
	}
	if digest.Empty() {
		logger.Info("nothing to deliver")
		return nil
	}

	id := digest.ID
	report.DigestID = &id
	report.DigestItems = len(digest.Items)

	deliverCtx, cancel := context.WithTimeout(ctx, c.opts.DeliveryTimeout)
	derr := c.dispatcher.Deliver(deliverCtx, digest)
	cancel()
	if derr != nil {
		var dErr *model.DeliveryError
		if !errors.As(derr, &dErr) {
			derr = &model.DeliveryError{Err: derr}
		}
		logger.Error("delivery failed", slog.String("digest", id.String()), slog.String("err", derr.Error()))
		report.Delivery = model.DeliveryFailed
		report.DeliveryError = derr.Error()
		if err := c.store.MarkDigestFailed(ctx, id, derr.Error(), clock.At()); err != nil {
			return fmt.Errorf("could not mark digest failed: %w", err)
		}
		return nil
	}

	if err := c.store.MarkDigestDelivered(ctx, id, clock.At()); err != nil {
		return fmt.Errorf("could not mark digest delivered: %w", err)
	}
	report.Delivery = model.DeliveryDelivered
	logger.Info("digest delivered", slog.String("digest", id.String()), slog.Int("items", len(digest.Items)))

	return nil
}

// claimLost recognizes a record that left processing while this run was
// working on it, because another run recovered and took it over. The video is
// then reported as claimed elsewhere and the run goes on.
func claimLost(res model.VideoResult, err error, logger *slog.Logger) (model.VideoResult, bool) {
	var itErr *model.InvalidTransitionError
	if !errors.As(err, &itErr) {
		return res, false
	}
	logger.Warn("lost claim on video", slog.String("video", string(res.VideoID)), slog.String("err", err.Error()))
	res.Outcome = model.OutcomeSkippedClaimed
	res.Reason = err.Error()

	return res, true
}

func sortedChannels(marks map[model.YoutubeChannelID]time.Time) []model.YoutubeChannelID {
	ids := make([]model.YoutubeChannelID, 0, len(marks))
	for id := range marks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
