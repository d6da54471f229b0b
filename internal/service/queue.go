package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
	"trendharvest/internal/metrics"
)

// Queue holds pending download jobs in priority order and dispatches them
// to the executor under the live Settings concurrency bound.
//
// All queue state belongs to a single owner goroutine; enqueues, completion
// signals and stats queries reach it through channels, so the pop/push/sort
// critical section needs no locks. Workers are plain goroutines spawned up
// to the bound, which is re-read from Settings on every dispatch tick — a
// lowered limit takes effect for new dispatches immediately, while already
// running jobs finish undisturbed.
type Queue struct {
	settings ports.SettingsStore
	videos   ports.VideoStore
	joblog   ports.JobLog
	exec     ports.Executor
	logger   *slog.Logger
	dataDir  string

	stopOnce     sync.Once
	enqueueCh    chan enqueueReq
	completionCh chan completion
	statsCh      chan chan QueueStats
	startCh      chan struct{}
	quitCh       chan struct{}
	doneCh       chan struct{}

	// Owned by the run loop.
	pending   []queuedJob
	inflight  map[uint]*domain.DownloadJob
	running   int
	started   bool
	stopping  bool
	seq       uint64
	lastLimit int
}

type queuedJob struct {
	job *domain.DownloadJob
	seq uint64 // FIFO tie-break among equal priority and timestamp
}

type enqueueReq struct {
	videoID  uint
	priority int
	reply    chan string
}

type completion struct {
	job      *domain.DownloadJob
	retry    bool
	priority int
}

// QueueStats is a point-in-time snapshot for the ops API.
type QueueStats struct {
	Queued  int  `json:"queued"`
	Running int  `json:"running"`
	Started bool `json:"started"`
}

// NewQueue creates the queue and starts its owner goroutine. Jobs may be
// enqueued immediately, but none are dispatched until Start.
func NewQueue(settings ports.SettingsStore, videos ports.VideoStore, joblog ports.JobLog, exec ports.Executor, dataDir string, logger *slog.Logger) *Queue {
	q := &Queue{
		settings:     settings,
		videos:       videos,
		joblog:       joblog,
		exec:         exec,
		logger:       logger,
		dataDir:      dataDir,
		enqueueCh:    make(chan enqueueReq),
		completionCh: make(chan completion),
		statsCh:      make(chan chan QueueStats),
		startCh:      make(chan struct{}),
		quitCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		inflight:     make(map[uint]*domain.DownloadJob),
		lastLimit:    3,
	}
	go q.run()
	return q
}

// Enqueue admits a job for the given video. If the video already has a
// live job (pending or in flight), the existing job id is returned and its
// priority is left unchanged. Returns "" after Stop.
func (q *Queue) Enqueue(videoID uint, priority int) string {
	req := enqueueReq{videoID: videoID, priority: priority, reply: make(chan string, 1)}
	select {
	case q.enqueueCh <- req:
		return <-req.reply
	case <-q.doneCh:
		return ""
	}
}

// Start begins dispatching. Enqueues made before Start are buffered and
// dispatched now.
func (q *Queue) Start() {
	select {
	case q.startCh <- struct{}{}:
	case <-q.doneCh:
	}
}

// Stop drains: no new jobs are dispatched, in-flight jobs run to
// completion, then the owner goroutine exits. Blocks until drained or ctx
// is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.quitCh) })
	select {
	case <-q.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of queue occupancy.
func (q *Queue) Stats() QueueStats {
	reply := make(chan QueueStats, 1)
	select {
	case q.statsCh <- reply:
		return <-reply
	case <-q.doneCh:
		return QueueStats{}
	}
}

// Reconcile re-enqueues persisted pending videos. Called once at startup:
// the in-memory queue does not survive restarts, but VideoRecords do.
func (q *Queue) Reconcile(ctx context.Context) (int, error) {
	s, err := q.settings.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load settings: %w", err)
	}
	pending, err := q.videos.ListPending(ctx, 1000)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending videos: %w", err)
	}
	for _, v := range pending {
		q.Enqueue(v.ID, s.PriorityForViews(v.Views))
	}
	return len(pending), nil
}

func (q *Queue) run() {
	defer close(q.doneCh)
	for {
		select {
		case req := <-q.enqueueCh:
			req.reply <- q.admit(req.videoID, req.priority)
			q.dispatch()
		case c := <-q.completionCh:
			q.complete(c)
			q.dispatch()
		case reply := <-q.statsCh:
			reply <- QueueStats{Queued: len(q.pending), Running: q.running, Started: q.started}
		case <-q.startCh:
			q.started = true
			q.dispatch()
		case <-q.quitCh:
			q.stopping = true
			if q.running == 0 {
				return
			}
			// Keep consuming completions until the last worker reports in.
			for q.running > 0 {
				q.complete(<-q.completionCh)
			}
			return
		}
	}
}

// admit inserts a job unless the video already has a live one.
func (q *Queue) admit(videoID uint, priority int) string {
	if job, ok := q.inflight[videoID]; ok {
		return job.ID
	}
	for _, e := range q.pending {
		if e.job.VideoID == videoID {
			return e.job.ID
		}
	}

	job := &domain.DownloadJob{
		ID:         uuid.New().String(),
		VideoID:    videoID,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
	q.insert(job)
	return job.ID
}

// insert places the job by (priority asc, enqueued-at asc, arrival order).
func (q *Queue) insert(job *domain.DownloadJob) {
	q.seq++
	e := queuedJob{job: job, seq: q.seq}
	pos := len(q.pending)
	for i, other := range q.pending {
		if less(e, other) {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, queuedJob{})
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = e
	metrics.QueueDepth.Set(float64(len(q.pending)))
}

func less(a, b queuedJob) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority < b.job.Priority
	}
	if !a.job.EnqueuedAt.Equal(b.job.EnqueuedAt) {
		return a.job.EnqueuedAt.Before(b.job.EnqueuedAt)
	}
	return a.seq < b.seq
}

// dispatch is one tick: pop head jobs while there is capacity and work.
func (q *Queue) dispatch() {
	if !q.started || q.stopping {
		return
	}

	limit, proxy := q.dispatchSettings()
	for q.running < limit && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.inflight[e.job.VideoID] = e.job
		q.running++
		go q.process(e.job, proxy)
	}
	metrics.QueueDepth.Set(float64(len(q.pending)))
	metrics.InFlight.Set(float64(q.running))
}

// dispatchSettings reads the live concurrency bound and proxy. A settings
// read failure falls back to the last known limit so the queue keeps
// moving.
func (q *Queue) dispatchSettings() (int, string) {
	s, err := q.settings.Get(context.Background())
	if err != nil {
		q.logger.Warn("settings read failed on dispatch tick", slog.String("error", err.Error()))
		return q.lastLimit, ""
	}
	limit := s.MaxConcurrentDownload
	if limit < 1 {
		limit = 1
	}
	q.lastLimit = limit
	return limit, s.Proxy()
}

func (q *Queue) complete(c completion) {
	delete(q.inflight, c.job.VideoID)
	q.running--
	metrics.InFlight.Set(float64(q.running))
	if c.retry && !q.stopping {
		// Back of the queue: same priority, fresh position among peers.
		c.job.EnqueuedAt = time.Now().UTC()
		q.insert(c.job)
	}
}

// process runs one download attempt in a worker goroutine and reports the
// outcome back to the owner loop. It never lets an error escape: every
// failure path ends in a recorded state transition.
func (q *Queue) process(job *domain.DownloadJob, proxy string) {
	retry := q.runAttempt(context.Background(), job, proxy)
	q.completionCh <- completion{job: job, retry: retry}
}

func (q *Queue) runAttempt(ctx context.Context, job *domain.DownloadJob, proxy string) (retry bool) {
	started := time.Now()

	rec, err := q.videos.Get(ctx, job.VideoID)
	if err != nil {
		q.logger.Warn("dropping job for missing video",
			slog.String("job", job.ID), slog.Uint64("video", uint64(job.VideoID)),
			slog.String("error", err.Error()))
		return false
	}
	if rec.DownloadStatus == domain.StatusDone {
		// Re-download raced with a fresh discovery; nothing to do.
		return false
	}

	if err := q.videos.MarkDownloading(ctx, rec.ID); err != nil {
		q.logger.Warn("failed to mark video downloading", slog.Uint64("video", uint64(rec.ID)), slog.String("error", err.Error()))
	}

	outputPath := DownloadPath(q.dataDir, rec)
	runErr := q.exec.Run(ctx, ports.DownloadRequest{URL: rec.URL, OutputPath: outputPath, Proxy: proxy})

	duration := time.Since(started)
	metrics.DownloadDuration.Observe(duration.Seconds())

	if runErr == nil {
		now := time.Now().UTC()
		if err := q.videos.MarkDone(ctx, rec.ID, outputPath, now); err != nil {
			q.logger.Error("failed to mark video done", slog.Uint64("video", uint64(rec.ID)), slog.String("error", err.Error()))
		}
		q.joblog.Record(ctx, domain.JobLogEntry{
			JobType:         domain.JobTypeDownload,
			Status:          domain.OutcomeSuccess,
			Platform:        rec.Platform,
			Topic:           rec.Topic,
			ItemsDownloaded: 1,
			DurationMS:      duration.Milliseconds(),
		})
		metrics.DownloadsTotal.WithLabelValues(string(domain.OutcomeSuccess)).Inc()
		q.logger.Info("download done",
			slog.String("video", rec.VideoKey), slog.String("path", outputPath),
			slog.Duration("took", duration))
		return false
	}

	job.Attempts++
	reason := runErr.Error()

	if job.Attempts < domain.MaxDownloadAttempts {
		if err := q.videos.MarkPending(ctx, rec.ID, reason); err != nil {
			q.logger.Error("failed to mark video pending", slog.Uint64("video", uint64(rec.ID)), slog.String("error", err.Error()))
		}
		q.joblog.Record(ctx, domain.JobLogEntry{
			JobType:    domain.JobTypeDownload,
			Status:     domain.OutcomePartial,
			Platform:   rec.Platform,
			Topic:      rec.Topic,
			DurationMS: duration.Milliseconds(),
			Error:      reason,
		})
		metrics.DownloadsTotal.WithLabelValues(string(domain.OutcomePartial)).Inc()
		q.logger.Warn("download failed, will retry",
			slog.String("video", rec.VideoKey), slog.Int("attempt", job.Attempts),
			slog.String("error", reason))
		return true
	}

	if err := q.videos.MarkFailed(ctx, rec.ID, reason); err != nil {
		q.logger.Error("failed to mark video failed", slog.Uint64("video", uint64(rec.ID)), slog.String("error", err.Error()))
	}
	q.joblog.Record(ctx, domain.JobLogEntry{
		JobType:    domain.JobTypeDownload,
		Status:     domain.OutcomeFailed,
		Platform:   rec.Platform,
		Topic:      rec.Topic,
		DurationMS: duration.Milliseconds(),
		Error:      reason,
	})
	metrics.DownloadsTotal.WithLabelValues(string(domain.OutcomeFailed)).Inc()
	q.logger.Error("download failed permanently",
		slog.String("video", rec.VideoKey), slog.Int("attempts", job.Attempts),
		slog.String("error", reason))
	return false
}

// DownloadPath is the deterministic output location:
// <dataDir>/<platform>/<topic>/<date>/<videoKey>.mp4
func DownloadPath(dataDir string, rec *domain.VideoRecord) string {
	topic := rec.Topic
	if topic == "" {
		topic = domain.DefaultTopic
	}
	day := time.Now().UTC().Format("2006-01-02")
	return filepath.Join(dataDir, string(rec.Platform), topic, day, rec.VideoKey+".mp4")
}
