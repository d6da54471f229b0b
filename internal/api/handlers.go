package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"trendharvest/internal/core/domain"
	"trendharvest/internal/core/ports"
	"trendharvest/internal/service"
)

// Handler serves the trend automation ops API.
type Handler struct {
	settings  ports.SettingsStore
	channels  ports.ChannelStore
	videos    ports.VideoStore
	joblog    ports.JobLog
	queue     *service.Queue
	scheduler *service.Scheduler
	discover  *service.DiscoverService
	scan      *service.ChannelScanService
	logger    *slog.Logger
}

// NewHandler wires the handler to the engine.
func NewHandler(settings ports.SettingsStore, channels ports.ChannelStore, videos ports.VideoStore, joblog ports.JobLog, queue *service.Queue, scheduler *service.Scheduler, discover *service.DiscoverService, scan *service.ChannelScanService, logger *slog.Logger) *Handler {
	return &Handler{
		settings:  settings,
		channels:  channels,
		videos:    videos,
		joblog:    joblog,
		queue:     queue,
		scheduler: scheduler,
		discover:  discover,
		scan:      scan,
		logger:    logger,
	}
}

// Routes mounts all API routes on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/trend", func(r chi.Router) {
		r.Get("/stats/overview", h.statsOverview)
		r.Get("/channels", h.listChannels)
		r.Post("/channels/{id}/manual-scan", h.manualScan)
		r.Get("/videos", h.listVideos)
		r.Post("/videos/{id}/re-download", h.redownload)
		r.Get("/logs", h.listLogs)
		r.Get("/settings", h.getSettings)
		r.Post("/settings", h.updateSettings)
		r.Post("/jobs/trigger", h.triggerJob)
	})
}

func (h *Handler) statsOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.videos.StatusCounts(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	_, channelTotal, err := h.channels.Search(ctx, ports.ChannelQuery{Limit: 1})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := h.videos.Recent(ctx, 10)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var videoTotal int64
	for _, n := range counts {
		videoTotal += n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channelTotal,
		"videos":   videoTotal,
		"pending":  counts[domain.StatusPending],
		"failed":   counts[domain.StatusFailed],
		"done":     counts[domain.StatusDone],
		"queue":    h.queue.Stats(),
		"recent":   recent,
	})
}

func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	q := ports.ChannelQuery{
		Search: r.URL.Query().Get("search"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 20),
	}

	items, total, err := h.channels.Search(r.Context(), q)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(items, total, q.Page, q.Limit))
}

func (h *Handler) manualScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ch, err := h.channels.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	found, err := h.scan.ScanOne(r.Context(), ch)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "itemsFound": found})
}

func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	q := ports.VideoQuery{
		Platform: domain.Platform(r.URL.Query().Get("platform")),
		Topic:    r.URL.Query().Get("topic"),
		Status:   domain.DownloadStatus(r.URL.Query().Get("status")),
		MinViews: int64(queryInt(r, "minViews", 0)),
		From:     queryTime(r, "from"),
		To:       queryTime(r, "to"),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 20),
	}

	items, total, err := h.videos.Search(r.Context(), q)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(items, total, q.Page, q.Limit))
}

// redownload resets a video to pending and puts it back on the queue. This
// is the only path that moves a terminal failed video back to pending.
func (h *Handler) redownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	video, err := h.videos.Get(ctx, id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	settings, err := h.settings.Get(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := h.videos.MarkPending(ctx, video.ID, ""); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	jobID := h.queue.Enqueue(video.ID, settings.PriorityForViews(video.Views))

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobId": jobID})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	q := ports.LogQuery{
		JobType: domain.JobType(r.URL.Query().Get("jobType")),
		Status:  domain.JobOutcome(r.URL.Query().Get("status")),
		Limit:   queryInt(r, "limit", 200),
	}

	items, err := h.joblog.Recent(r.Context(), q)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// settingsPatch is the partial-update payload: absent fields keep their
// stored values.
type settingsPatch struct {
	MaxConcurrentDownload *int                  `json:"maxConcurrentDownload"`
	MinViewsFilter        *int64                `json:"minViewsFilter"`
	MinChannelFollowers   *int64                `json:"minChannelFollowers"`
	MinChannelTotalVideos *int                  `json:"minChannelTotalVideos"`
	HighPriorityViews     *int64                `json:"highPriorityViews"`
	DiscoverCron          *string               `json:"discoverCron"`
	ScanCron              *string               `json:"scanCron"`
	Keywords              *domain.TopicKeywords `json:"keywords"`
	ProxyList             *[]string             `json:"proxyList"`
	IsEnabled             *bool                 `json:"isEnabled"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	current, err := h.settings.Get(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	applyPatch(current, &patch)
	if err := validateSettings(current); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.settings.Update(ctx, current)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Pick up cron changes without a restart.
	if err := h.scheduler.Reload(ctx); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("type") {
	case "discover":
		result, err := h.discover.Run(r.Context())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "scan":
		result, err := h.scan.Run(r.Context())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid type, use discover or scan"})
	}
}

func applyPatch(s *domain.Settings, p *settingsPatch) {
	if p.MaxConcurrentDownload != nil {
		s.MaxConcurrentDownload = *p.MaxConcurrentDownload
	}
	if p.MinViewsFilter != nil {
		s.MinViewsFilter = *p.MinViewsFilter
	}
	if p.MinChannelFollowers != nil {
		s.MinChannelFollowers = *p.MinChannelFollowers
	}
	if p.MinChannelTotalVideos != nil {
		s.MinChannelTotalVideos = *p.MinChannelTotalVideos
	}
	if p.HighPriorityViews != nil {
		s.HighPriorityViews = *p.HighPriorityViews
	}
	if p.DiscoverCron != nil {
		s.DiscoverCron = *p.DiscoverCron
	}
	if p.ScanCron != nil {
		s.ScanCron = *p.ScanCron
	}
	if p.Keywords != nil {
		s.Keywords = *p.Keywords
	}
	if p.ProxyList != nil {
		s.ProxyList = *p.ProxyList
	}
	if p.IsEnabled != nil {
		s.IsEnabled = *p.IsEnabled
	}
}

func validateSettings(s *domain.Settings) error {
	if s.MaxConcurrentDownload < 1 || s.MaxConcurrentDownload > 10 {
		return errMaxConcurrent
	}
	if _, err := cron.ParseStandard(s.DiscoverCron); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(s.ScanCron); err != nil {
		return err
	}
	return nil
}

var errMaxConcurrent = &validationError{"maxConcurrentDownload must be between 1 and 10"}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }

func (h *Handler) writeError(w http.ResponseWriter, code int, err error) {
	if code >= 500 {
		h.logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func pageResponse[T any](items []T, total int64, page, limit int) map[string]any {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	pages := (total + int64(limit) - 1) / int64(limit)
	return map[string]any{"items": items, "total": total, "page": page, "pages": pages}
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		return 0, &validationError{"invalid id in path"}
	}
	return uint(id), nil
}

func queryInt(r *http.Request, key string, def int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

func queryTime(r *http.Request, key string) time.Time {
	val := r.URL.Query().Get(key)
	if val == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}
	}
	return t
}
