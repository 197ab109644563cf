// Package port exposes the time engine over HTTP/JSON.
package port

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/errmap"
	"github.com/aelexs/time-engine/internal/observability"
	"github.com/aelexs/time-engine/internal/timeengine/app"
	"github.com/aelexs/time-engine/internal/tzconv"
	"github.com/aelexs/time-engine/pkg/protocol"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// identityVerifier is a narrow, consumer-defined interface for bearer token
// validation. The *auth.Validator satisfies it.
type identityVerifier interface {
	Identity(token string) (domain.UserID, error)
}

// engineSource hands out per-user engines. The *app.Registry satisfies it.
type engineSource interface {
	Get(ctx context.Context, userID domain.UserID) (*app.Engine, error)
}

// HandlerConfig holds the dependencies for creating a Handler.
type HandlerConfig struct {
	Engines   engineSource
	Identity  identityVerifier
	Converter *tzconv.Converter
	Logger    *slog.Logger
}

// Handler serves the /v1 API. Every route requires a bearer token whose
// subject selects the user's engine.
type Handler struct {
	engines   engineSource
	identity  identityVerifier
	converter *tzconv.Converter
	logger    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		engines:   cfg.Engines,
		identity:  cfg.Identity,
		converter: cfg.Converter,
		logger:    cfg.Logger,
	}
}

// engineFunc handles an authenticated request for the caller's engine.
type engineFunc func(w http.ResponseWriter, r *http.Request, eng *app.Engine) error

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		fn      engineFunc
	}{
		{"GET /v1/timezone", h.getTimezone},
		{"PUT /v1/timezone", h.putTimezone},
		{"GET /v1/stopwatch", h.listStopwatch},
		{"POST /v1/stopwatch", h.createStopwatch},
		{"DELETE /v1/stopwatch/{id}", h.deleteStopwatch},
		{"GET /v1/bedtime", h.listBedtime},
		{"POST /v1/bedtime", h.createBedtime},
		{"GET /v1/bedtime/stats", h.bedtimeStats},
		{"DELETE /v1/bedtime/{id}", h.deleteBedtime},
		{"GET /v1/alarms", h.listAlarms},
		{"POST /v1/alarms", h.createAlarm},
		{"PATCH /v1/alarms/{id}", h.updateAlarm},
		{"DELETE /v1/alarms/{id}", h.deleteAlarm},
		{"GET /v1/snapshot", h.getSnapshot},
		{"POST /v1/convert", h.convert},
	}
	for _, rt := range routes {
		route := rt.pattern[strings.IndexByte(rt.pattern, ' ')+1:]
		mux.Handle(rt.pattern, observability.HTTPMiddleware(route, h.logger, h.authed(rt.fn)))
	}
}

// authed resolves the caller's engine from the bearer token.
func (h *Handler) authed(fn engineFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			h.writeError(w, r, fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized))
			return
		}
		userID, err := h.identity.Identity(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		eng, err := h.engines.Get(r.Context(), userID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := fn(w, r, eng); err != nil {
			h.writeError(w, r, err)
		}
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// ---------------------------------------------------------------------------
// Timezone
// ---------------------------------------------------------------------------

func (h *Handler) getTimezone(w http.ResponseWriter, _ *http.Request, eng *app.Engine) error {
	return writeJSON(w, http.StatusOK, protocol.Timezone{Timezone: eng.Timezone()})
}

func (h *Handler) putTimezone(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.Timezone
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := eng.SetTimezone(r.Context(), req.Timezone); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, protocol.Timezone{Timezone: eng.Timezone()})
}

// ---------------------------------------------------------------------------
// Stopwatch
// ---------------------------------------------------------------------------

func (h *Handler) listStopwatch(w http.ResponseWriter, _ *http.Request, eng *app.Engine) error {
	return writeJSON(w, http.StatusOK, mapSlice(eng.Stopwatch(), toStopwatchDTO))
}

func (h *Handler) createStopwatch(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.CreateStopwatchRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	start, err := parseLocalField("start_local", req.StartLocal)
	if err != nil {
		return err
	}
	end, err := parseLocalField("end_local", req.EndLocal)
	if err != nil {
		return err
	}

	entry, err := eng.AddStopwatchEntry(r.Context(), app.StopwatchInput{
		Heading:    req.Heading,
		Purpose:    req.Purpose,
		StartLocal: start,
		EndLocal:   end,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, toStopwatchDTO(entry))
}

func (h *Handler) deleteStopwatch(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	if err := eng.DeleteStopwatchEntry(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ---------------------------------------------------------------------------
// Bedtime
// ---------------------------------------------------------------------------

func (h *Handler) listBedtime(w http.ResponseWriter, _ *http.Request, eng *app.Engine) error {
	return writeJSON(w, http.StatusOK, mapSlice(eng.Bedtime(), toBedtimeDTO))
}

func (h *Handler) createBedtime(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.CreateBedtimeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	sleep, err := parseLocalField("sleep_local", req.SleepLocal)
	if err != nil {
		return err
	}
	wake, err := parseLocalField("wake_local", req.WakeLocal)
	if err != nil {
		return err
	}

	entry, err := eng.AddBedtimeEntry(r.Context(), app.BedtimeInput{
		SleepLocal: sleep,
		WakeLocal:  domain.RollWakeForward(sleep, wake),
		Notes:      req.Notes,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, toBedtimeDTO(entry))
}

func (h *Handler) bedtimeStats(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("days %q: %w", raw, domain.ErrInvalidInput)
		}
		days = n
	}
	return writeJSON(w, http.StatusOK, protocol.BedtimeStatsResponse{
		Days: mapSlice(eng.BedtimeStats(days), toDayStatsDTO),
	})
}

func (h *Handler) deleteBedtime(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	if err := eng.DeleteBedtimeEntry(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ---------------------------------------------------------------------------
// Alarms
// ---------------------------------------------------------------------------

func (h *Handler) listAlarms(w http.ResponseWriter, _ *http.Request, eng *app.Engine) error {
	return writeJSON(w, http.StatusOK, mapSlice(eng.Alarms(), toAlarmDTO))
}

func (h *Handler) createAlarm(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.CreateAlarmRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	trigger, err := parseLocalField("trigger_local", req.TriggerLocal)
	if err != nil {
		return err
	}
	source, err := domain.ParseAlarmSource(req.SourceType)
	if err != nil {
		return fmt.Errorf("source_type %q: %w", req.SourceType, err)
	}

	alarm, err := eng.AddAlarm(r.Context(), app.AlarmInput{
		Title:         req.Title,
		Source:        source,
		SourceID:      req.SourceID,
		TriggerLocal:  trigger,
		RepeatPattern: fromRepeatPatternDTO(req.RepeatPattern),
		SnoozeMinutes: req.SnoozeDurationMinutes,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, toAlarmDTO(alarm))
}

func (h *Handler) updateAlarm(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.UpdateAlarmRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	id := r.PathValue("id")

	var trigger *time.Time
	if req.TriggerLocal != "" {
		t, err := parseLocalField("trigger_local", req.TriggerLocal)
		if err != nil {
			return err
		}
		trigger = &t
	}

	if err := eng.UpdateAlarmStatus(r.Context(), id, domain.AlarmStatus(req.Status), trigger); err != nil {
		return err
	}
	alarm, ok := eng.Alarm(id)
	if !ok {
		// Updated remotely but not cached locally.
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	return writeJSON(w, http.StatusOK, toAlarmDTO(alarm))
}

func (h *Handler) deleteAlarm(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	if err := eng.DeleteAlarm(r.Context(), r.PathValue("id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// ---------------------------------------------------------------------------
// Snapshot and conversion
// ---------------------------------------------------------------------------

func (h *Handler) getSnapshot(w http.ResponseWriter, _ *http.Request, eng *app.Engine) error {
	return writeJSON(w, http.StatusOK, toSnapshotDTO(eng.Snapshot()))
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request, eng *app.Engine) error {
	var req protocol.ConvertRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	tz := req.Timezone
	if tz == "" {
		tz = eng.Timezone()
	}

	switch req.Direction {
	case protocol.DirectionToUTC:
		local, err := parseLocalField("local", req.Local)
		if err != nil {
			return err
		}
		res := h.converter.ToUTC(local, tz)
		return writeJSON(w, http.StatusOK, protocol.ConvertResponse{
			Timezone: tz,
			UTC:      domain.FormatInstant(res.Time),
			Degraded: res.Degraded,
		})

	case protocol.DirectionFromUTC:
		instant, err := domain.ParseInstant(req.Instant)
		if err != nil {
			return fmt.Errorf("instant: %w", err)
		}
		res := h.converter.FromUTC(instant, tz)
		resp := protocol.ConvertResponse{
			Timezone: tz,
			Local:    res.Time.Format(localLayout),
			Degraded: res.Degraded,
		}
		if req.Pattern != "" {
			f := h.converter.Format(instant, req.Pattern, tz)
			resp.Formatted = f.Text
			resp.Degraded = resp.Degraded || f.Degraded
		}
		return writeJSON(w, http.StatusOK, resp)

	default:
		return fmt.Errorf("direction %q: %w", req.Direction, domain.ErrInvalidInput)
	}
}

// ---------------------------------------------------------------------------
// Encoding helpers
// ---------------------------------------------------------------------------

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func parseLocalField(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required: %w", field, domain.ErrInvalidInput)
	}
	t, err := tzconv.ParseLocal(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	herr := errmap.ToHTTPError(err)
	if herr.StatusCode >= http.StatusInternalServerError {
		observability.WithTraceID(r.Context(), h.logger).ErrorContext(r.Context(), "request error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
			slog.Bool("retryable", domain.IsRetryable(err)),
		)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		herr.StatusCode = http.StatusRequestEntityTooLarge
	}
	_ = writeJSON(w, herr.StatusCode, protocol.Error{Code: herr.Code, Message: herr.Message})
}
