package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/observability"
	"github.com/aelexs/time-engine/internal/tzconv"
)

// PreferenceService resolves a user's effective timezone: the stored
// preference, else the detected host zone, else UTC.
type PreferenceService struct {
	store     PreferenceStore
	converter *tzconv.Converter
	detect    func() (string, tzconv.DetectionMethod)
	logger    *slog.Logger
}

// PreferenceServiceConfig holds the dependencies for PreferenceService.
type PreferenceServiceConfig struct {
	Store     PreferenceStore
	Converter *tzconv.Converter
	Logger    *slog.Logger

	// Detect overrides host zone detection. Defaults to
	// Converter.DetectSystemTimezone.
	Detect func() (string, tzconv.DetectionMethod)
}

// NewPreferenceService creates a PreferenceService.
func NewPreferenceService(cfg PreferenceServiceConfig) *PreferenceService {
	detect := cfg.Detect
	if detect == nil {
		detect = cfg.Converter.DetectSystemTimezone
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PreferenceService{
		store:     cfg.Store,
		converter: cfg.Converter,
		detect:    detect,
		logger:    cfg.Logger,
	}
}

// Get returns the stored zone for userID. ok is false when no preference
// exists, the store is unreachable, or the stored value no longer resolves.
func (s *PreferenceService) Get(ctx context.Context, userID string) (tz string, ok bool) {
	logger := observability.WithTraceID(ctx, s.logger)

	tz, err := s.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "timezone preference unavailable",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}

	if !s.converter.IsValid(tz) {
		logger.WarnContext(ctx, "stored timezone preference is not a known zone",
			slog.String("user_id", userID),
			slog.String("timezone", tz),
		)
		return "", false
	}

	return tz, true
}

// Set upserts the preference. The zone must resolve.
func (s *PreferenceService) Set(ctx context.Context, userID, tz string) error {
	if _, err := s.converter.LoadLocation(tz); err != nil {
		return err
	}
	if err := s.store.Put(ctx, userID, tz); err != nil {
		return fmt.Errorf("set timezone preference: %w", err)
	}
	return nil
}

// DetectSystemTimezone returns the host zone, or UTC when none is readable.
func (s *PreferenceService) DetectSystemTimezone() string {
	tz, method := s.detect()
	if !s.converter.IsValid(tz) {
		tz, method = domain.DefaultTimezone, tzconv.DetectedFallback
	}
	s.logger.Debug("detected system timezone",
		slog.String("timezone", tz),
		slog.String("method", string(method)),
	)
	return tz
}
