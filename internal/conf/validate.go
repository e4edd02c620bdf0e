package conf

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSettings checks the settings for hard errors and logs warnings for
// values outside the typical range. Atypical thresholds are accepted on
// purpose: the detector cannot know the acoustic environment in advance, so
// only nonsensical values are rejected.
func ValidateSettings(settings *Settings) error {
	if err := validate.Struct(settings); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("settings validation could not run: %w", err)
		}
		return fmt.Errorf("invalid settings: %w", err)
	}

	warnAtypicalDetectorSettings(settings)
	return nil
}

// warnAtypicalDetectorSettings flags detector values outside the ranges that
// make sense for typical acoustic environments. Permissive thresholds are a
// valid use case, so these never fail validation.
func warnAtypicalDetectorSettings(settings *Settings) {
	d := &settings.Detector

	if d.BeginThresholdDB < -100 || d.BeginThresholdDB > 0 {
		slog.Warn("begin threshold is outside typical range (-100 to 0 dB)",
			"begin_threshold_db", d.BeginThresholdDB)
	}
	if d.EndThresholdDB < -100 || d.EndThresholdDB > 0 {
		slog.Warn("end threshold is outside typical range (-100 to 0 dB)",
			"end_threshold_db", d.EndThresholdDB)
	}
	if d.SilenceDuration < 0.1 || d.SilenceDuration > 300 {
		slog.Warn("silence duration is outside typical range (0.1 to 300 s)",
			"silence_duration", d.SilenceDuration)
	}
	if d.RMSWindow < 0.01 || d.RMSWindow > 1.0 {
		slog.Warn("RMS window is outside typical range (0.01 to 1.0 s)",
			"rms_window", d.RMSWindow)
	}
}
