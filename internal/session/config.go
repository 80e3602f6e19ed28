package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/pipeline"
)

// ErrInvalidOption indicates a configuration patch carried a bad value.
// The patch is rejected whole; the live configuration is untouched.
var ErrInvalidOption = errors.New("invalid configuration option")

// Option keys accepted by configuration patches.
const (
	OptionModel         = "model"
	OptionAnalysisDepth = "analysis_depth"
	OptionIncludeNews   = "include_news"
	OptionResultLimit   = "result_limit"
)

var analysisDepths = []string{"Basic", "Standard", "Detailed"}

const maxResultLimit = 20

// MergeConfig applies a patch of option key/values onto cfg and returns
// the result. Unknown keys are logged and ignored so older clients keep
// working; an invalid value rejects the whole patch.
func MergeConfig(cfg pipeline.Config, patch map[string]any, logger log.Logger) (pipeline.Config, error) {
	for key, value := range patch {
		switch key {
		case OptionModel:
			s, ok := value.(string)
			if !ok || s == "" {
				return cfg, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidOption, key)
			}
			cfg.Model = s

		case OptionAnalysisDepth:
			s, ok := value.(string)
			if !ok || !slices.Contains(analysisDepths, s) {
				return cfg, fmt.Errorf("%w: %s must be one of Basic, Standard, Detailed", ErrInvalidOption, key)
			}
			cfg.AnalysisDepth = s

		case OptionIncludeNews:
			b, ok := value.(bool)
			if !ok {
				return cfg, fmt.Errorf("%w: %s must be a boolean", ErrInvalidOption, key)
			}
			cfg.IncludeNews = b

		case OptionResultLimit:
			// JSON numbers decode as float64.
			n, ok := asInt(value)
			if !ok || n < 1 || n > maxResultLimit {
				return cfg, fmt.Errorf("%w: %s must be an integer between 1 and %d", ErrInvalidOption, key, maxResultLimit)
			}
			cfg.ResultLimit = n

		default:
			logger.Warn("ignoring unknown configuration option", "key", key)
		}
	}
	return cfg, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// validateConfig checks a full configuration, used when importing
// snapshots where every field arrives from outside.
func validateConfig(cfg pipeline.Config) error {
	if cfg.Model == "" {
		return fmt.Errorf("%w: model is empty", ErrInvalidOption)
	}
	if !slices.Contains(analysisDepths, cfg.AnalysisDepth) {
		return fmt.Errorf("%w: analysis_depth %q", ErrInvalidOption, cfg.AnalysisDepth)
	}
	if cfg.ResultLimit < 1 || cfg.ResultLimit > maxResultLimit {
		return fmt.Errorf("%w: result_limit %d", ErrInvalidOption, cfg.ResultLimit)
	}
	return nil
}
