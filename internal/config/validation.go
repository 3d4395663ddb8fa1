package config

import (
	"fmt"
	"time"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

var knownSourceTypes = map[string]bool{
	SourceTypePages:          true,
	SourceTypeAssets:         true,
	SourceTypePostsFlat:      true,
	SourceTypePostsShallow:   true,
	SourceTypePostsHierarchy: true,
}

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateBaker(); err != nil {
		return err
	}
	if err := cv.validateSources(); err != nil {
		return err
	}
	if cv.config.Events.Retries < 0 {
		return foundationerrors.ValidationError("events.retries must not be negative").
			WithContext("retries", cv.config.Events.Retries).Build()
	}
	return cv.validateWatch()
}

func (cv *configurationValidator) validateBaker() error {
	b := cv.config.Baker
	if b.Workers < 0 {
		return foundationerrors.ValidationError("baker.workers must not be negative").
			WithContext("workers", b.Workers).Build()
	}
	if b.MaxPasses < 0 {
		return foundationerrors.ValidationError("baker.max_passes must not be negative").
			WithContext("max_passes", b.MaxPasses).Build()
	}
	return nil
}

func (cv *configurationValidator) validateSources() error {
	seen := make(map[string]bool, len(cv.config.Sources))
	for i, s := range cv.config.Sources {
		if s.Name == "" {
			return foundationerrors.ValidationError(fmt.Sprintf("sources[%d]: name is required", i)).Build()
		}
		if seen[s.Name] {
			return foundationerrors.ValidationError("duplicate source name").
				WithContext("source", s.Name).Build()
		}
		seen[s.Name] = true
		if !knownSourceTypes[s.Type] {
			return foundationerrors.ValidationError("unknown source type").
				WithContext("source", s.Name).
				WithContext("type", s.Type).Build()
		}
		if s.Realm != RealmUser && s.Realm != RealmTheme {
			return foundationerrors.ValidationError("unknown realm").
				WithContext("source", s.Name).
				WithContext("realm", s.Realm).Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateWatch() error {
	w := cv.config.Watch
	if w.Debounce != "" {
		if _, err := time.ParseDuration(w.Debounce); err != nil {
			return foundationerrors.ValidationError("watch.debounce is not a duration").
				WithContext("value", w.Debounce).Build()
		}
	}
	if w.Interval != "" {
		if _, err := time.ParseDuration(w.Interval); err != nil {
			return foundationerrors.ValidationError("watch.interval is not a duration").
				WithContext("value", w.Interval).Build()
		}
	}
	return nil
}
