package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
)

var validate = validator.New()

// Validate checks struct constraints first, then the rules that need more
// than a tag: glob syntax and the tracing endpoint.
func Validate(cfg *Config) []error {
	var errs []error
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	for _, check := range []func(*Config) error{
		validateWatch,
		validateExcludes,
		validateObservability,
	} {
		if err := check(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	for _, p := range cfg.WatchPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watch_paths must not contain empty entries")
		}
	}
	for _, pattern := range cfg.Watch.Include {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("watch.include pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func validateExcludes(cfg *Config) error {
	for _, pattern := range cfg.Exclude.Files {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("exclude.files pattern %q: %w", pattern, err)
		}
	}
	for _, dir := range cfg.Exclude.Dirs {
		if strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("exclude.dirs entry %q must be a directory name, not a path", dir)
		}
	}
	return nil
}

func validateObservability(cfg *Config) error {
	o := cfg.Observability
	if o.EnableTracing && strings.TrimSpace(o.OTLPEndpoint) == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when tracing is enabled")
	}
	return nil
}
