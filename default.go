package cachealloc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
)

// Default returns the process-wide Allocator, built on first use from
// LoadConfig. An unusable environment falls back to DefaultConfig and logs
// a warning. Default returns nil, after logging the error, only if the
// fallback cannot be built either.
func Default() *Allocator {
	defaultOnce.Do(func() {
		defaultAlloc = buildDefault(logrus.WithField("prefix", logPrefix), LoadConfig, New)
	})
	return defaultAlloc
}

func buildDefault(log *logrus.Entry, load func() (Config, error), build func(Config, ...Option) (*Allocator, error)) *Allocator {
	cfg, err := load()
	if err == nil {
		var a *Allocator
		if a, err = build(cfg); err == nil {
			return a
		}
	}
	log.WithError(err).Warn("invalid environment configuration, using defaults")
	a, err := build(DefaultConfig())
	if err != nil {
		log.WithError(err).Error("default allocator unavailable")
		return nil
	}
	return a
}
