package cachealloc

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const logPrefix = "cachealloc"

// newLogger returns a logger at the given level tagged with the package prefix.
func newLogger(level string) (*logrus.Entry, error) {
	l := logrus.New()
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		l.SetLevel(lvl)
	}
	return l.WithField("prefix", logPrefix), nil
}
