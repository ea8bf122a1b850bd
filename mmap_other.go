//go:build !unix

package cachealloc

import "errors"

func newMmapSystem() (System, error) {
	return nil, errors.New("alloc: mmap backend is only available on unix systems")
}
