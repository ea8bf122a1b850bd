//go:build unix && !linux

package cachealloc

// Realloc maps a new region, copies the contents over and unmaps buf.
func (m *Mmap) Realloc(buf []byte, size int) ([]byte, error) {
	nb, err := m.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(nb, buf)
	if err := m.Free(buf); err != nil {
		_ = m.Free(nb)
		return nil, err
	}
	return nb, nil
}
