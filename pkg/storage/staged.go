package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
)

// StagedStorage buffers writes and deletes on top of a base Storage until
// Commit is called. Reads observe the staged state, so a sequence of
// repository calls behaves as if it ran against the base directly. Discarding
// the StagedStorage without calling Commit leaves the base untouched.
type StagedStorage struct {
	base Storage

	mu     sync.RWMutex
	staged map[string][]byte // nil value marks a delete
	order  []string
}

var _ Storage = (*StagedStorage)(nil)

func NewStagedStorage(base Storage) *StagedStorage {
	return &StagedStorage{
		base:   base,
		staged: make(map[string][]byte),
	}
}

func (s *StagedStorage) lookup(p string) (data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok = s.staged[Clean(p)]
	return data, ok
}

func (s *StagedStorage) stage(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Clean(p)
	if _, ok := s.staged[key]; !ok {
		s.order = append(s.order, key)
	}
	s.staged[key] = data
}

func (s *StagedStorage) Read(ctx context.Context, p string) ([]byte, error) {
	if data, ok := s.lookup(p); ok {
		if data == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return append([]byte(nil), data...), nil
	}
	return s.base.Read(ctx, p)
}

func (s *StagedStorage) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.stage(p, buf)
	return nil
}

func (s *StagedStorage) Delete(ctx context.Context, p string) error {
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	s.stage(p, nil)
	return nil
}

func (s *StagedStorage) List(ctx context.Context, prefix string) ([]string, error) {
	basePaths, err := s.base.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	dir := Clean(prefix)
	set := make(map[string]struct{}, len(basePaths))
	for _, p := range basePaths {
		set[Clean(p)] = struct{}{}
	}

	s.mu.RLock()
	for p, data := range s.staged {
		if path.Dir(p) != dir {
			continue
		}
		if data == nil {
			delete(set, p)
		} else {
			set[p] = struct{}{}
		}
	}
	s.mu.RUnlock()

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *StagedStorage) Exists(ctx context.Context, p string) (bool, error) {
	if data, ok := s.lookup(p); ok {
		return data != nil, nil
	}
	return s.base.Exists(ctx, p)
}

// Pending reports how many paths have staged changes.
func (s *StagedStorage) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staged)
}

// Commit applies the staged changes to the base storage in the order they
// were first staged and clears the buffer. A delete of a path the base no
// longer has is not an error.
func (s *StagedStorage) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.order {
		data := s.staged[p]
		var err error
		if data == nil {
			err = s.base.Delete(ctx, p)
			if errors.Is(err, ErrNotFound) {
				err = nil
			}
		} else {
			err = s.base.Write(ctx, p, data)
		}
		if err != nil {
			// Keep what has not been applied so the caller can inspect or retry.
			remaining := make(map[string][]byte, len(s.order)-i)
			for _, rp := range s.order[i:] {
				remaining[rp] = s.staged[rp]
			}
			s.staged = remaining
			s.order = append([]string(nil), s.order[i:]...)
			return fmt.Errorf("failed to commit %s: %w", p, err)
		}
	}
	s.staged = make(map[string][]byte)
	s.order = nil
	return nil
}

// Discard drops every staged change.
func (s *StagedStorage) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = make(map[string][]byte)
	s.order = nil
}
