package testutil

import (
	"context"
	"slices"
	"sync"
)

// RecordingSubmitter records every page submission and answers with a
// scripted status. Status defaults to 200.
type RecordingSubmitter struct {
	// StatusFor overrides the status per URL.
	StatusFor map[string]int
	// Err, if set, is returned for every submission.
	Err error
	// Block, if set, is waited on before answering (or until ctx is done).
	Block chan struct{}

	mu   sync.Mutex
	urls []string
}

func (s *RecordingSubmitter) Submit(ctx context.Context, pageURL string) (int, error) {
	s.mu.Lock()
	s.urls = append(s.urls, pageURL)
	s.mu.Unlock()

	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if s.Err != nil {
		return 0, s.Err
	}
	if status, ok := s.StatusFor[pageURL]; ok {
		return status, nil
	}
	return 200, nil
}

// URLs returns the submitted URLs sorted, since submissions run concurrently.
func (s *RecordingSubmitter) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.urls)
	slices.Sort(out)
	return out
}
