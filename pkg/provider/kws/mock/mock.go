// Package mock provides a scriptable test double for kws.Spotter.
package mock

import (
	"sync"

	"github.com/triamed/voicefront/pkg/provider/kws"
)

// Spotter is a mock implementation of kws.Spotter.
type Spotter struct {
	mu sync.Mutex

	// Results is consumed one element per Detect call. When exhausted,
	// Detect returns Default.
	Results []string

	// Default is returned once Results is exhausted.
	Default string

	// Err, if non-nil, is returned by every Detect call.
	Err error

	// Windows records the length of every window passed to Detect.
	Windows []int
}

func (s *Spotter) Detect(window []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Windows = append(s.Windows, len(window))
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Results) > 0 {
		r := s.Results[0]
		s.Results = s.Results[1:]
		return r, nil
	}
	return s.Default, nil
}

var _ kws.Spotter = (*Spotter)(nil)
