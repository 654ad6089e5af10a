package logger

import (
	"strconv"
	"strings"
	"sync"
)

// eventSampler lets num out of every den calls through, counted per event
// name so a noisy event cannot starve a quiet one.
type eventSampler struct {
	mu   sync.Mutex
	num  uint64
	den  uint64
	seen map[string]uint64
}

func newEventSampler(num, den int) *eventSampler {
	s := &eventSampler{}
	s.configure(num, den)
	return s
}

// configure sets the ratio; a zero ratio passes everything.
func (s *eventSampler) configure(num, den int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]uint64)
	if num <= 0 || den <= 0 {
		s.num, s.den = 0, 0
		return
	}
	s.num, s.den = uint64(min(num, den)), uint64(den)
}

func (s *eventSampler) allow(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.den == 0 {
		return true
	}
	n := s.seen[event]
	s.seen[event] = n + 1
	return n%s.den < s.num
}

// parseSampleRatio understands "1/50", "50" (one in fifty), "2%" and
// "all"/"off" (no sampling). ok is false for anything else.
func parseSampleRatio(spec string) (num, den int, ok bool) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "all", "off", "none", "0":
		return 0, 0, true
	}
	if pct, found := strings.CutSuffix(spec, "%"); found {
		p, err := strconv.Atoi(strings.TrimSpace(pct))
		if err != nil || p <= 0 || p > 100 {
			return 0, 0, false
		}
		return p, 100, true
	}
	if a, b, found := strings.Cut(spec, "/"); found {
		n, err1 := strconv.Atoi(strings.TrimSpace(a))
		d, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return 0, 0, false
		}
		return n, d, true
	}
	d, err := strconv.Atoi(spec)
	if err != nil || d <= 0 {
		return 0, 0, false
	}
	return 1, d, true
}
