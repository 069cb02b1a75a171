package xsched

import (
	"sync"
	"time"
)

// JobStats 单个任务的执行统计。
type JobStats struct {
	Name      string        `json:"name"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	Skips     int64         `json:"skips"`
	LastRun   time.Time     `json:"last_run"`
	LastTook  time.Duration `json:"last_took"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats 调度器执行统计，按任务名聚合。并发安全。
type Stats struct {
	mu   sync.Mutex
	jobs map[string]*JobStats
}

func newStats() *Stats {
	return &Stats{jobs: make(map[string]*JobStats)}
}

func (s *Stats) get(name string) *JobStats {
	js, ok := s.jobs[name]
	if !ok {
		js = &JobStats{Name: name}
		s.jobs[name] = js
	}
	return js
}

func (s *Stats) recordRun(name string, took time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	js := s.get(name)
	js.Runs++
	js.LastRun = time.Now()
	js.LastTook = took
	if err != nil {
		js.Failures++
		js.LastError = err.Error()
	} else {
		js.LastError = ""
	}
}

func (s *Stats) recordSkip(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(name).Skips++
}

// Job 返回指定任务的统计快照，不存在时返回零值。
func (s *Stats) Job(name string) JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if js, ok := s.jobs[name]; ok {
		return *js
	}
	return JobStats{Name: name}
}

// Snapshot 返回全部任务的统计快照。
func (s *Stats) Snapshot() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStats, 0, len(s.jobs))
	for _, js := range s.jobs {
		out = append(out, *js)
	}
	return out
}
