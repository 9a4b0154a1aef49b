package jobqueue

import (
	"sync"
	"time"
)

// QueueMetrics is a snapshot of per-queue processing counters. Metrics are
// kept in memory only and reset on process restart or an explicit Reset.
type QueueMetrics struct {
	Queue                 string        `json:"queue"`
	TotalProcessed        int64         `json:"total_processed"`
	Succeeded             int64         `json:"succeeded"`
	Failed                int64         `json:"failed"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	ActiveJobs            []string      `json:"active_jobs"`
	LastProcessedAt       *time.Time    `json:"last_processed_at,omitempty"`
}

// Summary aggregates metrics across all tracked queues.
type Summary struct {
	TotalJobs     int64   `json:"total_jobs"`
	CompletedJobs int64   `json:"completed_jobs"`
	FailedJobs    int64   `json:"failed_jobs"`
	ActiveJobs    int64   `json:"active_jobs"`
	SuccessRate   float64 `json:"success_rate"`
}

type queueCounters struct {
	processed     int64
	succeeded     int64
	failed        int64
	totalDuration time.Duration
	active        map[string]struct{}
	lastProcessed time.Time
}

// Tracker records per-queue processing metrics independently of which
// adapter is active. Both worker implementations report to it through
// the same three hooks.
type Tracker struct {
	mu     sync.RWMutex
	queues map[string]*queueCounters
}

// NewTracker creates an empty metrics tracker.
func NewTracker() *Tracker {
	return &Tracker{queues: make(map[string]*queueCounters)}
}

func (t *Tracker) counters(queue string) *queueCounters {
	c, ok := t.queues[queue]
	if !ok {
		c = &queueCounters{active: make(map[string]struct{})}
		t.queues[queue] = c
	}
	return c
}

// RecordJobStart marks the job as active for the queue.
func (t *Tracker) RecordJobStart(queue, jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counters(queue).active[jobID] = struct{}{}
}

// RecordJobComplete marks the job as succeeded and folds its duration
// into the queue's running average.
func (t *Tracker) RecordJobComplete(queue, jobID string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.counters(queue)
	delete(c.active, jobID)
	c.processed++
	c.succeeded++
	c.totalDuration += duration
	c.lastProcessed = time.Now()
}

// RecordJobRetry clears the job from the active set without counting it
// as processed; the job will re-enter via RecordJobStart on its next
// attempt.
func (t *Tracker) RecordJobRetry(queue, jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.counters(queue).active, jobID)
}

// RecordJobFailed marks the job attempt as terminally failed.
func (t *Tracker) RecordJobFailed(queue, jobID string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.counters(queue)
	delete(c.active, jobID)
	c.processed++
	c.failed++
	c.totalDuration += duration
	c.lastProcessed = time.Now()
}

// Metrics returns a snapshot for one queue. Unknown queues return a zero
// snapshot rather than an error.
func (t *Tracker) Metrics(queue string) QueueMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.queues[queue]
	if !ok {
		return QueueMetrics{Queue: queue, ActiveJobs: []string{}}
	}
	return snapshot(queue, c)
}

// AllMetrics returns snapshots for every tracked queue.
func (t *Tracker) AllMetrics() map[string]QueueMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]QueueMetrics, len(t.queues))
	for name, c := range t.queues {
		out[name] = snapshot(name, c)
	}
	return out
}

// Reset clears counters for one queue.
func (t *Tracker) Reset(queue string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.queues, queue)
}

// ResetAll clears counters for every queue.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queues = make(map[string]*queueCounters)
}

// GlobalSummary aggregates counters across all queues. The success rate is
// succeeded/processed and reported as 0 when nothing has been processed.
func (t *Tracker) GlobalSummary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Summary
	for _, c := range t.queues {
		s.TotalJobs += c.processed
		s.CompletedJobs += c.succeeded
		s.FailedJobs += c.failed
		s.ActiveJobs += int64(len(c.active))
	}
	if s.TotalJobs > 0 {
		s.SuccessRate = float64(s.CompletedJobs) / float64(s.TotalJobs)
	}
	return s
}

func snapshot(name string, c *queueCounters) QueueMetrics {
	m := QueueMetrics{
		Queue:          name,
		TotalProcessed: c.processed,
		Succeeded:      c.succeeded,
		Failed:         c.failed,
		ActiveJobs:     make([]string, 0, len(c.active)),
	}
	for id := range c.active {
		m.ActiveJobs = append(m.ActiveJobs, id)
	}
	if c.processed > 0 {
		m.AverageProcessingTime = c.totalDuration / time.Duration(c.processed)
	}
	if !c.lastProcessed.IsZero() {
		last := c.lastProcessed
		m.LastProcessedAt = &last
	}
	return m
}
