package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs progress of a batch of documents at a fixed interval.
// It is safe for concurrent use by the batch workers.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	failed      int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Done records one finished item; failed items are counted separately.
func (p *ProgressTracker) Done(failed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	if failed {
		p.failed++
	}

	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
}

// Complete marks the operation as complete and logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()

	p.logger.WithFields(Fields{
		"operation": stats.Operation,
		"total":     stats.Total,
		"processed": stats.Current,
		"failed":    stats.Failed,
		"duration":  stats.Duration.String(),
	}).Info("Operation completed")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var percentage float64
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    p.current,
		Failed:     p.failed,
		Percentage: percentage,
		Duration:   time.Since(p.startTime),
	}
}

func (p *ProgressTracker) logProgress(now time.Time) {
	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"failed":    p.failed,
		"elapsed":   now.Sub(p.startTime).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}

	p.logger.WithFields(fields).Info("Progress update")
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%), %d failed, elapsed %v",
			ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Failed, ps.Duration)
	}
	return fmt.Sprintf("%s: %d processed, %d failed, elapsed %v",
		ps.Operation, ps.Current, ps.Failed, ps.Duration)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()

	err := fn()

	fields := Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	}
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("Operation failed")
	} else {
		logger.WithFields(fields).Debug("Operation completed")
	}
	return err
}
