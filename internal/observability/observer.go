package observability

import (
	"log"
	"sync"
	"time"
)

// Observer receives pipeline outcomes and errors. It never gates a request.
type Observer interface {
	StageOutcome(stage string, outcome string)
	StageError(stage string, requestID string, err error)
	StagePanicked(path string, value any)
	RequestCompleted(method string, status int, duration time.Duration)
}

// Noop implements Observer without emitting anything.
type Noop struct{}

func (Noop) StageOutcome(string, string)                 {}
func (Noop) StageError(string, string, error)            {}
func (Noop) StagePanicked(string, any)                   {}
func (Noop) RequestCompleted(string, int, time.Duration) {}

// LogObserver writes structured printf lines for every pipeline event and
// keeps per-stage deny counts for the periodic alert line.
type LogObserver struct {
	logger *log.Logger

	mu         sync.Mutex
	denyCounts map[string]int64
}

func NewLogObserver(logger *log.Logger) *LogObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &LogObserver{
		logger:     logger,
		denyCounts: make(map[string]int64),
	}
}

func (o *LogObserver) StageOutcome(stage string, outcome string) {
	if o == nil {
		return
	}
	if outcome == OutcomeForwarded {
		return
	}
	o.mu.Lock()
	o.denyCounts[stage]++
	count := o.denyCounts[stage]
	o.mu.Unlock()

	o.logger.Printf("pipeline deny stage=%s outcome=%s count=%d", stage, outcome, count)

	// Basic alert hook for repeated spikes in deny events.
	if count%100 == 0 {
		o.logger.Printf("pipeline alert stage=%s outcome=%s repeated_deny_count=%d", stage, outcome, count)
	}
}

func (o *LogObserver) StageError(stage string, requestID string, err error) {
	if o == nil {
		return
	}
	o.logger.Printf("pipeline error stage=%s request_id=%s err=%v", stage, requestID, err)
}

func (o *LogObserver) StagePanicked(path string, value any) {
	if o == nil {
		return
	}
	o.logger.Printf("pipeline panic path=%s recovered=%v", path, value)
}

func (o *LogObserver) RequestCompleted(method string, status int, duration time.Duration) {
	if o == nil {
		return
	}
	o.logger.Printf("pipeline request method=%s status=%d duration_ms=%d", method, status, duration.Milliseconds())
}

// Stage outcome labels shared by observers and metrics.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeRateLimited = "rate_limited"
	OutcomeSignIn      = "redirect_sign_in"
	OutcomeDenied      = "redirect_denied"
	OutcomeError       = "error"
)

// Fanout forwards every event to each wrapped observer.
type Fanout []Observer

func (f Fanout) StageOutcome(stage string, outcome string) {
	for _, o := range f {
		o.StageOutcome(stage, outcome)
	}
}

func (f Fanout) StageError(stage string, requestID string, err error) {
	for _, o := range f {
		o.StageError(stage, requestID, err)
	}
}

func (f Fanout) StagePanicked(path string, value any) {
	for _, o := range f {
		o.StagePanicked(path, value)
	}
}

func (f Fanout) RequestCompleted(method string, status int, duration time.Duration) {
	for _, o := range f {
		o.RequestCompleted(method, status, duration)
	}
}
