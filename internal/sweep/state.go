package sweep

import "time"

// Status is the lifecycle state of a Sweeper.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// State is a snapshot of a Sweeper's progress. Entries count outer-grid
// points appended to the log.
type State struct {
	Status           Status     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TotalEntries     int        `json:"total_entries"`
	CompletedEntries int        `json:"completed_entries"`
	CurrentIndex     []int      `json:"current_index,omitempty"`
	LogName          string     `json:"log_name,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// State returns a copy of the current state.
func (s *Sweeper) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if s.state.CurrentIndex != nil {
		state.CurrentIndex = append([]int(nil), s.state.CurrentIndex...)
	}
	return state
}

func (s *Sweeper) begin(total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == StatusRunning {
		return ErrSweepInProgress
	}
	now := time.Now()
	s.state = State{
		Status:       StatusRunning,
		StartedAt:    &now,
		TotalEntries: total,
	}
	return nil
}

func (s *Sweeper) setLogName(name string) {
	s.mu.Lock()
	s.state.LogName = name
	s.mu.Unlock()
}

func (s *Sweeper) advance(index []int) {
	s.mu.Lock()
	s.state.CompletedEntries++
	s.state.CurrentIndex = append([]int(nil), index...)
	s.mu.Unlock()
}

func (s *Sweeper) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.state.CompletedAt = &now
	if err != nil {
		s.state.Status = StatusError
		s.state.Error = err.Error()
		return
	}
	s.state.Status = StatusComplete
}
