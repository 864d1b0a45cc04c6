package monitor

import "time"

// Status is the last observed health of every probed dependency.
type Status struct {
	Online    bool            `json:"online"`
	Degraded  bool            `json:"degraded"`
	Services  map[string]bool `json:"services"`
	QueueSize int             `json:"queue_size"`
	LastCheck time.Time       `json:"last_check"`
}

func (s Status) clone() Status {
	out := s
	out.Services = make(map[string]bool, len(s.Services))
	for k, v := range s.Services {
		out.Services[k] = v
	}
	return out
}
