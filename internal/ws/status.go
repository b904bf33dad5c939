package ws

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Status is served on /api/status.
type Status struct {
	Sessions      int     `json:"sessions"`
	ReadySessions int     `json:"readySessions"`
	Surfaces      int     `json:"surfaces"`
	Watchers      int     `json:"watchers"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
}

// processStats fills the host process figures. gopsutil failures leave
// them zero; the rest of the status is still useful.
func processStats(ctx context.Context, st *Status) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
}

func (s *Server) status(ctx context.Context) Status {
	st := Status{
		Sessions:      s.manager.Store().Len(),
		ReadySessions: s.manager.Store().ReadyCount(),
		Surfaces:      s.hub.Count(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.broadcaster != nil {
		st.Watchers = s.broadcaster.ClientCount()
	}
	processStats(ctx, &st)
	return st
}
