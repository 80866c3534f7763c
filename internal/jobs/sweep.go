package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/session"
)

// SweepJob periodically purges expired sessions from the in-memory fallback
// store. The per-session timers normally handle expiry on their own; the
// sweep guarantees a missed timer cannot leave a dangling record or index
// entry behind.
type SweepJob struct {
	fallback *session.MemoryBackend
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(fallback *session.MemoryBackend, interval time.Duration) *SweepJob {
	return &SweepJob{
		fallback: fallback,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("session sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			if count := j.fallback.Sweep(); count > 0 {
				log.Info().Int("count", count).Msg("swept expired fallback sessions")
			}
		}
	}
}
