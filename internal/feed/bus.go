package feed

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Bus fans events out to every registered session. Delivery is best-effort:
// a session whose transport is broken or backlogged is evicted, and the
// publisher never sees an error.
type Bus struct {
	reg *Registry
	log *zap.Logger
}

func NewBus(reg *Registry, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.L()
	}
	return &Bus{reg: reg, log: log}
}

// Publish marshals evt once and hands it to every live session. Sends run
// against a registry snapshot, outside the registry lock; per-session FIFO
// ordering comes from the session's own outbound queue.
func (b *Bus) Publish(evt Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("event marshal failed", zap.String("event", evt.Name), zap.Error(err))
		return
	}

	sessions := b.reg.Snapshot()
	for _, s := range sessions {
		if err := s.Send(frame); err != nil {
			b.log.Warn("evicting live session",
				zap.String("session_id", s.ID()),
				zap.String("event", evt.Name),
				zap.Error(err),
			)
			b.reg.Unregister(s)
			s.Close()
		}
	}
	b.log.Debug("event published",
		zap.String("event", evt.Name),
		zap.Int("sessions", len(sessions)),
	)
}

// SendTo delivers evt to a single session, evicting it on failure. Used for
// direct replies that bypass the fan-out.
func (b *Bus) SendTo(s *Session, evt Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("event marshal failed", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	if err := s.Send(frame); err != nil {
		b.log.Warn("evicting live session",
			zap.String("session_id", s.ID()),
			zap.Error(err),
		)
		b.reg.Unregister(s)
		s.Close()
	}
}
