package chatterhub

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// SyncCoordinator drains the durable queue when the connection comes
// up. At most one drain runs at a time; a drain triggered while another
// is in progress is dropped, the running one already covers the queue.
type SyncCoordinator struct {
	queue   QueueStore
	conn    Sender
	session *Session
	log     zerolog.Logger

	draining atomic.Bool
}

// NewSyncCoordinator creates a coordinator over the given queue and
// connection. session may be nil; when set, drained messages are
// advanced to Sent in the session log.
func NewSyncCoordinator(queue QueueStore, conn Sender, session *Session, logger zerolog.Logger) *SyncCoordinator {
	return &SyncCoordinator{
		queue:   queue,
		conn:    conn,
		session: session,
		log:     logger.With().Str("component", "sync").Logger(),
	}
}

// Bind starts a drain in the background on every connected transition.
func (sc *SyncCoordinator) Bind(rt *Realtime) {
	rt.OnConnect(func() {
		go func() {
			if err := sc.Drain(context.Background()); err != nil {
				sc.log.Debug().Err(err).Msg("drain interrupted")
			}
		}()
	})
}

// Drain replays queued messages in enqueue order. Each message is sent
// with its original id and removed from the queue only after the wire
// accepted it, so a crash between send and removal causes a resend the
// server-side dedup by id absorbs. The drain stops at the first
// failure; remaining entries stay queued for the next connection.
func (sc *SyncCoordinator) Drain(ctx context.Context) error {
	if !sc.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer sc.draining.Store(false)

	pending, err := sc.queue.ListAll()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	sc.log.Info().Int("pending", len(pending)).Msg("draining queue")

	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sc.conn.State() != StateConnected {
			return ErrNotConnected
		}
		event, payload := wireCommand(msg)
		if err := sc.conn.Send(ctx, event, payload); err != nil {
			sc.log.Debug().Err(err).Str("id", msg.ID).Msg("drain send failed")
			return err
		}
		if err := sc.queue.Remove(msg.ID); err != nil {
			return err
		}
		if sc.session != nil {
			sc.session.MarkSent(msg.ID)
		}
	}
	sc.log.Info().Int("sent", len(pending)).Msg("queue drained")
	return nil
}

// Draining reports whether a drain is currently in progress.
func (sc *SyncCoordinator) Draining() bool {
	return sc.draining.Load()
}
