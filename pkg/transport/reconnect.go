package transport

import (
	"context"
	"time"

	"voxcore/pkg/logging"
)

// maxBackoff caps the reconnect delay at 30s.
const maxBackoff = 30 * time.Second

// minBackoff is the initial reconnect delay.
const minBackoff = 1 * time.Second

// DialFunc opens a new session, performing the hello handshake as needed.
type DialFunc func(ctx context.Context) (*Session, error)

// Maintain keeps a session alive, redialing with exponential backoff
// (doubling from 1s, capped at 30s) whenever the session ends. onSession is
// invoked with each newly established session; it should block for the
// lifetime of that session (e.g. by draining Frames()) and return when the
// session ends.
func Maintain(ctx context.Context, dial DialFunc, onSession func(*Session), logger logging.Logger) {
	if logger == nil {
		logger = logging.Default("transport.reconnect")
	}
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session, err := dial(ctx)
		if err != nil {
			logger.WarnPrintf("dial failed, retrying in %s: %v", backoff, err)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff

		// onSession blocks draining the session for as long as it stays
		// connected. A cancelled ctx needs to actively tear the session
		// down (sending Goodbye) to unblock it, rather than waiting for a
		// read error that may never come.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				session.Close()
			case <-done:
			}
		}()
		onSession(session)
		close(done)
		session.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
