package terminal

import (
	"context"
	"errors"
	"log"
	"time"
)

// errTornDown stops pacing when the session closes mid-run.
var errTornDown = errors.New("session torn down")

// writeTimeout bounds a single transport write. A client that stalls longer
// tears the session down.
const writeTimeout = 10 * time.Second

// pacer spaces paced characters delay apart, including across fragments.
type pacer struct {
	next time.Time
}

// wait sleeps until the next character may be written. It returns
// errTornDown if done closes first.
func (p *pacer) wait(done <-chan struct{}) error {
	d := time.Until(p.next)
	if d <= 0 {
		select {
		case <-done:
			return errTornDown
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-done:
		return errTornDown
	}
}

func (p *pacer) mark(delay time.Duration) {
	p.next = time.Now().Add(delay)
}

// runSender is the single consumer of the outbox.
func (s *Session) runSender() {
	defer s.wg.Done()

	var p pacer
	for {
		frag, err := s.outbox.pop(0, s.done)
		if err != nil {
			break
		}
		// Writes outlive s.ctx so teardown never cuts one off halfway.
		if err := s.deliver(context.Background(), frag, &p); err != nil {
			if !errors.Is(err, errTornDown) && s.Active() {
				log.Printf("[sender] session %s write failed: %v", s.ID, err)
			}
			s.Close("")
			break
		}
	}

	// Flush whatever was queued before teardown (including a kick or
	// eviction notice) at full speed, then release the transport. Close has
	// completed by now, so notice is stable.
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for _, frag := range s.outbox.drain() {
		if err := s.deliver(ctx, frag, nil); err != nil {
			break
		}
	}
	s.releaseTransport()
}

// deliver writes one fragment. Control runs are written whole and at once.
// Plain text is paced per the session's speed profile unless p is nil. A
// teardown while pacing writes the remainder of the fragment at full speed.
func (s *Session) deliver(ctx context.Context, frag string, p *pacer) error {
	runs, err := SplitRuns(frag)
	if err != nil {
		log.Printf("[sender] session %s: %v; flushing remainder as text", s.ID, err)
		s.metrics.malformed()
	}

	for _, run := range runs {
		var delay time.Duration
		if p != nil && !run.Kind.IsControl() {
			delay = s.rates.Delay(s.Speed())
		}
		if delay <= 0 {
			if err := s.write(ctx, run.Text); err != nil {
				return err
			}
			continue
		}
		for i, r := range run.Text {
			if err := p.wait(s.done); err != nil {
				// Torn down mid-run: the rest of the fragment goes out
				// unpaced so the stream has no gap before the notice.
				if err := s.write(ctx, run.Text[i:]); err != nil {
					return err
				}
				p = nil
				break
			}
			if err := s.write(ctx, string(r)); err != nil {
				return err
			}
			p.mark(delay)
		}
	}
	return nil
}

func (s *Session) write(ctx context.Context, data string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.transport.WriteOutput(ctx, data); err != nil {
		return err
	}
	s.metrics.wrote(len(data))
	return nil
}
