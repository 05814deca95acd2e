package app

import (
	"sync"
	"time"
)

// timerSignal is the message a question countdown posts into the session
// mailbox: periodic ticks with the remaining seconds, then one expiry.
type timerSignal struct {
	questionID string
	remaining  int
	expired    bool
}

// questionTimer is the authoritative countdown for one in-progress question.
// The server owns the clock; clients only render the ticks they receive.
type questionTimer struct {
	stop chan struct{}
	once sync.Once
}

// startQuestionTimer counts down limit, invoking post with a tick every
// tickEvery and with a terminal expiry exactly once. post reports whether
// the session still accepts messages; the timer gives up when it doesn't.
func startQuestionTimer(questionID string, limit, tickEvery time.Duration, post func(timerSignal) bool) *questionTimer {
	t := &questionTimer{stop: make(chan struct{})}

	go func() {
		started := time.Now()
		deadline := time.NewTimer(limit)
		defer deadline.Stop()
		ticker := time.NewTicker(tickEvery)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				remaining := limit - time.Since(started)
				if remaining < 0 {
					remaining = 0
				}
				sig := timerSignal{questionID: questionID, remaining: int(remaining.Round(time.Second) / time.Second)}
				if !post(sig) {
					return
				}
			case <-deadline.C:
				post(timerSignal{questionID: questionID, expired: true})
				return
			}
		}
	}()
	return t
}

// Stop cancels the countdown. Safe to call more than once; a signal already
// in the mailbox may still be delivered and is discarded by the actor's
// current-question check.
func (t *questionTimer) Stop() {
	t.once.Do(func() { close(t.stop) })
}
