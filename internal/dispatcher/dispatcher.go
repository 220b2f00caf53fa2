// Package dispatcher fans a triggered alert out to its configured
// notification channels. Channels are attempted independently and
// concurrently; one channel's failure or slowness never blocks the others,
// and every attempt is bounded by a per-channel timeout.
//
// The dispatcher performs no retries. Retry policy, if any, belongs to the
// transport behind each sender.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"buildwatch/internal/model"
)

// DefaultChannelTimeout bounds each channel attempt so one slow transport
// cannot stall the alert pipeline.
const DefaultChannelTimeout = 5 * time.Second

// Notification carries the full context of a triggered alert for message
// formatting: the trigger entry plus its rule, pipeline, and build.
type Notification struct {
	Trigger  *model.AlertTrigger
	Rule     *model.AlertRule
	Pipeline *model.Pipeline
	Build    *model.Build
}

// Sender delivers a notification on one channel.
type Sender interface {
	// Channel returns the channel this sender handles.
	Channel() model.Channel

	// Send formats and delivers the notification. The context carries the
	// per-channel deadline.
	Send(ctx context.Context, n *Notification) error
}

// Outcome is the result of one channel attempt.
type Outcome struct {
	Channel model.Channel
	Err     error
}

// Dispatcher routes notifications to registered channel senders.
type Dispatcher struct {
	senders map[model.Channel]Sender
	timeout time.Duration
}

// New creates a dispatcher with the given channel senders.
func New(senders ...Sender) *Dispatcher {
	d := &Dispatcher{
		senders: make(map[model.Channel]Sender),
		timeout: DefaultChannelTimeout,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// SetChannelTimeout overrides the per-channel attempt timeout.
func (d *Dispatcher) SetChannelTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Dispatch attempts delivery on every requested channel concurrently and
// returns one outcome per channel. It completes when all attempts finish or
// time out.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification, channels []model.Channel) []Outcome {
	outcomes := make([]Outcome, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch model.Channel) {
			defer wg.Done()
			outcomes[i] = Outcome{Channel: ch, Err: d.send(ctx, ch, n)}
		}(i, ch)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			slog.Error("Notification delivery failed",
				"channel", o.Channel,
				"trigger_id", n.Trigger.ID,
				"rule_id", n.Rule.ID,
				"error", o.Err,
			)
		} else {
			slog.Info("Notification delivered",
				"channel", o.Channel,
				"trigger_id", n.Trigger.ID,
				"rule_id", n.Rule.ID,
			)
		}
	}

	return outcomes
}

func (d *Dispatcher) send(ctx context.Context, ch model.Channel, n *Notification) error {
	sender, ok := d.senders[ch]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", ch)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// The deadline must hold even when the transport cannot observe
	// cancellation mid-send: run the attempt in its own goroutine and abandon
	// it once the deadline passes. The buffered channel lets an abandoned
	// attempt finish without leaking the goroutine.
	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.Send(sendCtx, n)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

// Record folds channel outcomes onto the trigger entry: channels attempted,
// channels succeeded, and a summary of failures.
func Record(t *model.AlertTrigger, outcomes []Outcome) {
	t.ChannelsAttempted = make([]model.Channel, 0, len(outcomes))
	t.ChannelsSucceeded = make([]model.Channel, 0, len(outcomes))

	var failures []string
	for _, o := range outcomes {
		t.ChannelsAttempted = append(t.ChannelsAttempted, o.Channel)
		if o.Err == nil {
			t.ChannelsSucceeded = append(t.ChannelsSucceeded, o.Channel)
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", o.Channel, o.Err))
		}
	}
	sort.Strings(failures)
	t.NotificationError = strings.Join(failures, "; ")
}
