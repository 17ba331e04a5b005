package feedback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicelaunch/internal/observe"
	"github.com/MrWong99/voicelaunch/pkg/provider/tts"
)

const (
	// DefaultErrorLocale is the locale error messages are spoken in.
	DefaultErrorLocale = "en"

	// defaultSubscriberBuffer is the channel capacity handed to subscribers.
	defaultSubscriberBuffer = 16

	// flushPoll is how often Flush re-checks the queue.
	flushPoll = 10 * time.Millisecond
)

// Utterance statuses recorded on the voicelaunch.utterances counter.
const (
	statusOK       = "ok"
	statusFallback = "fallback_locale"
	statusError    = "error"
	statusDropped  = "dropped"
	statusLogged   = "logged"
)

// Option configures a [Dispatcher] during construction.
type Option func(*Dispatcher)

// WithPrompts sets the phrase templates. Empty fields keep their defaults.
func WithPrompts(p Prompts) Option {
	return func(d *Dispatcher) { d.prompts = p.withDefaults() }
}

// WithErrorLocale sets the locale error messages are spoken in. Empty keeps
// [DefaultErrorLocale].
func WithErrorLocale(locale string) Option {
	return func(d *Dispatcher) {
		if locale != "" {
			d.errorLocale = locale
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSubscriberBuffer sets the channel capacity of new subscriptions.
func WithSubscriberBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.subBuffer = n
		}
	}
}

// Dispatcher announces feedback events.
//
// Each announced event is published to all subscribers immediately and its
// phrase is appended to a FIFO utterance queue. A single worker goroutine,
// started by [Dispatcher.Start], hands queued utterances to the synthesis
// provider one at a time, so utterances are spoken strictly in submission
// order and never overlap.
//
// When no synthesis provider is configured, phrases are logged instead.
//
// All exported methods are safe for concurrent use.
type Dispatcher struct {
	speaker     tts.Provider
	errorLocale string
	metrics     *observe.Metrics
	subBuffer   int

	mu      sync.Mutex
	prompts Prompts
	queue   []tts.Utterance
	busy    bool // worker holds a dequeued utterance
	subs    map[uint64]chan Event
	nextSub uint64
	started bool
	closed  bool
	cancel  context.CancelFunc

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Dispatcher that speaks through speaker. speaker may be nil.
func New(speaker tts.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		speaker:     speaker,
		errorLocale: DefaultErrorLocale,
		subBuffer:   defaultSubscriberBuffer,
		prompts:     DefaultPrompts(),
		subs:        make(map[uint64]chan Event),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Start launches the queue worker. Utterances announced before Start wait in
// the queue. Cancelling ctx aborts the utterance being spoken; the worker
// keeps running until [Dispatcher.Close]. Calling Start more than once, or
// after Close, is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run(ctx)

	if len(d.queue) > 0 {
		d.wake()
	}
}

// Announce publishes ev to subscribers and queues its phrase for speech.
// It never blocks on synthesis and is a no-op after Close.
func (d *Dispatcher) Announce(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("feedback: subscriber too slow, event dropped", "kind", ev.Kind)
		}
	}

	text := d.prompts.Phrase(ev)
	if ev.Quiet || text == "" {
		return
	}
	u := tts.Utterance{Text: text}
	if ev.Kind == KindError {
		u.Locale = d.errorLocale
	}
	d.queue = append(d.queue, u)
	d.metrics.UtteranceQueueDepth.Add(context.Background(), 1)
	d.wake()
}

// Subscribe returns a channel receiving every event announced from now on
// and a function that cancels the subscription. Events are dropped for
// subscribers whose buffer is full. The channel is closed by cancel or by
// [Dispatcher.Close].
func (d *Dispatcher) Subscribe() (<-chan Event, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan Event, d.subBuffer)
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if c, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(c)
			}
		})
	}
}

// SetPrompts replaces the phrase templates. Already queued utterances keep
// their rendered text.
func (d *Dispatcher) SetPrompts(p Prompts) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = p.withDefaults()
}

// Pending returns the number of utterances waiting to be spoken.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Flush blocks until every queued utterance has been spoken, the dispatcher
// is closed, or ctx is done. Before Start, Flush waits for ctx.
func (d *Dispatcher) Flush(ctx context.Context) error {
	t := time.NewTicker(flushPoll)
	defer t.Stop()
	for {
		d.mu.Lock()
		idle := d.closed || (len(d.queue) == 0 && !d.busy)
		d.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Close aborts the utterance in progress (if any), stops the worker, drops
// the remaining queue and closes all subscriber channels. Close is
// idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true

	ctx := context.Background()
	for range d.queue {
		d.metrics.RecordUtterance(ctx, statusDropped)
	}
	if n := len(d.queue); n > 0 {
		d.metrics.UtteranceQueueDepth.Add(ctx, -int64(n))
		slog.Info("feedback: dropping queued utterances on close", "count", n)
	}
	d.queue = nil

	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	cancel := d.cancel
	d.mu.Unlock()

	close(d.done)
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

// wake signals the worker. Must be called with d.mu held.
func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// run is the queue worker.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.notify:
		}

		for {
			u, ok := d.dequeue()
			if !ok {
				break
			}
			d.speak(ctx, u)
		}
	}
}

// dequeue pops the oldest utterance. It returns ok=false when the queue is
// empty or the dispatcher is closed.
func (d *Dispatcher) dequeue() (tts.Utterance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || len(d.queue) == 0 {
		d.busy = false
		return tts.Utterance{}, false
	}
	d.busy = true
	u := d.queue[0]
	d.queue[0] = tts.Utterance{}
	d.queue = d.queue[1:]
	d.metrics.UtteranceQueueDepth.Add(context.Background(), -1)
	return u, true
}

func (d *Dispatcher) speak(ctx context.Context, u tts.Utterance) {
	if d.speaker == nil {
		slog.Info("feedback: announce", "text", u.Text, "locale", u.Locale)
		d.metrics.RecordUtterance(ctx, statusLogged)
		return
	}

	err := d.speaker.Speak(ctx, u)
	switch {
	case err == nil:
		d.metrics.RecordUtterance(ctx, statusOK)
	case errors.Is(err, tts.ErrLocaleUnsupported):
		slog.Info("feedback: locale unsupported, spoke with default locale", "locale", u.Locale)
		d.metrics.RecordUtterance(ctx, statusFallback)
	default:
		slog.Warn("feedback: speak failed", "text", u.Text, "err", err)
		d.metrics.RecordUtterance(ctx, statusError)
	}
}
