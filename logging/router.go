package logging

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type Clock interface {
	Now() time.Time
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

// Router moves navigation events off the simulation goroutine and fans them
// out to the sinks. Publish never blocks a tick: when the queue is full the
// event is counted as dropped and a warning is logged at most once per
// DropWarnInterval.
type Router struct {
	queue       chan Event
	done        chan struct{}
	sinks       []*sinkWorker
	clock       Clock
	fallback    *logrus.Entry
	minSeverity Severity
	fields      map[string]any
	warnEvery   time.Duration
	wg          sync.WaitGroup
	closed      atomic.Bool

	dropped    atomic.Uint64
	nextWarnAt atomic.Int64

	countsMu sync.Mutex
	counts   map[EventType]uint64
}

// RouterStats reports delivered events per type plus queue drops.
type RouterStats struct {
	EventsTotal  uint64            `json:"eventsTotal"`
	DroppedTotal uint64            `json:"droppedTotal"`
	ByType       map[string]uint64 `json:"byType,omitempty"`
	Sinks        []string          `json:"sinks,omitempty"`
}

func NewRouter(clock Clock, cfg Config, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 512
	}
	warnEvery := cfg.DropWarnInterval
	if warnEvery <= 0 {
		warnEvery = 5 * time.Second
	}
	r := &Router{
		queue:       make(chan Event, size),
		done:        make(chan struct{}),
		clock:       clock,
		fallback:    logrus.WithField("component", "logging"),
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		warnEvery:   warnEvery,
		counts:      make(map[EventType]uint64),
	}

	backlog := min(max(size, 32), 1024)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.sinks = append(r.sinks, &sinkWorker{
			name:     named.Name,
			sink:     named.Sink,
			events:   make(chan Event, backlog),
			clock:    clock,
			fallback: r.fallback.WithField("sink", named.Name),
		})
	}

	r.wg.Add(1 + len(r.sinks))
	go r.dispatch()
	for _, worker := range r.sinks {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(worker)
	}
	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, worker := range r.sinks {
			close(worker.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.done:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.minSeverity {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)

	r.countsMu.Lock()
	r.counts[event.Type]++
	r.countsMu.Unlock()

	for _, worker := range r.sinks {
		worker.enqueue(event)
	}
}

func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.drop(event)
	}
}

func (r *Router) drop(event Event) {
	r.dropped.Add(1)
	now := r.clock.Now().UnixNano()
	next := r.nextWarnAt.Load()
	if now < next {
		return
	}
	if r.nextWarnAt.CompareAndSwap(next, now+r.warnEvery.Nanoseconds()) {
		r.fallback.WithFields(logrus.Fields{
			"type":    event.Type,
			"tick":    event.Tick,
			"dropped": r.dropped.Load(),
		}).Warn("event queue full, dropping events")
	}
}

// Close stops dispatch, waits for sinks to drain, and closes them.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)
	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, worker := range r.sinks {
		if err := worker.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{DroppedTotal: r.dropped.Load()}
	r.countsMu.Lock()
	if len(r.counts) > 0 {
		stats.ByType = make(map[string]uint64, len(r.counts))
		for eventType, n := range r.counts {
			stats.ByType[string(eventType)] = n
			stats.EventsTotal += n
		}
	}
	r.countsMu.Unlock()
	for _, worker := range r.sinks {
		stats.Sinks = append(stats.Sinks, worker.name)
	}
	sort.Strings(stats.Sinks)
	return stats
}

func (r *Router) Sink(name string) Sink {
	for _, worker := range r.sinks {
		if worker.name == name {
			return worker.sink
		}
	}
	return nil
}

// sinkWorker feeds one sink from its own backlog so a slow file sink never
// holds up the console. A failing sink backs off exponentially, capped at 32s.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	clock    Clock
	fallback *logrus.Entry
	failures int
	retryAt  time.Time
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- cloneEvent(event):
	default:
		w.fallback.WithField("type", event.Type).Warn("sink backlog full, dropping event")
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if w.failures > 0 {
			if wait := w.retryAt.Sub(w.clock.Now()); wait > 0 {
				time.Sleep(wait)
			}
		}
		if err := w.sink.Write(event); err != nil {
			w.failures++
			delay := time.Duration(1<<min(w.failures, 5)) * time.Second
			w.retryAt = w.clock.Now().Add(delay)
			w.fallback.WithError(err).WithField("retry_in", delay).Warn("sink write failed")
			continue
		}
		w.failures = 0
	}
}
