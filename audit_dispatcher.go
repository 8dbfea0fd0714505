package rideAuth

import (
	"context"
	"maps"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/rideAuth/internal/logging"
)

// addressPattern finds email addresses embedded in free text such as
// backend error strings.
var addressPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+`)

// auditDispatcher decouples operation latency from sink latency. Events are
// queued on a buffered channel and delivered by a single goroutine, so a sink
// sees events in emission order. No sink ever receives a raw address: Email,
// Error and Metadata values are masked before queueing.
type auditDispatcher struct {
	cfg       AuditConfig
	sink      AuditSink
	ch        chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan AuditEvent, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit blocks until there is room, ctx ends, or the
// dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = redactAddresses(event)

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains queued events into the sink and stops the goroutine.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events discarded under backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func redactAddresses(event AuditEvent) AuditEvent {
	if event.Email != "" && !isMasked(event.Email) {
		event.Email = logging.MaskEmail(event.Email)
	}
	event.Error = maskEmbedded(event.Error)
	if len(event.Metadata) > 0 {
		md := maps.Clone(event.Metadata)
		for k, v := range md {
			md[k] = maskEmbedded(v)
		}
		event.Metadata = md
	}
	return event
}

func maskEmbedded(s string) string {
	if s == "" {
		return s
	}
	return addressPattern.ReplaceAllStringFunc(s, func(addr string) string {
		if isMasked(addr) {
			return addr
		}
		return logging.MaskEmail(addr)
	})
}

func isMasked(email string) bool {
	return strings.Contains(email, "***")
}
