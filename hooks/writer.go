package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kkkqkx123/open-agent-sub019/observability"
	"github.com/kkkqkx123/open-agent-sub019/record"
	"github.com/kkkqkx123/open-agent-sub019/storage"
	"github.com/kkkqkx123/open-agent-sub019/stream"
)

const defaultQueueSize = 256

// writer drains queued records onto the store from a single background
// worker, so hook callers never wait on disk. The queue is bounded:
// when it fills, records are dropped and counted rather than blocking
// the call path.
type writer struct {
	store   storage.Store
	log     *slog.Logger
	metrics *observability.Metrics
	broker  *stream.Broker

	mu     sync.Mutex
	closed bool
	queue  chan record.Record

	unwritten sync.WaitGroup
	worker    sync.WaitGroup
}

func newWriter(store storage.Store, queueSize int, log *slog.Logger, metrics *observability.Metrics, broker *stream.Broker) *writer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &writer{
		store:   store,
		log:     log,
		metrics: metrics,
		broker:  broker,
		queue:   make(chan record.Record, queueSize),
	}
	w.worker.Add(1)
	go w.run()
	return w
}

func (w *writer) run() {
	defer w.worker.Done()
	for rec := range w.queue {
		w.write(rec)
		w.unwritten.Done()
	}
}

func (w *writer) write(rec record.Record) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("history write: recovered panic",
				"record_id", rec.ID(), "record_type", rec.Type(), "panic", r)
		}
	}()
	ok := w.store.Append(context.Background(), rec)
	w.metrics.ObserveWrite(string(rec.Type()), ok)
	if ok {
		w.broker.Publish(rec)
	}
}

// enqueue hands rec to the worker without blocking. A full queue or a
// closed writer drops the record.
func (w *writer) enqueue(rec record.Record) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.log.Warn("history write: writer closed, dropping record",
			"record_id", rec.ID(), "record_type", rec.Type())
		return false
	}
	w.unwritten.Add(1)
	select {
	case w.queue <- rec:
		return true
	default:
		w.unwritten.Done()
		w.metrics.ObserveDrop(string(rec.Type()))
		w.log.Warn("history write: queue full, dropping record",
			"record_id", rec.ID(), "record_type", rec.Type())
		return false
	}
}

// flush blocks until every accepted record has been handled. Callers
// must have stopped producing first.
func (w *writer) flush() {
	w.unwritten.Wait()
}

// close stops accepting records, drains the queue, and waits for the
// worker to exit.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	w.worker.Wait()
}
