package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// ErrWriterBusy is returned when the write queue is full or closed.
var ErrWriterBusy = errors.New("state writer busy")

// #region writer
// Writer runs persistence jobs on its own goroutine so the scheduler never
// waits on disk. Jobs run in submission order.
type Writer struct {
	mu     sync.Mutex
	closed bool
	jobs   chan writeJob
	done   chan struct{}
	logger zerolog.Logger
}

type writeJob struct {
	name string
	fn   func() error
}

// NewWriter starts the writer goroutine. size bounds the queue.
func NewWriter(size int, logger zerolog.Logger) *Writer {
	if size < 1 {
		size = 1
	}
	w := &Writer{
		jobs:   make(chan writeJob, size),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "state-writer").Logger(),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for j := range w.jobs {
		if err := j.fn(); err != nil {
			w.logger.Error().Err(err).Str("job", j.name).Msg("write failed")
		}
	}
}

// Enqueue submits fn without blocking. A full or closed queue drops the job
// and returns ErrWriterBusy.
func (w *Writer) Enqueue(name string, fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterBusy
	}
	select {
	case w.jobs <- writeJob{name: name, fn: fn}:
		return nil
	default:
		w.logger.Warn().Str("job", name).Msg("write queue full, dropping")
		return ErrWriterBusy
	}
}

// Close drains queued jobs and waits for the goroutine to exit.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

// #endregion writer

// #region async-store
// AsyncStore reads through to the Store and queues writes on a Writer.
// Values are encoded at call time so later mutation by the caller is not
// persisted.
type AsyncStore struct {
	*Store
	w *Writer
}

// Async wraps s so that its typed setters go through w.
func (s *Store) Async(w *Writer) *AsyncStore {
	return &AsyncStore{Store: s, w: w}
}

// SetJSON queues a JSON write.
func (a *AsyncStore) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return a.set(key, string(b))
}

// SetInt queues an integer write.
func (a *AsyncStore) SetInt(key string, v int) error {
	return a.set(key, strconv.Itoa(v))
}

// SetBool queues a boolean write.
func (a *AsyncStore) SetBool(key string, v bool) error {
	return a.set(key, strconv.FormatBool(v))
}

func (a *AsyncStore) set(key, value string) error {
	return a.w.Enqueue("set "+key, func() error { return a.Store.Set(key, value) })
}

// #endregion async-store
