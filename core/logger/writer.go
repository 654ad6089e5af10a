package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// asyncSink copies encoded lines to its outputs from one goroutine so that
// slow disks never stall a Telegram handler.
type asyncSink struct {
	queue chan []byte
	done  chan struct{}
	outs  []io.Writer

	mu      sync.Mutex
	drained *sync.Cond
	pending int
	closed  bool
	err     error
}

func newAsyncSink(depth int, outs ...io.Writer) *asyncSink {
	if depth <= 0 {
		depth = 256
	}
	s := &asyncSink{
		queue: make(chan []byte, depth),
		done:  make(chan struct{}),
	}
	for _, w := range outs {
		if w != nil {
			s.outs = append(s.outs, w)
		}
	}
	s.drained = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *asyncSink) run() {
	defer close(s.done)
	for line := range s.queue {
		var werr error
		for _, w := range s.outs {
			if _, err := w.Write(line); err != nil && werr == nil {
				werr = err
			}
		}
		s.mu.Lock()
		if s.err == nil {
			s.err = werr
		}
		s.pending--
		if s.pending == 0 {
			s.drained.Broadcast()
		}
		s.mu.Unlock()
	}
}

// Write queues a copy of line. It blocks only when the queue is full.
func (s *asyncSink) Write(line []byte) error {
	if len(line) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSinkClosed
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.pending++
	s.mu.Unlock()

	s.queue <- append([]byte(nil), line...)
	return nil
}

// Sync waits until every queued line is written and syncs file outputs.
func (s *asyncSink) Sync() error {
	s.mu.Lock()
	for s.pending > 0 {
		s.drained.Wait()
	}
	err := s.err
	s.mu.Unlock()

	for _, w := range s.outs {
		if f, ok := w.(interface{ Sync() error }); ok && w != os.Stdout && w != os.Stderr {
			err = errors.Join(err, f.Sync())
		}
	}
	return err
}

// Close drains the queue and stops the writer goroutine. Outputs stay open.
func (s *asyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	for s.pending > 0 {
		s.drained.Wait()
	}
	s.mu.Unlock()

	close(s.queue)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// rotatingFile appends to path and renames it to path.1 once it would grow
// past maxBytes. A non-positive maxBytes disables rotation.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	f        *os.File
	size     int64
}

func openRotatingFile(path string, maxBytes int64) (*rotatingFile, error) {
	r := &rotatingFile{path: path, maxBytes: maxBytes}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f, r.size = f, info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", r.path, err)
	}
	r.f = nil
	renameErr := os.Rename(r.path, r.path+".1")
	if err := r.open(); err != nil {
		return errors.Join(renameErr, err)
	}
	if renameErr != nil {
		return fmt.Errorf("rotate %s: %w", r.path, renameErr)
	}
	return nil
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
