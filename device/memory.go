package device

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"interview-room/entities"
)

// MemoryDevice is an in-process device whose streams emit chunks pushed with
// Emit. Failures holds errors returned by successive Acquire calls before
// the device starts handing out streams.
type MemoryDevice struct {
	Failures []error

	mu       sync.Mutex
	acquired int
	released int
	streams  []*MemoryStream
}

func NewMemoryDevice(failures ...error) *MemoryDevice {
	return &MemoryDevice{Failures: failures}
}

func (d *MemoryDevice) Acquire(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.acquired++
	if len(d.Failures) > 0 {
		err := d.Failures[0]
		d.Failures = d.Failures[1:]
		return nil, err
	}
	s := &MemoryStream{id: uuid.NewString(), live: true}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *MemoryDevice) Release(stream Stream) {
	d.mu.Lock()
	d.released++
	d.mu.Unlock()
	stream.Stop()
}

func (d *MemoryDevice) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

func (d *MemoryDevice) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// MemoryStream buffers emitted chunks until capture stops, then flushes them.
type MemoryStream struct {
	id string

	mu      sync.Mutex
	live    bool
	out     chan []byte
	pending [][]byte
}

func (s *MemoryStream) ID() string       { return s.id }
func (s *MemoryStream) MimeType() string { return "video/webm" }

func (s *MemoryStream) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *MemoryStream) StartCapture() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil, entities.ErrNoLiveStream
	}
	if s.out != nil {
		return nil, errors.New("capture already running")
	}
	s.out = make(chan []byte, 1024)
	s.pending = nil
	return s.out, nil
}

// Emit queues a chunk as if the encoder produced it. Chunks are delivered on
// StopCapture, which models an encoder that holds data until flushed.
func (s *MemoryStream) Emit(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		s.pending = append(s.pending, chunk)
	}
}

func (s *MemoryStream) StopCapture() {
	s.mu.Lock()
	out, pending := s.out, s.pending
	s.out, s.pending = nil, nil
	s.mu.Unlock()

	if out == nil {
		return
	}
	for _, c := range pending {
		out <- c
	}
	close(out)
}

func (s *MemoryStream) Stop() {
	s.StopCapture()
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}
