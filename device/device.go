package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"interview-room/entities"
)

// Stream is a live camera+microphone handle. Capture produces encoded media
// chunks; StopCapture flushes whatever the encoder still holds and then closes
// the chunk channel.
type Stream interface {
	ID() string
	Live() bool
	MimeType() string
	StartCapture() (<-chan []byte, error)
	StopCapture()
	Stop()
}

// Device binds the room to a platform capture API.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
	Release(stream Stream)
}

// Manager owns the single stream of a room for the room's lifetime.
type Manager struct {
	device     Device
	maxRetries uint
	maxWait    time.Duration

	mu     sync.Mutex
	stream Stream
}

func NewManager(device Device, maxRetries uint) *Manager {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Manager{
		device:     device,
		maxRetries: maxRetries,
		maxWait:    5 * time.Second,
	}
}

// Acquire returns the room's stream, acquiring it on first use or after the
// held stream ended. An unavailable device is retried with exponential backoff; a permission denial
// is returned immediately.
func (m *Manager) Acquire(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		if m.stream.Live() {
			return m.stream, nil
		}
		zerolog.Ctx(ctx).Info().Str("stream_id", m.stream.ID()).Msg("media stream ended, releasing")
		m.device.Release(m.stream)
		m.stream = nil
	}

	operation := func() (Stream, error) {
		stream, err := m.device.Acquire(ctx)
		if err == nil {
			return stream, nil
		}
		if errors.Is(err, entities.ErrPermissionDenied) {
			return nil, backoff.Permanent(err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("device unavailable, retrying")
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = m.maxWait
	stream, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(m.maxRetries))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, entities.ErrPermissionDenied) || errors.Is(err, entities.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", entities.ErrDeviceUnavailable, err)
	}

	m.stream = stream
	zerolog.Ctx(ctx).Info().Str("stream_id", stream.ID()).Msg("media stream acquired")
	return stream, nil
}

// Stream returns the held stream, or nil.
func (m *Manager) Stream() Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Close releases the held stream. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	if stream != nil {
		m.device.Release(stream)
	}
}

// With runs fn with an acquired stream and releases it on every exit path.
func (m *Manager) With(ctx context.Context, fn func(ctx context.Context, stream Stream) error) (err error) {
	stream, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(ctx, stream)
}
