package recorder

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"interview-room/constant"
	"interview-room/device"
	"interview-room/entities"
)

// Artifact is the media constructed from the buffered chunks when recording stops.
type Artifact struct {
	ID              string
	MimeType        string
	Data            []byte
	Chunks          int
	DurationSeconds int
}

// SubmitFunc hands an artifact to the backend. A nil error means the backend
// accepted the answer.
type SubmitFunc func(ctx context.Context, artifact Artifact) error

type State struct {
	Status         constant.RecordingStatus `json:"status"`
	ElapsedSeconds int                      `json:"elapsed_seconds"`
	BufferedChunks int                      `json:"buffered_chunks"`
	BufferedBytes  int                      `json:"buffered_bytes"`
}

type Option func(*Controller)

// WithTick overrides the timer period. The timer counts one second per tick.
func WithTick(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// WithOnChange registers a callback invoked after every state change.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller is the capture lifecycle of one question:
//
//	IDLE -> RECORDING -> RECORDED -> UPLOADING -> UPLOADED
//	RECORDED -> IDLE (retake), UPLOADING -> RECORDED (submit failed)
//
// Operations that are not valid in the current state return
// entities.ErrInvalidTransition and change nothing.
type Controller struct {
	ops sync.Mutex

	mu         sync.Mutex
	status     constant.RecordingStatus
	elapsed    int
	chunks     [][]byte
	size       int
	artifact   *Artifact
	stream     device.Stream
	drained    chan struct{}
	stopTimer  chan struct{}
	generation uint64
	closed     bool

	tick     time.Duration
	onChange func(State)
}

func New(opts ...Option) *Controller {
	c := &Controller{
		status: constant.RecordingStatusIdle,
		tick:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{
		Status:         c.status,
		ElapsedSeconds: c.elapsed,
		BufferedChunks: len(c.chunks),
		BufferedBytes:  c.size,
	}
}

func (c *Controller) Status() constant.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}

// Start begins capturing from stream. The stream must be live.
func (c *Controller) Start(stream device.Stream) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return entities.ErrRoomClosed
	case c.status != constant.RecordingStatusIdle:
		c.mu.Unlock()
		return entities.ErrInvalidTransition
	case stream == nil || !stream.Live():
		c.mu.Unlock()
		return entities.ErrNoLiveStream
	}
	c.mu.Unlock()

	chunks, err := stream.StartCapture()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stream.StopCapture()
		return entities.ErrRoomClosed
	}
	c.status = constant.RecordingStatusRecording
	c.stream = stream
	c.chunks = nil
	c.size = 0
	c.artifact = nil
	c.drained = make(chan struct{})
	c.stopTimer = make(chan struct{})
	gen := c.generation
	go c.drain(gen, chunks, c.drained)
	go c.runTimer(gen, c.stopTimer)
	c.mu.Unlock()

	c.notify()
	return nil
}

func (c *Controller) drain(gen uint64, chunks <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		c.mu.Lock()
		if c.generation == gen {
			c.chunks = append(c.chunks, chunk)
			c.size += len(chunk)
		}
		c.mu.Unlock()
	}
}

func (c *Controller) runTimer(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			counted := c.generation == gen && c.status == constant.RecordingStatusRecording
			if counted {
				c.elapsed++
			}
			c.mu.Unlock()
			if counted {
				c.notify()
			}
		}
	}
}

// Stop ends capture. It waits until the stream has flushed every chunk, then
// builds the artifact.
func (c *Controller) Stop() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.status != constant.RecordingStatusRecording {
		c.mu.Unlock()
		return entities.ErrInvalidTransition
	}
	stream, drained := c.stream, c.drained
	gen := c.generation
	close(c.stopTimer)
	c.stopTimer = nil
	c.mu.Unlock()

	stream.StopCapture()
	<-drained

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return entities.ErrRoomClosed
	}
	c.status = constant.RecordingStatusRecorded
	c.drained = nil
	c.artifact = &Artifact{
		ID:              uuid.NewString(),
		MimeType:        stream.MimeType(),
		Data:            bytes.Join(c.chunks, nil),
		Chunks:          len(c.chunks),
		DurationSeconds: c.elapsed,
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Retake discards the recorded buffer and returns to IDLE.
func (c *Controller) Retake() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.status != constant.RecordingStatusRecorded {
		c.mu.Unlock()
		return entities.ErrInvalidTransition
	}
	c.resetLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

// Advance moves on to the next question. Only an uploaded answer may be left behind.
func (c *Controller) Advance() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.status != constant.RecordingStatusUploaded {
		c.mu.Unlock()
		return entities.ErrInvalidTransition
	}
	c.resetLocked()
	c.mu.Unlock()

	c.notify()
	return nil
}

func (c *Controller) resetLocked() {
	c.status = constant.RecordingStatusIdle
	c.elapsed = 0
	c.chunks = nil
	c.size = 0
	c.artifact = nil
	c.stream = nil
	c.generation++
}

// Artifact returns the media built on stop, if any.
func (c *Controller) Artifact() (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		return Artifact{}, false
	}
	return *c.artifact, true
}

// Submit uploads the recorded artifact through fn. On failure the buffer is
// kept and the controller returns to RECORDED so the same media can be
// resubmitted. A result that arrives after the controller was closed is
// dropped and reported as entities.ErrRoomClosed.
func (c *Controller) Submit(ctx context.Context, fn SubmitFunc) error {
	c.ops.Lock()
	c.mu.Lock()
	if len(c.chunks) == 0 {
		c.mu.Unlock()
		c.ops.Unlock()
		return entities.ErrEmptyRecording
	}
	if c.closed {
		c.mu.Unlock()
		c.ops.Unlock()
		return entities.ErrRoomClosed
	}
	if c.status != constant.RecordingStatusRecorded || c.artifact == nil {
		c.mu.Unlock()
		c.ops.Unlock()
		return entities.ErrInvalidTransition
	}
	c.status = constant.RecordingStatusUploading
	gen := c.generation
	artifact := *c.artifact
	c.mu.Unlock()
	c.ops.Unlock()
	c.notify()

	err := fn(ctx, artifact)

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return entities.ErrRoomClosed
	}
	if err != nil {
		c.status = constant.RecordingStatusRecorded
	} else {
		c.status = constant.RecordingStatusUploaded
	}
	c.mu.Unlock()

	c.notify()
	return err
}

// Close stops any capture in progress and discards the buffer. Pending
// submit results are ignored afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stream, drained := c.stream, c.drained
	recording := c.status == constant.RecordingStatusRecording
	if c.stopTimer != nil {
		close(c.stopTimer)
		c.stopTimer = nil
	}
	c.resetLocked()
	c.mu.Unlock()

	if recording && stream != nil {
		stream.StopCapture()
		<-drained
	}
}
