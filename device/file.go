package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"interview-room/entities"
)

// FileDevice replays a media file as if it were a camera. Each capture reads
// the file from the start and emits ChunkSize pieces every ChunkInterval, the
// way a browser MediaRecorder emits timesliced blobs.
type FileDevice struct {
	Path          string
	MimeType      string
	ChunkSize     int
	ChunkInterval time.Duration
}

func (d *FileDevice) Acquire(ctx context.Context) (Stream, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", entities.ErrPermissionDenied, d.Path)
		}
		return nil, fmt.Errorf("%w: %w", entities.ErrDeviceUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", entities.ErrDeviceUnavailable, d.Path)
	}

	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	interval := d.ChunkInterval
	if interval <= 0 {
		interval = time.Second
	}
	mime := d.MimeType
	if mime == "" {
		mime = "video/webm"
	}

	return &fileStream{
		id:        uuid.NewString(),
		path:      d.Path,
		mimeType:  mime,
		chunkSize: chunkSize,
		interval:  interval,
		live:      true,
	}, nil
}

func (d *FileDevice) Release(stream Stream) {
	stream.Stop()
}

type fileStream struct {
	id        string
	path      string
	mimeType  string
	chunkSize int
	interval  time.Duration

	mu      sync.Mutex
	live    bool
	stop    chan struct{}
	stopped chan struct{}
}

func (s *fileStream) ID() string       { return s.id }
func (s *fileStream) MimeType() string { return s.mimeType }

func (s *fileStream) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *fileStream) StartCapture() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil, entities.ErrNoLiveStream
	}
	if s.stop != nil {
		return nil, errors.New("capture already running")
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrDeviceUnavailable, err)
	}

	out := make(chan []byte, 16)
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.pump(f, out, s.stop, s.stopped)
	return out, nil
}

// pump emits one chunk per tick until the file is exhausted or capture is
// stopped. On stop the chunk that is currently buffered is flushed so that no
// recorded media is lost.
func (s *fileStream) pump(f *os.File, out chan<- []byte, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(out)
	defer f.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	read := func() bool {
		buf := make([]byte, s.chunkSize)
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			out <- buf[:n]
		}
		return err == nil
	}

	for {
		select {
		case <-stop:
			read()
			return
		case <-ticker.C:
			if !read() {
				<-stop
				return
			}
		}
	}
}

func (s *fileStream) StopCapture() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (s *fileStream) Stop() {
	s.StopCapture()
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
}
