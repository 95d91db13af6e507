package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"interview-room/constant"
	"interview-room/device"
	"interview-room/entities"
)

func newStream(t *testing.T) *device.MemoryStream {
	t.Helper()
	stream, err := device.NewMemoryDevice().Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return stream.(*device.MemoryStream)
}

func record(t *testing.T, c *Controller, stream *device.MemoryStream, chunks ...string) {
	t.Helper()
	if err := c.Start(stream); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, chunk := range chunks {
		stream.Emit([]byte(chunk))
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func accept(context.Context, Artifact) error { return nil }

func TestStartRequiresLiveStream(t *testing.T) {
	c := New()

	if err := c.Start(nil); !errors.Is(err, entities.ErrNoLiveStream) {
		t.Fatalf("expected ErrNoLiveStream, got %v", err)
	}

	stream := newStream(t)
	stream.Stop()
	if err := c.Start(stream); !errors.Is(err, entities.ErrNoLiveStream) {
		t.Fatalf("expected ErrNoLiveStream for stopped stream, got %v", err)
	}

	if got := c.Status(); got != constant.RecordingStatusIdle {
		t.Errorf("expected IDLE, got %s", got)
	}
}

func TestStopFlushesEveryChunk(t *testing.T) {
	c := New()
	stream := newStream(t)

	record(t, c, stream, "aa", "bbb", "c")

	state := c.State()
	if state.Status != constant.RecordingStatusRecorded {
		t.Fatalf("expected RECORDED, got %s", state.Status)
	}
	if state.BufferedChunks != 3 || state.BufferedBytes != 6 {
		t.Errorf("expected 3 chunks / 6 bytes, got %d / %d", state.BufferedChunks, state.BufferedBytes)
	}

	artifact, ok := c.Artifact()
	if !ok {
		t.Fatal("expected artifact after stop")
	}
	if string(artifact.Data) != "aabbbc" {
		t.Errorf("expected joined data, got %q", artifact.Data)
	}
	if artifact.MimeType != "video/webm" {
		t.Errorf("unexpected mime type %s", artifact.MimeType)
	}
}

func TestSubmitWithoutChunksFails(t *testing.T) {
	c := New()

	if err := c.Submit(context.Background(), accept); !errors.Is(err, entities.ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording from IDLE, got %v", err)
	}
	if got := c.Status(); got != constant.RecordingStatusIdle {
		t.Errorf("state changed to %s", got)
	}

	stream := newStream(t)
	record(t, c, stream)
	if err := c.Submit(context.Background(), accept); !errors.Is(err, entities.ErrEmptyRecording) {
		t.Fatalf("expected ErrEmptyRecording from empty RECORDED, got %v", err)
	}
	if got := c.Status(); got != constant.RecordingStatusRecorded {
		t.Errorf("state changed to %s", got)
	}
}

func TestRetakeResetsTimerAndBuffer(t *testing.T) {
	c := New(WithTick(5 * time.Millisecond))
	stream := newStream(t)

	if err := c.Start(stream); err != nil {
		t.Fatal(err)
	}
	stream.Emit([]byte("x"))
	waitFor(t, func() bool { return c.State().ElapsedSeconds >= 2 })
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	elapsed := c.State().ElapsedSeconds
	time.Sleep(20 * time.Millisecond)
	if got := c.State().ElapsedSeconds; got != elapsed {
		t.Errorf("timer kept running after stop: %d -> %d", elapsed, got)
	}

	if err := c.Retake(); err != nil {
		t.Fatalf("retake: %v", err)
	}
	state := c.State()
	if state.Status != constant.RecordingStatusIdle || state.ElapsedSeconds != 0 || state.BufferedChunks != 0 {
		t.Errorf("unexpected state after retake: %+v", state)
	}
	if _, ok := c.Artifact(); ok {
		t.Error("artifact should be discarded on retake")
	}
}

func TestSubmitFailureKeepsBuffer(t *testing.T) {
	c := New()
	stream := newStream(t)
	record(t, c, stream, "frame")

	failed := errors.Join(entities.ErrNetwork, errors.New("connection refused"))
	err := c.Submit(context.Background(), func(context.Context, Artifact) error { return failed })
	if !errors.Is(err, entities.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}

	state := c.State()
	if state.Status != constant.RecordingStatusRecorded || state.BufferedChunks != 1 {
		t.Fatalf("expected RECORDED with buffer, got %+v", state)
	}

	var resubmitted []byte
	err = c.Submit(context.Background(), func(_ context.Context, a Artifact) error {
		resubmitted = a.Data
		return nil
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if string(resubmitted) != "frame" {
		t.Errorf("resubmitted %q", resubmitted)
	}
	if got := c.Status(); got != constant.RecordingStatusUploaded {
		t.Errorf("expected UPLOADED, got %s", got)
	}
}

func TestUploadingIsVisibleDuringSubmit(t *testing.T) {
	c := New()
	stream := newStream(t)
	record(t, c, stream, "frame")

	var seen constant.RecordingStatus
	err := c.Submit(context.Background(), func(context.Context, Artifact) error {
		seen = c.Status()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != constant.RecordingStatusUploading {
		t.Errorf("expected UPLOADING during submit, got %s", seen)
	}
}

func TestAdvanceOnlyFromUploaded(t *testing.T) {
	c := New()
	stream := newStream(t)

	if err := c.Advance(); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from IDLE, got %v", err)
	}

	record(t, c, stream, "frame")
	if err := c.Advance(); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from RECORDED, got %v", err)
	}

	if err := c.Submit(context.Background(), accept); err != nil {
		t.Fatal(err)
	}
	if err := c.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	state := c.State()
	if state.Status != constant.RecordingStatusIdle || state.BufferedChunks != 0 || state.ElapsedSeconds != 0 {
		t.Errorf("unexpected state after advance: %+v", state)
	}
}

func TestInvalidTransitionsChangeNothing(t *testing.T) {
	c := New()
	stream := newStream(t)

	if err := c.Stop(); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Errorf("stop from IDLE: %v", err)
	}
	if err := c.Retake(); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Errorf("retake from IDLE: %v", err)
	}
	if err := c.Start(stream); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(stream); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Errorf("second start: %v", err)
	}
	if err := c.Retake(); !errors.Is(err, entities.ErrInvalidTransition) {
		t.Errorf("retake while recording: %v", err)
	}
	if got := c.Status(); got != constant.RecordingStatusRecording {
		t.Errorf("expected RECORDING, got %s", got)
	}
}

// Every path that reaches UPLOADED goes through an accepted submit.
func TestUploadedRequiresAcceptance(t *testing.T) {
	reject := func(context.Context, Artifact) error { return entities.ErrServerRejected }

	sequences := [][]string{
		{"start", "stop", "submit-fail", "submit-fail"},
		{"start", "stop", "retake", "start", "stop", "submit-fail"},
		{"start", "stop", "submit-fail", "retake", "advance"},
		{"stop", "retake", "advance", "submit-fail"},
	}
	for _, seq := range sequences {
		c := New()
		stream := newStream(t)
		for _, op := range seq {
			switch op {
			case "start":
				_ = c.Start(stream)
				stream.Emit([]byte("x"))
			case "stop":
				_ = c.Stop()
			case "retake":
				_ = c.Retake()
			case "advance":
				_ = c.Advance()
			case "submit-fail":
				_ = c.Submit(context.Background(), reject)
			}
			if c.Status() == constant.RecordingStatusUploaded {
				t.Fatalf("reached UPLOADED without acceptance in %v", seq)
			}
		}
	}
}

func TestCloseDiscardsInFlightSubmit(t *testing.T) {
	c := New()
	stream := newStream(t)
	record(t, c, stream, "frame")

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = c.Submit(context.Background(), func(context.Context, Artifact) error {
			<-release
			return nil
		})
	}()

	waitFor(t, func() bool { return c.Status() == constant.RecordingStatusUploading })
	c.Close()
	close(release)
	wg.Wait()

	if !errors.Is(err, entities.ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
	if got := c.Status(); got == constant.RecordingStatusUploaded {
		t.Error("late acceptance must not mark the closed controller UPLOADED")
	}
	if err := c.Start(stream); !errors.Is(err, entities.ErrRoomClosed) {
		t.Errorf("start after close: %v", err)
	}
}

func TestOnChangeReportsTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []constant.RecordingStatus
	c := New(WithTick(time.Hour), WithOnChange(func(s State) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	}))
	stream := newStream(t)
	record(t, c, stream, "x")
	if err := c.Submit(context.Background(), accept); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []constant.RecordingStatus{
		constant.RecordingStatusRecording,
		constant.RecordingStatusRecorded,
		constant.RecordingStatusUploading,
		constant.RecordingStatusUploaded,
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
