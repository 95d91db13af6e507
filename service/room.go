package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"interview-room/aggregate"
	"interview-room/constant"
	"interview-room/device"
	"interview-room/entities"
	"interview-room/recorder"
)

type RoomBackend interface {
	AnswerUploader
	SessionCompleter
	SnapshotFetcher
	StartSession(ctx context.Context) (string, error)
	ListQuestions(ctx context.Context) ([]entities.QuestionRef, error)
	AnswerStatus(ctx context.Context, sessionID, questionID string) (bool, error)
	MySessions(ctx context.Context) ([]*entities.InterviewSession, error)
}

type SessionArchiver interface {
	SaveSession(ctx context.Context, session *entities.ArchivedSession) error
}

type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseAnswering    Phase = "answering"
	PhaseProcessing   Phase = "processing"
	PhaseDone         Phase = "done"
	PhaseDeviceError  Phase = "device_error"
	PhaseUnauthorized Phase = "unauthorized"
	PhaseClosed       Phase = "closed"
)

const maxNotices = 20

// Notice is the single user-facing message produced by a failed command or
// a failed background poll.
type Notice struct {
	Command  string    `json:"command"`
	Message  string    `json:"message"`
	Terminal bool      `json:"terminal"`
	At       time.Time `json:"at"`
}

// RoomView is the read-only snapshot rendered by clients. Views are replaced
// wholesale on every change.
type RoomView struct {
	Phase         Phase                  `json:"phase"`
	SessionID     string                 `json:"session_id,omitempty"`
	Question      *entities.QuestionRef  `json:"question,omitempty"`
	QuestionIndex int                    `json:"question_index"`
	QuestionCount int                    `json:"question_count"`
	IsLast        bool                   `json:"is_last"`
	CanRecord     bool                   `json:"can_record"`
	Polling       bool                   `json:"polling"`
	Recording     recorder.State         `json:"recording"`
	Session       *aggregate.SessionView `json:"session,omitempty"`
	Notices       []Notice               `json:"notices"`
}

type RoomConfig struct {
	PollInterval    time.Duration
	MaxPollFailures int
	RecorderTick    time.Duration
}

// Room is one candidate's interview: it owns the capture device, the
// recording controller, the progression driver and the result poller, and
// exposes them as serialized commands plus a reactive view.
type Room struct {
	backend   RoomBackend
	devices   *device.Manager
	submitter *Submitter
	archive   SessionArchiver
	cfg       RoomConfig

	cmd sync.Mutex

	mu           sync.Mutex
	phase        Phase
	ctx          context.Context
	cancel       context.CancelFunc
	ctrl         *recorder.Controller
	progression  *Progression
	poller       *Poller
	polling      bool
	snapshot     *entities.InterviewSession
	notices      []Notice
	terminatedBy error
	wg           sync.WaitGroup

	view atomic.Pointer[RoomView]

	subMu sync.Mutex
	subs  map[chan RoomView]struct{}
}

// NewRoom wires a room. archive may be nil.
func NewRoom(backend RoomBackend, devices *device.Manager, submitter *Submitter, archive SessionArchiver, cfg RoomConfig) *Room {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 8 * time.Second
	}
	if cfg.MaxPollFailures <= 0 {
		cfg.MaxPollFailures = 5
	}
	if cfg.RecorderTick <= 0 {
		cfg.RecorderTick = time.Second
	}
	r := &Room{
		backend:   backend,
		devices:   devices,
		submitter: submitter,
		archive:   archive,
		cfg:       cfg,
		phase:     PhaseLobby,
		ctrl:      recorder.New(),
		subs:      make(map[chan RoomView]struct{}),
	}
	r.publish()
	return r
}

// View returns the current view.
func (r *Room) View() RoomView {
	return *r.view.Load()
}

// Subscribe streams views, starting with the current one. A subscriber that
// falls behind only sees the latest view.
func (r *Room) Subscribe() (<-chan RoomView, func()) {
	ch := make(chan RoomView, 1)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	ch <- r.View()
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, ch)
			close(ch)
			r.subMu.Unlock()
		})
	}
}

func (r *Room) publish() {
	r.mu.Lock()
	v := RoomView{
		Phase:     r.phase,
		Polling:   r.polling,
		Recording: r.ctrl.State(),
		Notices:   append([]Notice{}, r.notices...),
	}
	if r.progression != nil {
		q, i := r.progression.Current()
		v.SessionID = r.progression.SessionID()
		v.Question = &q
		v.QuestionIndex = i
		v.QuestionCount = len(r.progression.questions)
		v.IsLast = r.progression.IsLast()
	}
	v.CanRecord = r.phase == PhaseAnswering && v.Recording.Status == constant.RecordingStatusIdle
	if r.snapshot != nil {
		sv := aggregate.BuildSessionView(r.snapshot)
		v.Session = &sv
		v.SessionID = r.snapshot.ID
	}
	r.mu.Unlock()

	r.view.Store(&v)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (r *Room) addNoticeLocked(command string, err error, terminal bool) {
	r.notices = append(r.notices, Notice{
		Command:  command,
		Message:  entities.Describe(err),
		Terminal: terminal,
		At:       time.Now().UTC(),
	})
	if len(r.notices) > maxNotices {
		r.notices = r.notices[len(r.notices)-maxNotices:]
	}
}

// fail records exactly one notice for a failed command and returns err.
func (r *Room) fail(ctx context.Context, command string, err error) error {
	if err == nil {
		r.publish()
		return nil
	}
	r.mu.Lock()
	if errors.Is(err, entities.ErrRoomClosed) && r.terminatedBy != nil {
		err = r.terminatedBy
	}
	r.addNoticeLocked(command, err, entities.IsTerminal(err))
	r.mu.Unlock()

	zerolog.Ctx(ctx).Warn().Err(err).Str("command", command).Msg("room command failed")
	r.publish()
	return err
}

func (r *Room) requirePhase(want Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.phase == want:
		return nil
	case r.phase == PhaseClosed:
		return entities.ErrRoomClosed
	case r.phase == PhaseUnauthorized:
		if r.terminatedBy != nil {
			return r.terminatedBy
		}
		return entities.ErrUnauthorized
	case r.phase == PhaseDeviceError:
		return fmt.Errorf("%w: recording is disabled", entities.ErrPermissionDenied)
	}
	return entities.ErrInvalidTransition
}

func (r *Room) roomContext() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx
}

// Start opens the room for a new session, or resumes resumeID. Answers of a
// resumed session that were spooled but never accepted are uploaded first.
func (r *Room) Start(ctx context.Context, resumeID string) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	r.mu.Lock()
	switch r.phase {
	case PhaseLobby, PhaseClosed, PhaseUnauthorized:
	default:
		r.mu.Unlock()
		return r.fail(ctx, "start", entities.ErrInvalidTransition)
	}
	roomCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.ctx, r.cancel = roomCtx, cancel
	r.terminatedBy = nil
	r.mu.Unlock()

	err := r.start(roomCtx, resumeID)
	if err != nil {
		cancel()
	}
	return r.fail(ctx, "start", err)
}

func (r *Room) start(ctx context.Context, resumeID string) error {
	logger := zerolog.Ctx(ctx)

	sessionID := resumeID
	if sessionID == "" {
		id, err := r.backend.StartSession(ctx)
		if err != nil {
			return err
		}
		sessionID = id
	}
	ctx = logger.With().Str("session_id", sessionID).Logger().WithContext(ctx)
	logger = zerolog.Ctx(ctx)

	questions, err := r.backend.ListQuestions(ctx)
	if err != nil {
		return err
	}

	ctrl := recorder.New(
		recorder.WithTick(r.cfg.RecorderTick),
		recorder.WithOnChange(func(recorder.State) { r.publish() }),
	)
	progression, err := NewProgression(sessionID, questions, r.backend, ctrl)
	if err != nil {
		return fmt.Errorf("%w: %w", entities.ErrServerRejected, err)
	}
	poller := NewPoller(r.backend, sessionID,
		WithInterval(r.cfg.PollInterval),
		WithMaxFailures(r.cfg.MaxPollFailures),
		WithSnapshotHandler(r.onSnapshot),
		WithNoticeHandler(r.onPollNotice),
		WithTerminalHandler(r.onTerminal),
	)

	phase := PhaseAnswering
	var snapshot *entities.InterviewSession
	if resumeID != "" {
		phase, snapshot, err = r.resume(ctx, progression)
		if err != nil {
			return err
		}
	}

	if snapshot != nil {
		poller.Seed(snapshot)
	}

	r.mu.Lock()
	if ctx.Err() != nil {
		r.mu.Unlock()
		return entities.ErrRoomClosed
	}
	r.ctrl = ctrl
	r.progression = progression
	r.poller = poller
	r.snapshot = snapshot
	r.phase = phase
	r.notices = nil
	r.mu.Unlock()

	switch phase {
	case PhaseProcessing:
		r.startPolling(ctx)
	case PhaseAnswering:
		if _, err := r.devices.Acquire(ctx); err != nil {
			r.deviceFailed(ctx, err)
		}
	}
	logger.Info().Str("phase", string(phase)).Int("questions", len(questions)).Msg("room started")
	r.publish()
	return nil
}

// resume positions the progression after the answers the backend already
// has. It returns the phase the room should enter.
func (r *Room) resume(ctx context.Context, progression *Progression) (Phase, *entities.InterviewSession, error) {
	sessionID := progression.SessionID()
	snapshot, err := r.backend.GetSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	if snapshot.Status.Terminal() {
		return PhaseDone, snapshot, nil
	}

	answered := make(map[string]bool, len(snapshot.Answers))
	for _, a := range snapshot.Answers {
		answered[a.QuestionID] = true
	}
	if r.submitter != nil {
		delivered, err := r.submitter.Recover(ctx, sessionID)
		if errors.Is(err, entities.ErrUnauthorized) {
			return "", nil, err
		}
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("some spooled answers could not be delivered")
		}
		for _, id := range delivered {
			answered[id] = true
		}
	}

	for i, q := range progression.Questions() {
		if !answered[q.ID] {
			return PhaseAnswering, snapshot, progression.Seek(i)
		}
	}
	if err := progression.CompleteAnswered(ctx); err != nil {
		return "", nil, err
	}
	return PhaseProcessing, snapshot, nil
}

func (r *Room) deviceFailed(ctx context.Context, err error) {
	r.mu.Lock()
	if errors.Is(err, entities.ErrPermissionDenied) {
		r.phase = PhaseDeviceError
		r.addNoticeLocked("device", err, true)
	} else {
		r.addNoticeLocked("device", err, false)
	}
	r.mu.Unlock()
	zerolog.Ctx(ctx).Warn().Err(err).Msg("media device not acquired")
}

func (r *Room) StartRecording(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "start_recording", err)
	}
	stream, err := r.devices.Acquire(r.roomContext())
	if err != nil {
		if errors.Is(err, entities.ErrPermissionDenied) {
			r.mu.Lock()
			r.phase = PhaseDeviceError
			r.mu.Unlock()
		}
		return r.fail(ctx, "start_recording", err)
	}
	return r.fail(ctx, "start_recording", r.controller().Start(stream))
}

func (r *Room) StopRecording(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "stop_recording", err)
	}
	return r.fail(ctx, "stop_recording", r.controller().Stop())
}

func (r *Room) Retake(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "retake", err)
	}
	return r.fail(ctx, "retake", r.controller().Retake())
}

// SubmitAnswer uploads the recorded answer of the current question. On
// failure the recording is kept and may be submitted again. Accepting the
// answer to the last question completes the session; a failed completion
// leaves a notice and can be retried with Complete.
func (r *Room) SubmitAnswer(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "submit_answer", err)
	}
	r.mu.Lock()
	progression, ctrl := r.progression, r.ctrl
	r.mu.Unlock()

	question, _ := progression.Current()
	sessionID := progression.SessionID()
	err := ctrl.Submit(r.roomContext(), func(ctx context.Context, artifact recorder.Artifact) error {
		return r.submitter.Submit(ctx, sessionID, question, artifact)
	})
	if err != nil || !progression.IsLast() {
		return r.fail(ctx, "submit_answer", err)
	}
	if err := r.complete(); err != nil {
		r.fail(ctx, "complete", err)
	}
	return nil
}

func (r *Room) Advance(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "advance", err)
	}
	return r.fail(ctx, "advance", r.currentProgression().Advance())
}

// Complete finalizes the session after the last answer was accepted and
// starts polling for results. SubmitAnswer does this on its own; Complete
// retries a completion that failed there.
func (r *Room) Complete(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	if err := r.requirePhase(PhaseAnswering); err != nil {
		return r.fail(ctx, "complete", err)
	}
	return r.fail(ctx, "complete", r.complete())
}

// complete runs with r.cmd held.
func (r *Room) complete() error {
	roomCtx := r.roomContext()
	if err := r.currentProgression().Complete(roomCtx); err != nil {
		return err
	}

	r.mu.Lock()
	r.phase = PhaseProcessing
	r.mu.Unlock()
	r.devices.Close()
	r.startPolling(roomCtx)
	r.publish()
	return nil
}

// Refresh fetches the session now. While results are pending it restarts a
// stopped poller, otherwise it cuts the running poller's wait short.
func (r *Room) Refresh(ctx context.Context) error {
	r.cmd.Lock()
	defer r.cmd.Unlock()

	r.mu.Lock()
	phase, poller, polling := r.phase, r.poller, r.polling
	r.mu.Unlock()

	switch {
	case poller == nil || phase == PhaseClosed || phase == PhaseUnauthorized:
		return r.fail(ctx, "refresh", r.requirePhase(PhaseProcessing))
	case polling:
		poller.Nudge()
		return nil
	case phase == PhaseProcessing:
		r.startPolling(r.roomContext())
		return nil
	}
	_, err := poller.Cycle(r.roomContext())
	if errors.Is(err, errCycleBusy) {
		err = nil
	}
	return r.fail(ctx, "refresh", err)
}

// Nudge is called when the backend announces a change to sessionID.
func (r *Room) Nudge(ctx context.Context, sessionID string) {
	r.mu.Lock()
	poller, polling := r.poller, r.polling
	r.mu.Unlock()
	if poller == nil || poller.SessionID() != sessionID || !polling {
		zerolog.Ctx(ctx).Debug().Str("session_id", sessionID).Msg("session event ignored")
		return
	}
	poller.Nudge()
}

// AnswerProcessed reports whether the backend finished analysing one answer.
func (r *Room) AnswerProcessed(ctx context.Context, questionID string) (bool, error) {
	progression := r.currentProgression()
	if progression == nil {
		return false, entities.ErrInvalidTransition
	}
	return r.backend.AnswerStatus(ctx, progression.SessionID(), questionID)
}

// MySessions lists the candidate's sessions, for picking one to resume or
// review.
func (r *Room) MySessions(ctx context.Context) ([]aggregate.SessionView, error) {
	sessions, err := r.backend.MySessions(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]aggregate.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, aggregate.BuildSessionView(s))
	}
	return views, nil
}

func (r *Room) startPolling(ctx context.Context) {
	r.mu.Lock()
	poller := r.poller
	if r.polling || poller == nil {
		r.mu.Unlock()
		return
	}
	r.polling = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		err := poller.Run(ctx)

		// A poller replaced by a later Start must not touch the new one's state.
		r.mu.Lock()
		if r.poller == poller {
			r.polling = false
			if err == nil && r.phase == PhaseProcessing {
				if s := poller.Snapshot(); s != nil && s.Status.Terminal() {
					r.phase = PhaseDone
				}
			}
		}
		r.mu.Unlock()
		r.publish()
	}()
	r.publish()
}

func (r *Room) onSnapshot(s *entities.InterviewSession) {
	r.mu.Lock()
	r.snapshot = s
	r.mu.Unlock()
	r.publish()
}

func (r *Room) onPollNotice(err error, terminal bool) {
	if errors.Is(err, context.Canceled) {
		return
	}
	r.mu.Lock()
	r.addNoticeLocked("poll", err, terminal)
	r.mu.Unlock()
	r.publish()
}

func (r *Room) onTerminal(ctx context.Context, s *entities.InterviewSession) {
	if r.archive == nil {
		return
	}
	if err := r.archive.SaveSession(ctx, entities.NewArchivedSession(s)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", s.ID).Msg("failed to archive session results")
		return
	}
	zerolog.Ctx(ctx).Info().Str("session_id", s.ID).Msg("session results archived")
}

// Terminate ends the room after the backend rejected the credential. It
// may run while a command is in flight and does not wait for it.
func (r *Room) Terminate(ctx context.Context, cause error) {
	r.mu.Lock()
	if r.phase == PhaseClosed || r.phase == PhaseLobby {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseUnauthorized
	r.terminatedBy = cause
	r.polling = false
	cancel, ctrl := r.cancel, r.ctrl
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ctrl.Close()
	r.devices.Close()
	zerolog.Ctx(ctx).Warn().Err(cause).Msg("room terminated")
	r.publish()
}

// Leave closes the room. Capture stops, the stream is released, polling
// stops and a pending upload result is discarded.
func (r *Room) Leave(ctx context.Context) error {
	r.mu.Lock()
	cancel, ctrl := r.cancel, r.ctrl
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	ctrl.Close()

	r.cmd.Lock()
	defer r.cmd.Unlock()

	r.mu.Lock()
	if r.phase == PhaseClosed {
		r.mu.Unlock()
		return nil
	}
	r.phase = PhaseClosed
	ctrl = r.ctrl
	r.mu.Unlock()

	ctrl.Close()
	r.devices.Close()
	r.wg.Wait()

	r.mu.Lock()
	r.polling = false
	r.mu.Unlock()
	zerolog.Ctx(ctx).Info().Msg("room closed")
	r.publish()
	return nil
}

func (r *Room) controller() *recorder.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl
}

func (r *Room) currentProgression() *Progression {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progression
}
