package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"streamcorder/internal/core/domain"
	"streamcorder/internal/core/ports"
	"streamcorder/internal/infrastructure/monitoring"
	"streamcorder/pkg/retry"
	"streamcorder/pkg/tracing"

	"go.uber.org/zap"
)

// Config bounds the supervisor's blocking waits and restart policy.
type Config struct {
	// StartGracePeriod is how long a Starting session may take before it
	// is considered live anyway (output file growth confirms earlier).
	StartGracePeriod time.Duration
	// StopGracePeriod is how long a graceful termination may take before
	// escalating to a forced kill.
	StopGracePeriod time.Duration
	// MaxRestarts bounds automatic respawns after a crash; exceeding it
	// leaves the session Errored until a manual start.
	MaxRestarts int
	// Backoff shapes the delay between automatic restarts.
	Backoff retry.Config
}

// Supervisor owns one recording session per enabled stream: it spawns,
// monitors and stops the encoder subprocess, and reports every state
// transition through the broadcaster.
type Supervisor struct {
	registry    ports.Registry
	broadcaster ports.Broadcaster
	uploads     ports.UploadQueue // may be nil; used to enqueue finished files
	runner      Runner
	metrics     *monitoring.Collector
	cfg         Config

	sessions map[string]*session
	mu       sync.Mutex

	done chan struct{}

	logger *zap.SugaredLogger
}

// session is owned exclusively by the supervisor. opMu serializes
// start/stop/restart for one stream so a Stop racing a completing Start
// still reaches Stopped without leaking the subprocess; distinct
// streams proceed independently.
type session struct {
	stream domain.StreamConfig

	opMu sync.Mutex

	mu            sync.Mutex
	state         domain.SessionState
	proc          ProcessHandle
	outputPath    string
	startedAt     time.Time
	restartCount  int
	stopRequested bool
	exited        chan struct{}
}

func NewSupervisor(
	registry ports.Registry,
	broadcaster ports.Broadcaster,
	uploads ports.UploadQueue,
	runner Runner,
	metrics *monitoring.Collector,
	cfg Config,
	logger *zap.SugaredLogger,
) *Supervisor {
	return &Supervisor{
		registry:    registry,
		broadcaster: broadcaster,
		uploads:     uploads,
		runner:      runner,
		metrics:     metrics,
		cfg:         cfg,
		sessions:    make(map[string]*session),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start spawns the encoder for the named stream. It is idempotent: a
// session already Starting or Running is left alone.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	ctx, span := tracing.TraceRecordingOperation(ctx, "start", name)
	defer span.End()

	cfg, err := s.registry.Get(name)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return fmt.Errorf("stream %q: %w", name, domain.ErrStreamDisabled)
	}

	sess := s.session(name, cfg)
	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	sess.mu.Lock()
	if sess.state == domain.SessionStarting || sess.state == domain.SessionRunning {
		sess.mu.Unlock()
		return nil
	}
	// A manual start resets the crash budget.
	sess.stopRequested = false
	sess.restartCount = 0
	sess.mu.Unlock()

	if err := s.spawn(sess); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// Stop terminates the named stream's encoder. Without a session it is a
// successful no-op.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	ctx, span := tracing.TraceRecordingOperation(ctx, "stop", name)
	defer span.End()

	s.mu.Lock()
	sess, ok := s.sessions[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sess.opMu.Lock()
	defer sess.opMu.Unlock()

	sess.mu.Lock()
	sess.stopRequested = true
	proc := sess.proc
	exited := sess.exited
	outputPath := sess.outputPath
	if proc == nil {
		// Errored or never-spawned session; nothing to terminate.
		sess.state = domain.SessionStopped
		sess.mu.Unlock()
		s.finishStop(ctx, sess, outputPath)
		return nil
	}
	sess.state = domain.SessionStopping
	sess.mu.Unlock()
	s.publishState(sess)

	if err := proc.Terminate(); err != nil {
		s.logger.Warnw("graceful termination failed, killing",
			"stream", name, "pid", proc.Pid(), "error", err)
		proc.Kill()
	}

	select {
	case <-exited:
	case <-time.After(s.cfg.StopGracePeriod):
		s.logger.Warnw("stop grace period elapsed, killing encoder",
			"stream", name, "pid", proc.Pid())
		proc.Kill()
		select {
		case <-exited:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	sess.mu.Lock()
	sess.state = domain.SessionStopped
	sess.mu.Unlock()
	s.finishStop(ctx, sess, outputPath)
	return nil
}

// finishStop publishes the terminal transition, removes the session and
// hands the finished file to the upload queue.
func (s *Supervisor) finishStop(ctx context.Context, sess *session, outputPath string) {
	s.publishState(sess)

	s.mu.Lock()
	delete(s.sessions, sess.stream.Name)
	s.mu.Unlock()

	if s.uploads == nil || !sess.stream.UploadToYouTube || outputPath == "" {
		return
	}
	if _, err := os.Stat(outputPath); err != nil {
		return
	}
	if _, err := s.uploads.Enqueue(ctx, outputPath, sess.stream.Name); err != nil {
		s.logger.Warnw("failed to enqueue finished recording",
			"stream", sess.stream.Name, "path", outputPath, "error", err)
	}
}

// StartAll starts every enabled stream; the first error is returned but
// the remaining streams are still attempted.
func (s *Supervisor) StartAll(ctx context.Context) error {
	var firstErr error
	for _, cfg := range s.registry.Enabled() {
		if err := s.Start(ctx, cfg.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every active session.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := s.Stop(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports every configured stream with its session state.
func (s *Supervisor) Status() domain.SupervisorStatus {
	configs := s.registry.List()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.SupervisorStatus{
		Streams: make([]domain.StreamStatus, 0, len(configs)),
	}
	for _, cfg := range configs {
		state := domain.SessionIdle
		if sess, ok := s.sessions[cfg.Name]; ok {
			sess.mu.Lock()
			state = sess.state
			sess.mu.Unlock()
		}
		if state == domain.SessionRunning {
			status.ActiveStreams++
		}
		status.Streams = append(status.Streams, domain.StreamStatus{
			Name:    cfg.Name,
			Enabled: cfg.Enabled,
			State:   state,
		})
	}
	return status
}

// Shutdown stops all sessions and cancels pending restarts.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	close(s.done)
	return s.StopAll(ctx)
}

func (s *Supervisor) session(name string, cfg domain.StreamConfig) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[name]
	if !ok {
		sess = &session{stream: cfg, state: domain.SessionIdle}
		s.sessions[name] = sess
	}
	return sess
}

// spawn starts the encoder subprocess. Callers must hold opMu.
func (s *Supervisor) spawn(sess *session) error {
	stream := sess.stream

	if err := os.MkdirAll(stream.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", domain.ErrSpawnFailed, err)
	}

	outputPath := filepath.Join(stream.OutputDir,
		fmt.Sprintf("%s_%s.mp4", stream.Name, time.Now().Format("20060102_150405")))
	logPath := filepath.Join(stream.OutputDir, stream.Name+".log")
	argv := BuildCommand(stream, outputPath)

	sess.mu.Lock()
	sess.state = domain.SessionStarting
	sess.outputPath = outputPath
	sess.mu.Unlock()
	s.publishState(sess)

	proc, err := s.runner.Start(argv, logPath)
	if err != nil {
		s.logger.Errorw("encoder spawn failed", "stream", stream.Name, "error", err)
		sess.mu.Lock()
		sess.state = domain.SessionErrored
		sess.mu.Unlock()
		s.publishState(sess)
		s.notify("Recording failed", fmt.Sprintf("could not start encoder for %s: %v", stream.Name, err), domain.SeverityError)
		s.scheduleRestart(sess)
		return err
	}

	exited := make(chan struct{})
	sess.mu.Lock()
	sess.proc = proc
	sess.exited = exited
	sess.startedAt = time.Now()
	sess.mu.Unlock()

	s.logger.Infow("encoder started",
		"stream", stream.Name, "pid", proc.Pid(), "output", outputPath)

	go s.confirmLiveness(sess, exited, outputPath)
	go s.watch(sess, proc, exited)
	return nil
}

// confirmLiveness promotes Starting to Running once the output file
// begins growing, or once the grace period elapses with the process
// still alive.
func (s *Supervisor) confirmLiveness(sess *session, exited chan struct{}, outputPath string) {
	deadline := time.NewTimer(s.cfg.StartGracePeriod)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-exited:
			return
		case <-s.done:
			return
		case <-deadline.C:
			s.promote(sess, exited)
			return
		case <-tick.C:
			if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
				s.promote(sess, exited)
				return
			}
		}
	}
}

func (s *Supervisor) promote(sess *session, exited chan struct{}) {
	sess.mu.Lock()
	// Only promote the session generation we were watching.
	if sess.state != domain.SessionStarting || sess.exited != exited {
		sess.mu.Unlock()
		return
	}
	sess.state = domain.SessionRunning
	sess.mu.Unlock()

	s.logger.Infow("recording confirmed live", "stream", sess.stream.Name)
	s.publishState(sess)
}

// watch waits for the subprocess to exit and classifies the exit as an
// expected stop or a crash.
func (s *Supervisor) watch(sess *session, proc ProcessHandle, exited chan struct{}) {
	err := proc.Wait()
	close(exited)

	sess.mu.Lock()
	if sess.proc == proc {
		sess.proc = nil
	}
	stopRequested := sess.stopRequested
	state := sess.state
	sess.mu.Unlock()

	if stopRequested || state == domain.SessionStopping || state == domain.SessionStopped {
		// Stop() owns the remaining transitions.
		return
	}

	// Unexpected exit while Starting or Running.
	s.logger.Errorw("encoder exited unexpectedly",
		"stream", sess.stream.Name, "state", state.String(), "error", err)
	s.metrics.RecordEncoderCrash(sess.stream.Name)

	sess.mu.Lock()
	sess.state = domain.SessionErrored
	sess.mu.Unlock()
	s.publishState(sess)
	s.notify("Recording interrupted",
		fmt.Sprintf("encoder for %s exited unexpectedly", sess.stream.Name), domain.SeverityError)

	s.scheduleRestart(sess)
}

// scheduleRestart respawns an Errored session after backoff, up to the
// configured restart budget.
func (s *Supervisor) scheduleRestart(sess *session) {
	sess.mu.Lock()
	if sess.stopRequested {
		sess.mu.Unlock()
		return
	}
	if sess.restartCount >= s.cfg.MaxRestarts {
		sess.mu.Unlock()
		s.notify("Recording stopped",
			fmt.Sprintf("%s failed %d times; start it manually once the source is fixed",
				sess.stream.Name, s.cfg.MaxRestarts+1), domain.SeverityError)
		return
	}
	sess.restartCount++
	attempt := sess.restartCount
	sess.mu.Unlock()

	delay := retry.Delay(s.cfg.Backoff, attempt-1)
	s.logger.Infow("scheduling encoder restart",
		"stream", sess.stream.Name, "attempt", attempt, "delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}

		sess.opMu.Lock()
		defer sess.opMu.Unlock()

		sess.mu.Lock()
		if sess.stopRequested || sess.state != domain.SessionErrored {
			sess.mu.Unlock()
			return
		}
		sess.mu.Unlock()

		s.metrics.RecordSessionRestart(sess.stream.Name)
		if err := s.spawn(sess); err != nil {
			s.logger.Errorw("restart spawn failed", "stream", sess.stream.Name, "error", err)
		}
	}()
}

func (s *Supervisor) publishState(sess *session) {
	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	running, recording := s.sessionCounts()
	s.metrics.SetActiveRecordings(running)
	s.broadcaster.Publish(domain.RecordingState{
		StreamName:    sess.stream.Name,
		State:         state,
		Recording:     recording,
		ActiveStreams: running,
	})
}

// sessionCounts returns the number of confirmed Running sessions and
// whether anything is recording at all (Starting included).
func (s *Supervisor) sessionCounts() (running int, recording bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		sess.mu.Lock()
		switch sess.state {
		case domain.SessionRunning:
			running++
			recording = true
		case domain.SessionStarting:
			recording = true
		}
		sess.mu.Unlock()
	}
	return running, recording
}

func (s *Supervisor) notify(title, body string, severity domain.Severity) {
	s.broadcaster.Publish(domain.Notification{Title: title, Body: body, Severity: severity})
}
