package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/botlogs"
	"github.com/ternarybob/ev0/internal/services/registry"
)

const waitDelay = 2 * time.Second

// Recorder receives the running and final execution records of a run.
type Recorder interface {
	Append(ctx context.Context, record models.ExecutionRecord) error
}

// LogWriter receives the script output, one line at a time.
type LogWriter interface {
	Write(botKey string, level botlogs.Level, message string) error
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Local runs bot scripts as child processes of this server:
// <interpreter> <script> inside <baseDir>/<bot path>.
type Local struct {
	registry    *registry.Registry
	recorder    Recorder
	botLogs     LogWriter
	baseDir     string
	interpreter string
	logger      arbor.ILogger

	mu      sync.Mutex
	running map[string]*run
	wg      sync.WaitGroup
}

func NewLocal(reg *registry.Registry, recorder Recorder, botLogs LogWriter, baseDir, interpreter string, logger arbor.ILogger) *Local {
	if interpreter == "" {
		interpreter = "node"
	}
	return &Local{
		registry:    reg,
		recorder:    recorder,
		botLogs:     botLogs,
		baseDir:     baseDir,
		interpreter: interpreter,
		logger:      logger,
		running:     make(map[string]*run),
	}
}

func (l *Local) Enabled() bool { return true }

// Start launches the script of key and returns once the process is started.
// The run outlives ctx; use Stop or Shutdown to end it.
func (l *Local) Start(ctx context.Context, key string) error {
	bot, ok := l.registry.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownBot, key)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{id: common.NewRunID(), cancel: cancel, done: make(chan struct{})}
	startedAt := time.Now()

	l.mu.Lock()
	if _, owned := l.running[key]; !owned && bot.Status == models.StatusRunning {
		// Left over from a run this process does not own.
		l.logger.Warn().Str("bot", key).Msg("Clearing stale running state")
		_ = l.registry.MarkFinished(key, models.StatusIdle)
	}
	if err := l.registry.MarkRunning(key, startedAt); err != nil {
		l.mu.Unlock()
		cancel()
		return err
	}
	l.running[key] = r
	l.mu.Unlock()

	cmd := exec.CommandContext(runCtx, l.interpreter, bot.Script)
	cmd.Dir = filepath.Join(l.baseDir, bot.Path)
	cmd.Stdout = &lineWriter{emit: func(line string) { l.botLog(key, botlogs.LevelInfo, line) }}
	cmd.Stderr = &lineWriter{emit: func(line string) { l.botLog(key, botlogs.LevelError, line) }}
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		cancel()
		l.mu.Lock()
		delete(l.running, key)
		l.mu.Unlock()

		l.botLog(key, botlogs.LevelError, "Failed to start: "+err.Error())
		l.record(ctx, bot, r.id, models.StatusError, startedAt, err)
		_ = l.registry.MarkFinished(key, models.StatusError)
		return fmt.Errorf("failed to start bot %s: %w", key, err)
	}

	l.botLog(key, botlogs.LevelInfo, fmt.Sprintf("%s started (%s %s)", bot.Name, l.interpreter, bot.Script))
	l.record(ctx, bot, r.id, models.StatusRunning, startedAt, nil)
	l.logger.Info().Str("bot", key).Str("run_id", r.id).Int("pid", cmd.Process.Pid).Msg("Bot started")

	l.wg.Add(1)
	common.SafeGo(l.logger, "runner:"+key, func() {
		defer l.wg.Done()
		defer close(r.done)
		l.wait(runCtx, cmd, bot, r, startedAt)
	})
	return nil
}

func (l *Local) wait(runCtx context.Context, cmd *exec.Cmd, bot registry.Bot, r *run, startedAt time.Time) {
	err := cmd.Wait()
	for _, w := range []interface{}{cmd.Stdout, cmd.Stderr} {
		if lw, ok := w.(*lineWriter); ok {
			lw.flush()
		}
	}

	status := models.StatusSuccess
	switch {
	case runCtx.Err() != nil:
		status = models.StatusError
		err = errors.New("stopped")
		l.botLog(bot.Key, botlogs.LevelWarn, bot.Name+" stopped")
	case err != nil:
		status = models.StatusError
		l.botLog(bot.Key, botlogs.LevelError, bot.Name+" failed: "+err.Error())
	default:
		l.botLog(bot.Key, botlogs.LevelSuccess, bot.Name+" finished")
	}

	l.mu.Lock()
	delete(l.running, bot.Key)
	l.mu.Unlock()
	r.cancel()

	l.record(context.Background(), bot, r.id, status, startedAt, err)
	if markErr := l.registry.MarkFinished(bot.Key, status); markErr != nil {
		l.logger.Warn().Err(markErr).Str("bot", bot.Key).Msg("Failed to update bot state")
	}

	l.logger.Info().
		Str("bot", bot.Key).
		Str("run_id", r.id).
		Str("status", status).
		Dur("duration", time.Since(startedAt)).
		Msg("Bot finished")
}

// Stop cancels the run of key. The final record is written once the process exits.
func (l *Local) Stop(key string) error {
	if _, ok := l.registry.Get(key); !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownBot, key)
	}

	l.mu.Lock()
	r, ok := l.running[key]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, key)
	}

	r.cancel()
	return nil
}

// Running reports whether a process of key is alive.
func (l *Local) Running(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.running[key]
	return ok
}

// Shutdown stops every run and waits for the final records, or for ctx.
func (l *Local) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for _, r := range l.running {
		r.cancel()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) record(ctx context.Context, bot registry.Bot, runID, status string, startedAt time.Time, runErr error) {
	now := time.Now()
	rec := models.NewExecutionRecord(bot.Key, bot.Name, status, now)
	_ = rec.Set("runId", runID)
	_ = rec.Set("category", bot.Category)
	if status != models.StatusRunning {
		_ = rec.Set("durationMs", now.Sub(startedAt).Milliseconds())
	}
	if runErr != nil {
		_ = rec.Set("error", runErr.Error())
	}

	if err := l.recorder.Append(ctx, rec); err != nil {
		l.logger.Error().Err(err).Str("bot", bot.Key).Str("status", status).Msg("Failed to record execution")
	}
}

func (l *Local) botLog(key string, level botlogs.Level, message string) {
	if l.botLogs == nil {
		return
	}
	if err := l.botLogs.Write(key, level, message); err != nil {
		l.logger.Warn().Err(err).Str("bot", key).Msg("Failed to write bot log")
	}
}

// lineWriter splits process output into lines.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line stays buffered
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.send(line)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.send(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) send(line string) {
	if line = strings.TrimRight(line, "\r\n"); line != "" {
		w.emit(line)
	}
}
