package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ev0/internal/common"
	"github.com/ternarybob/ev0/internal/models"
	"github.com/ternarybob/ev0/internal/services/botlogs"
	"github.com/ternarybob/ev0/internal/services/registry"
	"github.com/ternarybob/ev0/internal/services/runner"
)

const authorizedChat = "1001"

type fakeSender struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (f *fakeSender) Send(_ context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, chatID+"|"+text)
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1]
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Start(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockRunner) Stop(key string) error {
	return m.Called(key).Error(0)
}

func (m *mockRunner) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *mockRunner) Running(key string) bool {
	return m.Called(key).Bool(0)
}

type fakeTailer struct {
	lines []string
	err   error
	gotN  int
}

func (f *fakeTailer) Tail(_ string, n int) ([]string, error) {
	f.gotN = n
	return f.lines, f.err
}

var kst = time.FixedZone("KST", 9*3600)

func newTestDispatcher(t *testing.T, run runner.Runner, tail LogTailer) (*Dispatcher, *registry.Registry, *fakeSender) {
	t.Helper()
	logger := arbor.NewNoOpLogger()
	reg, err := registry.New(common.DefaultBots(), nil, logger)
	require.NoError(t, err)

	sender := &fakeSender{}
	d := NewDispatcher(reg, run, tail, sender, Config{ChatID: authorizedChat, Environment: "production", Location: kst}, logger)
	d.now = func() time.Time { return time.Date(2025, 1, 11, 0, 30, 0, 0, time.UTC) }
	return d, reg, sender
}

func send(t *testing.T, d *Dispatcher, text string) {
	t.Helper()
	require.NoError(t, d.Handle(context.Background(), Message{ChatID: authorizedChat, Text: text}))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
		ok      bool
	}{
		{"/status", "status", "", true},
		{"/run  oliveyoung ", "run", "oliveyoung", true},
		{"/log@ev0_bot cash", "log", "cash", true},
		{"/RUN bank", "run", "bank", true},
		{"/log\ncard", "log", "card", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}

	for _, tt := range tests {
		command, args, ok := ParseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.command, command, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestHandle_IgnoresOtherChats(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	require.NoError(t, d.Handle(context.Background(), Message{ChatID: "999", Text: "/help"}))
	require.NoError(t, d.Handle(context.Background(), Message{ChatID: authorizedChat, Text: "just chatting"}))
	assert.Empty(t, sender.replies)
}

func TestHandle_NoAuthorizedChatConfigured(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})
	d.config.ChatID = ""

	require.NoError(t, d.Handle(context.Background(), Message{ChatID: "", Text: "/help"}))
	assert.Empty(t, sender.replies)
}

func TestHandle_Help(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	send(t, d, "/start")
	reply := sender.last(t)
	assert.Contains(t, reply, authorizedChat+"|🤖 EV System Agent")
	assert.Contains(t, reply, "/run [bot]")
	assert.Contains(t, reply, "• oliveyoung : Olive Young scraper")
	assert.Contains(t, reply, "/run oliveyoung")
	assert.Contains(t, reply, "/log card")
}

func TestHandle_Status(t *testing.T) {
	d, reg, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})
	require.NoError(t, reg.MarkRunning("cash", time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)))

	send(t, d, "/status")
	reply := sender.last(t)

	assert.Contains(t, reply, "🕐 2025-01-11 09:30:00")
	assert.Contains(t, reply, "⏸️ Olive Young scraper\n   Schedule: daily 08:00\n   Last run: none\n   Next run: 2025-01-12 08:00:00")
	assert.Contains(t, reply, "🔄 Cash balance check")
	assert.Contains(t, reply, "   Last run: 2025-01-11 08:00:00")
	assert.Less(t, strings.Index(reply, "📦 EV2"), strings.Index(reply, "📦 EV3"))
}

func TestHandle_List(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	send(t, d, "/list")
	reply := sender.last(t)
	assert.Contains(t, reply, "• bank : Bank transaction download")
	assert.Contains(t, reply, "💡 Usage: /run <bot>")
}

func TestHandle_RunValidation(t *testing.T) {
	d, reg, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	send(t, d, "/run")
	assert.Contains(t, sender.last(t), "❓ Enter the bot to run.")

	send(t, d, "/run nope")
	assert.Contains(t, sender.last(t), "❌ Unknown bot: nope\n\nAvailable: oliveyoung, accounting, cash, bank, card")

	require.NoError(t, reg.MarkRunning("bank", time.Now()))
	send(t, d, "/run bank")
	assert.Contains(t, sender.last(t), "⚠️ Bank transaction download is already running.")

	send(t, d, "/run card")
	assert.Contains(t, sender.last(t), "restricted on this server")
}

func TestHandle_RunEnabled(t *testing.T) {
	run := &mockRunner{}
	run.On("Enabled").Return(true)
	run.On("Start", mock.Anything, "cash").Return(nil)
	run.On("Start", mock.Anything, "card").Return(errors.New("exec: node not found"))

	d, _, sender := newTestDispatcher(t, run, &fakeTailer{})

	send(t, d, "/run cash")
	assert.Contains(t, sender.last(t), "🚀 Cash balance check started.")

	send(t, d, "/run card")
	assert.Contains(t, sender.last(t), "❌ Failed to start Card purchase download: exec: node not found")

	run.AssertExpectations(t)
}

func TestHandle_Stop(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})
	send(t, d, "/stop cash")
	assert.Contains(t, sender.last(t), "⚠️ Stopping bots is restricted on this server.")

	run := &mockRunner{}
	run.On("Enabled").Return(true)
	run.On("Stop", "cash").Return(nil)
	run.On("Stop", "bank").Return(runner.ErrNotRunning)

	d, _, sender = newTestDispatcher(t, run, &fakeTailer{})
	send(t, d, "/stop cash")
	assert.Contains(t, sender.last(t), "⏹️ Stopping Cash balance check.")
	send(t, d, "/stop bank")
	assert.Contains(t, sender.last(t), "ℹ️ Bank transaction download is not running.")
	send(t, d, "/stop")
	assert.Contains(t, sender.last(t), "❓ Enter the bot to stop.")
	send(t, d, "/stop nope")
	assert.Contains(t, sender.last(t), "❌ Unknown bot: nope")

	run.AssertExpectations(t)
}

func TestHandle_Log(t *testing.T) {
	tail := &fakeTailer{lines: []string{"[2025-01-11 08:00:00] [INFO] start", "[2025-01-11 08:01:00] [SUCCESS] done"}}
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, tail)

	send(t, d, "/log cash")
	assert.Contains(t, sender.last(t), "📋 Cash balance check recent log\n\n[2025-01-11 08:00:00] [INFO] start\n[2025-01-11 08:01:00] [SUCCESS] done")
	assert.Equal(t, DefaultTailLines, tail.gotN)

	send(t, d, "/log")
	assert.Contains(t, sender.last(t), "❓ Enter the bot whose log to show.")

	send(t, d, "/log nope")
	assert.Contains(t, sender.last(t), "❌ Unknown bot: nope")

	tail.err = botlogs.ErrNoLogToday
	send(t, d, "/log cash")
	assert.Contains(t, sender.last(t), "📋 Cash balance check: no log today")

	tail.err = errors.New("permission denied")
	send(t, d, "/log cash")
	assert.Contains(t, sender.last(t), "❌ Failed to read log: permission denied")
}

func TestHandle_UnknownCommand(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	send(t, d, "/deploy")
	assert.Contains(t, sender.last(t), "❓ Unknown command.\nSee /help for usage.")
}

func TestHandle_SendFailure(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})
	sender.err = errors.New("network down")

	err := d.Handle(context.Background(), Message{ChatID: authorizedChat, Text: "/help"})
	assert.EqualError(t, err, "network down")
}

func TestAnnounce(t *testing.T) {
	d, _, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})

	require.NoError(t, d.Announce(context.Background()))
	assert.Equal(t, authorizedChat+"|🤖 EV0 Agent started (production)\n\n🕐 2025-01-11 09:30:00\n📱 /help for usage", sender.last(t))
}

func TestStatus_ReflectsFinishedRun(t *testing.T) {
	d, reg, sender := newTestDispatcher(t, runner.Disabled{}, &fakeTailer{})
	require.NoError(t, reg.MarkRunning("accounting", time.Now()))
	require.NoError(t, reg.MarkFinished("accounting", models.StatusError))

	send(t, d, "/status")
	assert.Contains(t, sender.last(t), "❌ Accounting voucher automation")
}

func TestHandle_RunIgnoresStaleRunningStatus(t *testing.T) {
	run := &mockRunner{}
	run.On("Enabled").Return(true)
	run.On("Start", mock.Anything, "cash").Return(nil)
	run.On("Start", mock.Anything, "bank").Return(fmt.Errorf("%w: bank", registry.ErrAlreadyRunning))

	d, reg, sender := newTestDispatcher(t, run, &fakeTailer{})
	reg.SyncFromProjection(map[string]models.ExecutionRecord{
		"cash": {BotID: "cash", Status: models.StatusRunning},
	})

	send(t, d, "/run cash")
	assert.Contains(t, sender.last(t), "🚀 Cash balance check started.")

	send(t, d, "/run bank")
	assert.Contains(t, sender.last(t), "⚠️ Bank transaction download is already running.")

	run.AssertExpectations(t)
}

type discardRecorder struct{}

func (discardRecorder) Append(context.Context, models.ExecutionRecord) error { return nil }

func TestHandle_RunAfterRestartWithLocalRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses the true command")
	}
	logger := arbor.NewNoOpLogger()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "EV3-Managing", "cash-bot"), 0755))

	reg, err := registry.New(common.DefaultBots(), nil, logger)
	require.NoError(t, err)
	// The newest record in the log says running, but no process exists.
	reg.SyncFromProjection(map[string]models.ExecutionRecord{
		"cash": {BotID: "cash", Status: models.StatusRunning},
	})

	logs := botlogs.NewService(t.TempDir(), kst, logger)
	local := runner.NewLocal(reg, discardRecorder{}, logs, base, "true", logger)
	t.Cleanup(func() { _ = local.Shutdown(context.Background()) })
	require.False(t, local.Running("cash"))

	sender := &fakeSender{}
	d := NewDispatcher(reg, local, logs, sender, Config{ChatID: authorizedChat, Location: kst}, logger)

	send(t, d, "/run cash")
	assert.Contains(t, sender.last(t), "🚀 Cash balance check started.")
}
