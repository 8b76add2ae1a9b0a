package runner

import (
	"context"
	"errors"
)

var (
	// ErrExecutionDisabled is returned by every operation of the Disabled runner.
	ErrExecutionDisabled = errors.New("bot execution is disabled on this server")
	ErrNotRunning        = errors.New("bot is not running")
)

// Runner starts and stops bot scripts.
type Runner interface {
	Start(ctx context.Context, key string) error
	Stop(key string) error
	Enabled() bool
	// Running reports whether this runner owns a live run of key.
	Running(key string) bool
}

// Disabled is the runner of hosted deployments, where bots run elsewhere and
// only report their executions.
type Disabled struct{}

func (Disabled) Start(context.Context, string) error { return ErrExecutionDisabled }
func (Disabled) Stop(string) error                   { return ErrExecutionDisabled }
func (Disabled) Enabled() bool                       { return false }
func (Disabled) Running(string) bool                 { return false }
