// Package process runs message handlers as external commands.
//
// The message is written to the command's stdin as JSON and its fields are
// exported as CROSSCHAIN_* environment variables. Stdout is the handler's
// value: parsed as JSON when it looks like JSON, returned as a trimmed string
// otherwise.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/router"
)

// EnvPrefix prefixes every variable exported to a command.
const EnvPrefix = "CROSSCHAIN_"

// DefaultGracePeriod is how long a cancelled command has to exit after SIGINT before it is killed.
const DefaultGracePeriod = 5 * time.Second

// ErrNotRegistered is returned when running a command name that is not in the allow-list.
var ErrNotRegistered = errors.New("process command not registered")

// Command is an allowed command execution.
type Command struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Runner executes registered commands. Only registered commands can run;
// message data reaches them through env vars and stdin, never as flags.
type Runner struct {
	commands    map[string]Command
	baseDir     string
	gracePeriod time.Duration
	logger      *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.gracePeriod = d
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		commands:    make(map[string]Command),
		gracePeriod: DefaultGracePeriod,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list under name.
func (r *Runner) Register(name string, cmd Command) {
	r.commands[name] = cmd
}

// Handler returns a router.Handler running the named command.
func (r *Runner) Handler(name string) router.Handler {
	return func(ctx context.Context, msg domain.Message) (any, error) {
		return r.Run(ctx, name, msg)
	}
}

// Run executes the named command for msg.
func (r *Runner) Run(ctx context.Context, name string, msg domain.Message) (any, error) {
	proc, ok := r.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	input, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message for %s: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.gracePeriod

	cmd.Env = cmd.Environ()
	for k, v := range proc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, messageEnv(msg)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("process handler finished", "name", name, "duration", time.Since(start), "err", err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(stdout.String()), nil
}

var envKeyUnsafe = regexp.MustCompile(`[^A-Z0-9_]`)

func messageEnv(msg domain.Message) []string {
	env := []string{
		EnvPrefix + "MESSAGE_TYPE=" + msg.Type,
		EnvPrefix + "SOURCE=" + msg.Source.String(),
		EnvPrefix + "DESTINATION=" + msg.Destination,
		EnvPrefix + "CORRELATION_ID=" + msg.CorrelationID,
		EnvPrefix + "HOPS=" + strconv.Itoa(msg.Hops),
	}

	args, ok := msg.Payload.(map[string]any)
	if !ok {
		if msg.Payload != nil {
			env = append(env, EnvPrefix+"PAYLOAD="+envValue(msg.Payload))
		}
		return env
	}
	for k, v := range args {
		key := envKeyUnsafe.ReplaceAllString(strings.ToUpper(k), "_")
		env = append(env, EnvPrefix+"ARG_"+key+"="+envValue(v))
	}
	return env
}

// envValue renders primitives with fmt and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func parseOutput(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
