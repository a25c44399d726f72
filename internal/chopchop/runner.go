package chopchop

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/openrelik/chopchopgo-worker/internal/model"
)

// parseFailureMarker is emitted by chopchopgo on stderr when the
// timestamp of a log line does not match the selected parser target.
const parseFailureMarker = "Failed to match timestamp"

type StderrFunc func(ctx context.Context, line string)

// Command is one chopchopgo invocation.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result of a finished invocation. Stdout is the detection payload and
// may be empty.
type Result struct {
	Command Command
	Stdout  *bytes.Buffer
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
}

// ParseError reports the parser/target mismatch diagnosis.
type ParseError struct {
	Target string
	File   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chopchopgo could not parse %s with target %q: the log format likely does not match the selected target", e.File, e.Target)
}

// ExitError is the generic non-zero exit failure.
type ExitError struct {
	Code int
	File string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("chopchopgo exited with code %d while processing %s", e.Code, e.File)
}

// Runner executes the chopchopgo binary, one blocking invocation at a
// time. It performs no retries, a failed file aborts the batch.
type Runner struct {
	binary  string
	timeout time.Duration
}

func NewRunner(binary string, timeout time.Duration) Runner {
	if binary == "" {
		binary = "chopchopgo"
	}
	return Runner{
		binary:  binary,
		timeout: timeout,
	}
}

// Command builds the argument vector for one input file.
func (r Runner) Command(cfg ResolvedConfig, filePath string) Command {
	return Command{
		Path: r.binary,
		Args: []string{
			"-target", cfg.Target,
			"-rules", cfg.RulesPath,
			"-file", filePath,
			"-out", cfg.OutputFormat,
		},
	}
}

// Exec runs chopchopgo on one input file and blocks until the child
// terminates. Non-zero exits are classified: stderr carrying the
// timestamp parse failure marker yields *ParseError, anything else
// *ExitError. On success stderr content is logged at debug only.
func (r Runner) Exec(ctx context.Context, cfg ResolvedConfig, file model.InputFile, stderrFunc StderrFunc) (Result, error) {
	cmd := r.Command(cfg, file.Path)

	if r.timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", cmd.Path)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res := Result{Command: cmd}

	child := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	var stdout bytes.Buffer
	res.Stdout = &stdout
	child.Stdout = &stdout

	stderr, err := child.StderrPipe()
	if err != nil {
		return res, err
	}

	slog.DebugContext(ctx, "running chopchopgo", "command", cmd.String())

	res.Started = time.Now().UTC()
	if err := child.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		return res, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}

	var mx sync.Mutex
	var errLines []string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		processStderr(ctx, stderr, func(ctx context.Context, line string) {
			mx.Lock()
			errLines = append(errLines, line)
			mx.Unlock()
			if stderrFunc != nil {
				stderrFunc(ctx, line)
			}
		})
	}()

	wg.Wait()
	waitErr := child.Wait()
	res.Stopped = time.Now().UTC()
	res.State = child.ProcessState

	stderrText := strings.Join(errLines, "\n")
	if waitErr != nil {
		return res, classify(waitErr, cfg, file, stderrText)
	}

	if stderrText != "" {
		slog.DebugContext(ctx, "chopchopgo stderr", "file", file.Path, "stderr", stderrText)
	}
	return res, nil
}

func classify(waitErr error, cfg ResolvedConfig, file model.InputFile, stderrText string) error {
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("waiting on chopchopgo: %w", waitErr)
	}

	if strings.Contains(stderrText, parseFailureMarker) {
		return &ParseError{Target: cfg.Target, File: file.Name()}
	}
	return &ExitError{Code: exitErr.ExitCode(), File: file.Name()}
}

func processStderr(ctx context.Context, stderr io.Reader, stderrFunc StderrFunc) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		stderrFunc(ctx, scanner.Text())
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		slog.ErrorContext(ctx, "processing stderr", "error", err)
	}
}
