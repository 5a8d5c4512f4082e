package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"waterwise/internal/logger"
	"waterwise/internal/metrics"
	"waterwise/internal/models"
)

const maxStderrBytes = 64 * 1024

// ErrTimeout is wrapped by CommunicationError when the model exceeds its deadline.
var ErrTimeout = errors.New("prediction timed out")

// FailureError means the model process ran and exited non-zero.
type FailureError struct {
	ExitCode int
	Stderr   string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("model exited with code %d", e.ExitCode)
}

// CommunicationError means no usable result was obtained from the model even though
// it did not report a failure: malformed stdout, a timeout, or a process that could
// not be started or waited on.
type CommunicationError struct {
	Timeout bool
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("model communication error: %v", e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// Config describes how to launch the external model.
type Config struct {
	Command       string
	Args          []string
	Dir           string
	Env           []string
	Timeout       time.Duration
	MaxConcurrent int64
}

// Client invokes the model once per PredictionRequest.
type Client struct {
	cfg Config
	sem *semaphore.Weighted
}

func New(cfg Config) *Client {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Client{cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxConcurrent)}
}

// Args renders req as flag/value pairs in canonical order.
func Args(req models.PredictionRequest) []string {
	out := make([]string, 0, 2*len(req))
	for i, f := range models.PredictionFields {
		out = append(out, f.Flag, strconv.FormatFloat(req[i], 'g', -1, 64))
	}
	return out
}

// Predict runs the model and decodes its stdout. It never retries.
func (c *Client) Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, c.contextError(ctx, err)
	}
	defer c.sem.Release(1)

	args := append(append([]string{}, c.cfg.Args...), Args(req)...)
	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Dir = c.cfg.Dir
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Env...)
	}
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		cerr := c.contextError(ctx, ctx.Err())
		if cerr.Timeout {
			metrics.PredictionInvocationsTotal.WithLabelValues("timeout").Inc()
		} else {
			metrics.PredictionInvocationsTotal.WithLabelValues("canceled").Inc()
		}
		return nil, cerr
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		metrics.PredictionInvocationsTotal.WithLabelValues("failed").Inc()
		logger.Error("model exited non-zero", map[string]interface{}{
			"exit_code": exitErr.ExitCode(),
			"stderr":    stderr.String(),
			"stdout":    truncate(stdout.String(), 2048),
		})
		return nil, &FailureError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	case err != nil:
		metrics.PredictionInvocationsTotal.WithLabelValues("communication_error").Inc()
		return nil, &CommunicationError{Err: err}
	}

	result, err := decode(stdout.Bytes())
	if err != nil {
		metrics.PredictionInvocationsTotal.WithLabelValues("contract_error").Inc()
		logger.Error("model output violates result contract", map[string]interface{}{
			"error":  err.Error(),
			"stdout": truncate(stdout.String(), 2048),
		})
		return nil, &CommunicationError{Err: err}
	}
	result.Stderr = stderr.String()

	metrics.PredictionInvocationsTotal.WithLabelValues("succeeded").Inc()
	return result, nil
}

func (c *Client) contextError(ctx context.Context, err error) *CommunicationError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CommunicationError{Timeout: true, Err: fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)}
	}
	return &CommunicationError{Err: err}
}

func decode(stdout []byte) (*models.PredictionResult, error) {
	var result models.PredictionResult
	dec := json.NewDecoder(bytes.NewReader(stdout))
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode stdout: %w", err)
	}
	if dec.More() {
		return nil, errors.New("stdout holds more than one JSON value")
	}
	if result.Status == "" {
		return nil, errors.New("result has no status")
	}
	switch r := bytes.TrimSpace(result.Recommendations); {
	case len(r) == 0 || bytes.Equal(r, []byte("null")):
		result.Recommendations = nil
	case r[0] != '[':
		return nil, errors.New("recommendations is not an array")
	}
	return &result, nil
}

type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
