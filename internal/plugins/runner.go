package plugins

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"media-vault/internal/apperrors"
	"media-vault/internal/logging"
	"media-vault/internal/metrics"
	"media-vault/internal/startup"
)

const (
	messageBuffer  = 16
	maxMessageSize = 8 << 20
	maxStderr      = 4 << 10
	defaultTimeout = time.Minute
)

// HelperFunc serves one helper call made by a plugin. The returned value
// is sent back as the reply result.
type HelperFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Helpers maps helper method names to implementations.
type Helpers map[string]HelperFunc

// Runner starts plugin processes and speaks the message protocol with them.
type Runner struct {
	registry *Registry
	enabled  bool
	timeout  time.Duration
}

// NewRunner creates a Runner. A disabled runner returns empty output for
// every event.
func NewRunner(registry *Registry, cfg startup.PluginsConfig) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{registry: registry, enabled: cfg.Enabled, timeout: timeout}
}

// Registry returns the plugin registry.
func (r *Runner) Registry() *Registry { return r.registry }

// RunSerial runs the plugins bound to event in order and returns their
// merged output; later plugins override keys set by earlier ones. A failing
// plugin is logged and skipped. The error is non-nil only when ctx ends.
func (r *Runner) RunSerial(ctx context.Context, event string, input map[string]any, helpers Helpers) (Output, error) {
	out := Output{}
	if !r.enabled || r.registry == nil {
		return out, nil
	}

	for _, p := range r.registry.ForEvent(event) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		start := time.Now()
		res, err := r.run(ctx, p, event, input, out, helpers)
		metrics.PluginDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PluginInvocations.WithLabelValues(p.Name, event, "error").Inc()
			logging.Error("Plugin %s failed on %s: %v", p.Name, event, err)
			continue
		}
		metrics.PluginInvocations.WithLabelValues(p.Name, event, "success").Inc()
		for k, v := range res {
			out[k] = v
		}
	}
	return out, ctx.Err()
}

func (r *Runner) run(ctx context.Context, p Plugin, event string, input map[string]any, acc Output, helpers Helpers) (Output, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("%w: %s has no command", apperrors.ErrPlugin, p.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := logging.With("plugin").With().Str("plugin", p.Name).Str("event", event).Logger()

	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	if p.Path != "" {
		cmd.Dir = filepath.Dir(p.Path)
	}
	cmd.Env = append(os.Environ(), "MEDIA_VAULT_PLUGIN="+p.Name, "MEDIA_VAULT_EVENT="+event)

	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrPlugin, p.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrPlugin, p.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", apperrors.ErrPlugin, p.Name, err)
	}
	log.Debug().Int("generation", p.Generation).Msg("plugin started")

	data, err := json.Marshal(acc)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: encode input: %v", apperrors.ErrPlugin, err)
	}

	enc := json.NewEncoder(stdin)
	initMsg := Message{
		Type:   MsgInit,
		Event:  event,
		Plugin: p.Name,
		Input:  input,
		Args:   p.Args,
		Data:   data,
	}
	if err := enc.Encode(initMsg); err != nil {
		log.Warn().Err(err).Msg("failed to send init message")
	}

	msgs := make(chan Message, messageBuffer)
	readErr := make(chan error, 1)
	go readMessages(ctx, stdout, msgs, readErr)

	var (
		result    json.RawMessage
		gotResult bool
		stdinOpen = true
	)
	closeStdin := func() {
		if stdinOpen {
			_ = stdin.Close()
			stdinOpen = false
		}
	}

	for m := range msgs {
		switch m.Type {
		case MsgCall:
			if gotResult {
				continue
			}
			reply := callHelper(ctx, helpers, m)
			if err := enc.Encode(reply); err != nil {
				log.Warn().Err(err).Str("method", m.Method).Msg("failed to send reply")
			}
		case MsgLog:
			logPluginMessage(log, m)
		case MsgResult:
			if !gotResult {
				result = m.Data
				gotResult = true
				closeStdin()
			}
		default:
			log.Warn().Str("type", m.Type).Msg("ignoring unknown plugin message")
		}
	}
	closeStdin()

	waitErr := cmd.Wait()
	protoErr := <-readErr

	if !gotResult {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %s timed out after %v", apperrors.ErrPlugin, p.Name, r.timeout)
		case protoErr != nil:
			return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrPlugin, p.Name, protoErr)
		case waitErr != nil:
			return nil, fmt.Errorf("%w: %s exited: %v: %s", apperrors.ErrPlugin, p.Name, waitErr, stderr.String())
		default:
			return nil, fmt.Errorf("%w: %s exited without a result", apperrors.ErrPlugin, p.Name)
		}
	}
	if waitErr != nil {
		log.Warn().Err(waitErr).Msg("plugin exited with error after sending its result")
	}

	return decodeResult(log, result), nil
}

// readMessages decodes one message per line until EOF or a malformed line.
func readMessages(ctx context.Context, r io.Reader, msgs chan<- Message, errc chan<- error) {
	defer close(msgs)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxMessageSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			errc <- fmt.Errorf("malformed message %q: %v", truncate(string(line), 120), err)
			_, _ = io.Copy(io.Discard, r)
			return
		}
		select {
		case msgs <- m:
		case <-ctx.Done():
			errc <- ctx.Err()
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
	errc <- sc.Err()
}

func callHelper(ctx context.Context, helpers Helpers, m Message) Message {
	reply := Message{Type: MsgReply, ID: m.ID}

	fn, ok := helpers[m.Method]
	if !ok {
		metrics.PluginHelperCalls.WithLabelValues("unknown", "error").Inc()
		reply.Error = fmt.Sprintf("unknown method %q", m.Method)
		return reply
	}

	res, err := fn(ctx, m.Params)
	if err != nil {
		metrics.PluginHelperCalls.WithLabelValues(m.Method, "error").Inc()
		reply.Error = err.Error()
		return reply
	}
	metrics.PluginHelperCalls.WithLabelValues(m.Method, "success").Inc()
	reply.Result = res
	return reply
}

func logPluginMessage(log zerolog.Logger, m Message) {
	var ev *zerolog.Event
	switch strings.ToLower(m.Level) {
	case "debug", "trace":
		ev = log.Debug()
	case "warn", "warning":
		ev = log.Warn()
	case "error":
		ev = log.Error()
	default:
		ev = log.Info()
	}
	ev.Msg(m.Message)
}

// decodeResult keeps object results and ignores anything else.
func decodeResult(log zerolog.Logger, raw json.RawMessage) Output {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		log.Warn().Msg("plugin result is not an object, ignoring")
		return Output{}
	}
	var out Output
	if err := json.Unmarshal(trimmed, &out); err != nil {
		log.Warn().Err(err).Msg("plugin result could not be decoded, ignoring")
		return Output{}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return strings.TrimSpace(b.buf.String())
}
