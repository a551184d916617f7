package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"frameworks/lookout/pkg/logging"
)

// ArgsFunc builds the command line arguments for one utterance.
type ArgsFunc func(u Utterance) []string

// EspeakArgs targets espeak-ng: 175 wpm and amplitude 100 are its defaults,
// scaled by the utterance's rate and volume.
func EspeakArgs(u Utterance) []string {
	voice := u.Locale
	if voice == "zh-CN" || voice == "zh" {
		voice = "cmn"
	}
	speed := int(175 * u.Rate)
	amplitude := int(100 * u.Volume)
	return []string{"-v", voice, "-s", strconv.Itoa(speed), "-a", strconv.Itoa(amplitude), u.Text}
}

// Command plays utterances by running a local TTS binary, one process per
// utterance.
type Command struct {
	binary string
	args   ArgsFunc
	logger logging.Logger

	probeOnce sync.Once
	path      string

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	running bool
}

// NewCommand returns a Command for binary. A nil args uses EspeakArgs.
func NewCommand(binary string, args ArgsFunc, logger logging.Logger) *Command {
	if args == nil {
		args = EspeakArgs
	}
	return &Command{binary: binary, args: args, logger: logger}
}

// Available resolves the binary on PATH the first time it is called.
func (c *Command) Available() bool {
	c.probeOnce.Do(func() {
		path, err := exec.LookPath(c.binary)
		if err != nil {
			if c.logger != nil {
				c.logger.WithField("binary", c.binary).Info("TTS binary not found; speech disabled")
			}
			return
		}
		c.path = path
	})
	return c.path != ""
}

func (c *Command) Speak(ctx context.Context, u Utterance) error {
	if !c.Available() {
		return ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, c.path, c.args(u)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", c.binary, err)
	}

	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.running = true

	go func() {
		err := cmd.Wait()
		cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.cancel = nil
		c.running = false
		if err != nil && procCtx.Err() == nil && c.logger != nil {
			c.logger.WithError(err).WithField("binary", c.binary).Warn("TTS process exited with error")
		}
	}()
	return nil
}

func (c *Command) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Running reports whether an utterance process is still playing.
func (c *Command) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Command) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
	c.gen++
}
