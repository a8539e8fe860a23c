package audio

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

const (
	captureSampleRate = 48000
	captureChannels   = 2
	// captureFrameSize is one S16LE frame across all channels in bytes.
	captureFrameSize = 2 * captureChannels
	// captureBufferBytes holds one second of captured audio.
	captureBufferBytes = captureSampleRate * captureFrameSize
	// captureReadSize is the chunk size read from the capture process.
	captureReadSize = 4096

	captureShutdownTimeout = 2 * time.Second
	captureInitialRetry    = 500 * time.Millisecond
	captureMaxRetry        = 30 * time.Second
	// captureStableRun resets the retry backoff once a capture has run this long.
	captureStableRun = 30 * time.Second
)

// platformCapture is how the current platform captures and lists audio.
type platformCapture struct {
	command       string
	defaultDevice string
	// usesFFmpeg means command is replaced by the resolved FFmpeg path.
	usesFFmpeg bool
	args       func(device string) []string
	listing    deviceListing
}

// arecordArgs captures raw S16LE from an ALSA device to stdout.
func arecordArgs(device string) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(captureSampleRate),
		"-c", strconv.Itoa(captureChannels),
		"-t", "raw",
		"-q",
		"-",
	}
}

// ffmpegCaptureArgs captures raw S16LE from an FFmpeg input device to stdout.
// Capture processes are stopped by signal, so stdin is never read.
func ffmpegCaptureArgs(inputFormat string) func(device string) []string {
	return func(device string) []string {
		return []string{
			"-nostdin",
			"-hide_banner",
			"-loglevel", "warning",
			"-f", inputFormat,
			"-i", device,
			"-vn",
			"-f", "s16le",
			"-ac", strconv.Itoa(captureChannels),
			"-ar", strconv.Itoa(captureSampleRate),
			"pipe:1",
		}
	}
}

// BuildCaptureCommand returns the command and arguments for audio capture.
// An empty device falls back to the platform default, then to the first
// detected device.
func BuildCaptureCommand(device, ffmpegPath string) (cmd string, args []string, err error) {
	return currentPlatform.build(device, ffmpegPath, Devices)
}

// NeedsFFmpeg reports whether capture on this platform runs through FFmpeg.
func NeedsFFmpeg() bool {
	return currentPlatform.usesFFmpeg
}

func (p platformCapture) build(device, ffmpegPath string, devices func() []Device) (string, []string, error) {
	device = cmp.Or(device, p.defaultDevice)
	if device == "" {
		found := devices()
		if len(found) == 0 {
			return "", nil, ErrNoAudioDevice
		}
		device = found[0].ID
	}

	command := p.command
	if p.usesFFmpeg && ffmpegPath != "" {
		command = ffmpegPath
	}
	return command, p.args(device), nil
}

// CaptureSource reads raw PCM from a capture process into a bounded ring
// buffer. Pull drains it, so a stalled or dead capture reads as silence.
// It is safe for concurrent use.
type CaptureSource struct {
	device     string
	ffmpegPath string

	mu      sync.Mutex
	ring    *ringbuffer.RingBuffer
	drain   []byte
	lastErr string
	running bool

	cancel  context.CancelFunc
	done    chan struct{}
	backoff *util.Backoff
}

// NewCaptureSource creates a capture source for device. Call Start to spawn
// the capture process.
func NewCaptureSource(device, ffmpegPath string) *CaptureSource {
	return &CaptureSource{
		device:     device,
		ffmpegPath: ffmpegPath,
		ring:       ringbuffer.New(captureBufferBytes),
		drain:      make([]byte, captureBufferBytes),
		backoff:    util.NewBackoff(captureInitialRetry, captureMaxRetry),
	}
}

// Start launches the capture loop. The capture process is restarted with
// exponential backoff whenever it exits, until ctx is cancelled or Close is called.
func (c *CaptureSource) Start(ctx context.Context) error {
	if _, _, err := BuildCaptureCommand(c.device, c.ffmpegPath); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
	return nil
}

// Pull implements Source. It writes at most len(dst) of the newest samples
// and discards anything older.
func (c *CaptureSource) Pull(dst []float64) (int, error) {
	c.mu.Lock()
	avail := c.ring.Length()
	var n int
	if avail > 0 {
		n, _ = c.ring.Read(c.drain[:avail])
	}
	data := c.drain[:n]
	want := (len(dst) * 2) &^ (captureFrameSize - 1)
	if len(data) > want {
		data = data[len(data)-want:]
	}
	written := DecodeS16LE(dst, data)
	c.mu.Unlock()
	return written, nil
}

// LastError returns the last error reported by the capture process.
func (c *CaptureSource) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Running reports whether a capture process is currently alive.
func (c *CaptureSource) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Close stops the capture process and waits for the loop to exit.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *CaptureSource) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		started := time.Now()
		stderr, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		msg := "capture process exited"
		if err != nil {
			msg = err.Error()
		}
		if stderr != "" {
			msg = stderr
		}
		c.mu.Lock()
		c.lastErr = msg
		c.mu.Unlock()

		if time.Since(started) >= captureStableRun {
			c.backoff.Reset()
		}
		delay := c.backoff.Next()
		slog.Warn("audio capture stopped, restarting", "error", msg, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *CaptureSource) runOnce(ctx context.Context) (string, error) {
	cmdName, args, err := BuildCaptureCommand(c.device, c.ffmpegPath)
	if err != nil {
		return "", err
	}

	slog.Info("starting audio capture", "command", cmdName, "input", c.device)

	cmd := exec.CommandContext(ctx, cmdName, args...)
	cmd.Cancel = func() error {
		return util.InterruptProcess(cmd.Process)
	}
	cmd.WaitDelay = captureShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", err
	}

	c.setRunning(true)
	c.copyFrames(stdout)
	err = cmd.Wait()
	c.setRunning(false)

	return util.LastLine(stderrBuf.String()), err
}

// copyFrames moves whole frames from r into the ring until r is exhausted.
func (c *CaptureSource) copyFrames(r io.Reader) {
	buf := make([]byte, captureReadSize)
	pending := 0
	for {
		n, err := r.Read(buf[pending:])
		pending += n
		whole := pending &^ (captureFrameSize - 1)
		if whole > 0 {
			c.store(buf[:whole])
			pending = copy(buf, buf[whole:pending])
		}
		if err != nil {
			return
		}
	}
}

// store appends p to the ring, dropping the oldest frames when full.
func (c *CaptureSource) store(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if over := len(p) - c.ring.Free(); over > 0 {
		over = (over + captureFrameSize - 1) &^ (captureFrameSize - 1)
		_, _ = c.ring.Read(c.drain[:min(over, c.ring.Length())])
	}
	if _, err := c.ring.Write(p); err != nil {
		slog.Debug("capture ring write failed", "error", err)
	}
}

func (c *CaptureSource) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
	if running {
		c.lastErr = ""
	}
}
