package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxRecordingSize bounds a single recording.
	MaxRecordingSize = 25 << 20
	chunkSize        = 32 << 10
)

var (
	ErrAlreadyRecording = errors.New("capture: already recording")
	ErrNotRecording     = errors.New("capture: not recording")
)

// MicrophoneError is returned when the microphone cannot be opened, for example
// because permission was denied or no device is present.
type MicrophoneError struct {
	Err error
}

func (e MicrophoneError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e MicrophoneError) Unwrap() error {
	return e.Err
}

// Source opens a stream of encoded audio from a microphone.
// Closing the stream ends the recording; any buffered audio is still readable until EOF.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CommandSource records by running an external program that writes encoded audio to stdout.
type CommandSource struct {
	Name string
	Args []string
	// KillAfter is how long the program has to exit after being interrupted.
	KillAfter time.Duration
}

// DefaultCommandSource records the default input device as MP3 with ffmpeg.
func DefaultCommandSource() CommandSource {
	input := []string{"-f", "pulse", "-i", "default"}
	switch runtime.GOOS {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "windows":
		input = []string{"-f", "dshow", "-i", "audio=default"}
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	args = append(args, "-ac", "1", "-f", "mp3", "-")
	return CommandSource{Name: "ffmpeg", Args: args, KillAfter: 2 * time.Second}
}

// Open starts the program. If it exits with an error before Close is called, reads
// return an error that includes what it wrote to stderr.
func (c CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	s := &commandStream{cmd: cmd, stdout: stdout, killAfter: c.KillAfter}
	cmd.Stderr = &s.stderr
	if err = cmd.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

type commandStream struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    bytes.Buffer
	killAfter time.Duration
	closed    atomic.Bool
	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

func (s *commandStream) Read(p []byte) (n int, err error) {
	n, err = s.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	// Wait closes stdout, so it must only run once reading has finished.
	s.waitOnce.Do(func() { s.waitErr = s.exitError(s.cmd.Wait()) })
	if s.waitErr != nil && !s.closed.Load() {
		return n, s.waitErr
	}
	return n, err
}

func (s *commandStream) exitError(err error) error {
	if err == nil {
		return nil
	}
	// The stderr buffer is complete once Wait has returned.
	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return fmt.Errorf("%s exited: %w: %s", s.cmd.Path, err, msg)
	}
	return fmt.Errorf("%s exited: %w", s.cmd.Path, err)
}

// Close interrupts the program so that it can finish writing, killing it if it doesn't exit in time.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
			s.cmd.Process.Kill()
			return
		}
		if s.killAfter > 0 {
			time.AfterFunc(s.killAfter, func() { s.cmd.Process.Kill() })
		}
	})
	return nil
}

// Recorder owns the microphone stream for the duration of one recording.
type Recorder struct {
	log    *slog.Logger
	source Source

	mu     sync.Mutex
	stream io.ReadCloser
	cancel context.CancelFunc
	done   chan error
	ended  chan struct{}
	buffer *AudioBuffer
}

func NewRecorder(log *slog.Logger, source Source) *Recorder {
	return &Recorder{
		log:    log,
		source: source,
		buffer: NewAudioBuffer(MaxRecordingSize),
	}
}

// Recording is false once the source has stopped, even if Stop has not been called yet.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil && !closed(r.ended)
}

// Ended is closed when the current recording's source stops producing audio, either
// because Stop was called or because the source exited on its own. Call Stop to find out why.
func (r *Recorder) Ended() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Start opens the microphone and collects audio until Stop or Close is called.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		if !closed(r.ended) {
			return ErrAlreadyRecording
		}
		if err := r.release(); err != nil {
			r.log.Debug("discarded failed recording", slog.Any("error", err))
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	stream, err := r.source.Open(ctx)
	if err != nil {
		cancel()
		return MicrophoneError{Err: err}
	}
	r.buffer.Clear()
	r.stream = stream
	r.cancel = cancel
	r.done = make(chan error, 1)
	r.ended = make(chan struct{})
	go r.collect(stream, r.done, r.ended)
	r.log.Debug("recording started")
	return nil
}

func (r *Recorder) collect(stream io.Reader, done chan<- error, ended chan<- struct{}) {
	defer close(ended)
	chunk := make([]byte, chunkSize)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if appendErr := r.buffer.Append(chunk[:n]); appendErr != nil {
				// Keep the stream flowing so the source can exit once closed.
				io.Copy(io.Discard, stream)
				done <- appendErr
				return
			}
		}
		if errors.Is(err, io.EOF) {
			done <- nil
			return
		}
		if err != nil {
			done <- err
			return
		}
	}
}

// Stop releases the microphone and returns the recording as raw base64, without a data URL prefix.
func (r *Recorder) Stop() (audioBase64 string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return "", ErrNotRecording
	}
	err = r.release()
	audio := r.buffer.Flush()
	if err != nil && !errors.Is(err, ErrBufferFull) {
		if len(audio) == 0 {
			return "", MicrophoneError{Err: err}
		}
		return "", fmt.Errorf("capture: recording failed: %w", err)
	}
	if len(audio) == 0 {
		return "", errors.New("capture: no audio was recorded")
	}
	r.log.Debug("recording stopped", slog.Int("bytes", len(audio)))
	return base64.StdEncoding.EncodeToString(audio), nil
}

// Close discards any recording in progress and releases the microphone.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil
	}
	r.release()
	r.buffer.Clear()
	return nil
}

func (r *Recorder) release() (err error) {
	closeErr := r.stream.Close()
	err = <-r.done
	r.cancel()
	r.stream = nil
	r.cancel = nil
	r.done = nil
	return errors.Join(err, closeErr)
}
