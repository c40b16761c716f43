package voice

import (
	"errors"
	"strings"
	"time"

	"github.com/antoniostano/avatarvoice/internal/protocol"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "pcm16"
)

var (
	ErrSessionBusy     = errors.New(protocol.CodeSessionBusy)
	ErrAudioNotStarted = errors.New(protocol.CodeAudioNotStarted)
)

// State is the capture state of one connection. The zero value is Idle.
// Transitions return a new value; the connection loop is the only owner.
type State struct {
	ProjectID  string
	AvatarID   string
	SampleRate int
	Channels   int
	Format     string
	Language   string
	Buffer     []byte
	Busy       bool
	Cancelled  bool
}

// Capture is the audio and metadata handed to a turn on audio.stop.
type Capture struct {
	ProjectID  string
	AvatarID   string
	SampleRate int
	Channels   int
	Format     string
	Language   string
	Audio      []byte
	StoppedAt  time.Time
}

func Idle() State { return State{} }

// IsIdle reports whether s carries no capture and no turn.
func (s State) IsIdle() bool {
	return s.ProjectID == "" && s.AvatarID == "" && len(s.Buffer) == 0 && !s.Busy && !s.Cancelled &&
		s.SampleRate == 0 && s.Channels == 0 && s.Format == "" && s.Language == ""
}

// Capturing reports whether binary frames are currently accepted.
func (s State) Capturing() bool {
	return s.ProjectID != "" && !s.Busy
}

// Start opens a fresh capture. Missing values fall back to defaults; the
// language falls back to defaultLanguage, else stays unset.
func (s State) Start(msg protocol.AudioStart, defaultLanguage string) (State, error) {
	if s.Busy {
		return s, ErrSessionBusy
	}
	next := Idle()
	next.ProjectID = strings.TrimSpace(msg.ProjectID)
	next.AvatarID = strings.TrimSpace(msg.AvatarID)
	next.SampleRate = msg.SampleRate
	if next.SampleRate <= 0 {
		next.SampleRate = DefaultSampleRate
	}
	next.Channels = msg.Channels
	if next.Channels <= 0 {
		next.Channels = DefaultChannels
	}
	next.Format = strings.TrimSpace(msg.Format)
	if next.Format == "" {
		next.Format = DefaultFormat
	}
	next.Language = strings.TrimSpace(msg.Language)
	if next.Language == "" {
		next.Language = strings.TrimSpace(defaultLanguage)
	}
	return next, nil
}

// Append adds a binary frame to the open capture.
func (s State) Append(frame []byte) (State, error) {
	if !s.Capturing() {
		return s, ErrAudioNotStarted
	}
	s.Buffer = append(s.Buffer, frame...)
	return s, nil
}

// Stop closes the capture and marks the connection busy. The returned
// Capture owns the buffered audio.
func (s State) Stop() (State, Capture, error) {
	if s.Busy {
		return s, Capture{}, ErrSessionBusy
	}
	if s.ProjectID == "" {
		return s, Capture{}, ErrAudioNotStarted
	}
	c := Capture{
		ProjectID:  s.ProjectID,
		AvatarID:   s.AvatarID,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Format:     s.Format,
		Language:   s.Language,
		Audio:      s.Buffer,
		StoppedAt:  time.Now(),
	}
	s.Buffer = nil
	s.Busy = true
	return s, c, nil
}

// Cancel drops an open capture. A turn already in flight keeps running and
// the connection stays busy until it finishes.
func (s State) Cancel() State {
	if s.Busy {
		s.Cancelled = true
		return s
	}
	return Idle()
}
