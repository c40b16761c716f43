package voice

import (
	"context"
	"io"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/projects"
)

// ProjectLookup finds the project a capture belongs to and records avatar
// choices made during a turn.
type ProjectLookup interface {
	Get(ctx context.Context, id string) (projects.Project, error)
	SetAvatar(ctx context.Context, id, avatarID string) (projects.Project, error)
}

// AvatarResolver maps an avatar id to its voice. ok is false for unknown ids.
type AvatarResolver interface {
	Resolve(ctx context.Context, id string) (a avatars.Avatar, ok bool, err error)
}

// Audio is raw little-endian PCM16 plus its declared layout.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Language   string
}

type Transcriber interface {
	Transcribe(ctx context.Context, in Audio) (string, error)
}

// ReplyStreamer streams a chat reply. onDelta is called for each text delta
// in arrival order; the returned text is the final reply.
type ReplyStreamer interface {
	StreamReply(ctx context.Context, sessionKey, input string, onDelta func(delta string) error) (string, error)
}

// SpeechSynthesizer opens a streaming synthesis response.
type SpeechSynthesizer interface {
	Configured() bool
	OutputFormat() string
	StreamSpeech(ctx context.Context, text, voiceID string) (io.ReadCloser, error)
}
