package voice

import (
	"errors"
	"fmt"

	"github.com/antoniostano/avatarvoice/internal/projects"
	"github.com/antoniostano/avatarvoice/internal/protocol"
	"github.com/antoniostano/avatarvoice/internal/reliability"
)

type Stage string

const (
	StageProject    Stage = "project"
	StageAvatar     Stage = "avatar"
	StageTranscribe Stage = "transcribe"
	StageReply      Stage = "reply"
	StageSpeech     Stage = "speech"
)

var ErrUnknownAvatar = errors.New(protocol.CodeUnknownAvatar)

// StageError is the failure result of one turn stage.
type StageError struct {
	Stage Stage
	Kind  reliability.Kind
	Err   error
}

func stageFailure(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: reliability.Classify(err), Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is the client-facing text of the error event.
func (e *StageError) Message() string {
	switch {
	case errors.Is(e.Err, ErrUnknownAvatar):
		return protocol.CodeUnknownAvatar
	case errors.Is(e.Err, projects.ErrNotFound):
		return protocol.CodeProjectNotFound
	default:
		return e.Err.Error()
	}
}

// detailError keeps a fixed message while exposing the cause for
// classification.
type detailError struct {
	msg string
	err error
}

func (e *detailError) Error() string { return e.msg }
func (e *detailError) Unwrap() error { return e.err }
