package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/observability"
	"github.com/antoniostano/avatarvoice/internal/protocol"
	"github.com/antoniostano/avatarvoice/internal/redact"
	"github.com/antoniostano/avatarvoice/internal/session"
)

// logTextLimit caps transcript, reply and error text in log lines.
const logTextLimit = 200

// Deps are the collaborators a connection loop calls into.
type Deps struct {
	Projects    ProjectLookup
	Avatars     AvatarResolver
	Transcriber Transcriber
	Replies     ReplyStreamer
	Speech      SpeechSynthesizer
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

type Config struct {
	// DefaultLanguage is the transcription hint for captures that set none.
	DefaultLanguage string
	// DefaultVoiceID is used when neither the capture nor the project names an avatar.
	DefaultVoiceID string
}

type Orchestrator struct {
	projects    ProjectLookup
	avatars     AvatarResolver
	transcriber Transcriber
	replies     ReplyStreamer
	speech      SpeechSynthesizer
	sessions    *session.Manager
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         Config
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		projects:    deps.Projects,
		avatars:     deps.Avatars,
		transcriber: deps.Transcriber,
		replies:     deps.Replies,
		speech:      deps.Speech,
		sessions:    deps.Sessions,
		metrics:     deps.Metrics,
		logger:      logger.Named("voice"),
		cfg:         cfg,
	}
}

// turnResult carries the last event of a turn back to the connection loop,
// which resets state before emitting it.
type turnResult struct {
	final protocol.Event
	err   error
}

// RunConnection drives one audio connection until inbound closes or ctx is
// done. inbound carries protocol.AudioStart, AudioStop, AudioCancel and
// AudioFrame values, or decode errors from the transport. All events go to
// outbound in order.
func (o *Orchestrator) RunConnection(ctx context.Context, connID string, inbound <-chan any, outbound chan<- protocol.Event) error {
	turnCtx, cancelTurns := context.WithCancel(ctx)
	defer cancelTurns()

	e := &emitter{ctx: turnCtx, out: outbound, metrics: o.metrics}
	log := o.logger.With(zap.String("connection_id", connID))

	var (
		st       = Idle()
		turnDone chan turnResult
		turnLog  *zap.Logger
	)

	waitTurn := func() {
		if turnDone == nil {
			return
		}
		cancelTurns()
		<-turnDone
		_ = o.sessions.FinishTurn(connID)
	}

	for {
		select {
		case <-ctx.Done():
			waitTurn()
			return nil
		case res := <-turnDone:
			turnDone = nil
			_ = o.sessions.FinishTurn(connID)
			st = Idle()
			o.finishTurn(e, turnLog, res)
		case msg, ok := <-inbound:
			if !ok {
				waitTurn()
				return nil
			}
			_ = o.sessions.Touch(connID)
			o.observeInbound(msg)

			switch m := msg.(type) {
			case protocol.AudioFrame:
				next, err := st.Append(m.Data)
				if err != nil {
					e.emit(protocol.Error(protocol.CodeAudioNotStarted))
					continue
				}
				st = next
			case protocol.AudioStart:
				next, err := st.Start(m, o.cfg.DefaultLanguage)
				if err != nil {
					e.emit(protocol.Error(protocol.CodeSessionBusy))
					continue
				}
				st = next
				_ = o.sessions.SetProject(connID, st.ProjectID)
				e.emit(protocol.AudioStarted())
			case protocol.AudioStop:
				next, capture, err := st.Stop()
				if err != nil {
					code := protocol.CodeAudioNotStarted
					if errors.Is(err, ErrSessionBusy) {
						code = protocol.CodeSessionBusy
					}
					e.emit(protocol.Error(code))
					continue
				}
				st = next
				turnID, _ := o.sessions.StartTurn(connID)
				turnLog = log.With(zap.String("turn_id", turnID), zap.String("project_id", capture.ProjectID))
				turnDone = make(chan turnResult, 1)
				go func(done chan<- turnResult, c Capture, l *zap.Logger) {
					final, err := o.runTurn(turnCtx, e, c, l)
					done <- turnResult{final: final, err: err}
				}(turnDone, capture, turnLog)
			case protocol.AudioCancel:
				st = st.Cancel()
				e.emit(protocol.AudioCancelled())
			case error:
				e.emit(protocol.Error(decodeErrorCode(m)))
			default:
				e.emit(protocol.Error(protocol.CodeUnsupportedMessage))
			}
		}
	}
}

func (o *Orchestrator) finishTurn(e *emitter, log *zap.Logger, res turnResult) {
	if res.err == nil {
		o.metrics.TurnOutcomes.WithLabelValues("success").Inc()
		e.emit(res.final)
		return
	}

	var stageErr *StageError
	if !errors.As(res.err, &stageErr) {
		stageErr = stageFailure(StageReply, res.err)
	}
	o.metrics.TurnOutcomes.WithLabelValues("error").Inc()
	o.metrics.StageFailures.WithLabelValues(string(stageErr.Stage), string(stageErr.Kind)).Inc()
	log.Warn("turn failed",
		zap.String("stage", string(stageErr.Stage)),
		zap.String("kind", string(stageErr.Kind)),
		zap.String("error", redact.ForLog(stageErr.Err.Error(), logTextLimit)),
	)
	e.emit(protocol.Error(stageErr.Message()))
}

// runTurn executes transcribe, reply and speech for one capture. Intermediate
// events are emitted directly; the last one is returned.
func (o *Orchestrator) runTurn(ctx context.Context, e *emitter, c Capture, log *zap.Logger) (protocol.Event, error) {
	project, err := o.projects.Get(ctx, c.ProjectID)
	if err != nil {
		return protocol.Event{}, stageFailure(StageProject, err)
	}

	var (
		avatar       avatars.Avatar
		commitAvatar bool
	)
	switch {
	case c.AvatarID != "":
		a, ok, err := o.avatars.Resolve(ctx, c.AvatarID)
		if err != nil {
			return protocol.Event{}, stageFailure(StageAvatar, err)
		}
		if !ok {
			return protocol.Event{}, stageFailure(StageAvatar, ErrUnknownAvatar)
		}
		avatar = a
		commitAvatar = a.ID != project.AvatarID
	case project.AvatarID != "":
		a, ok, err := o.avatars.Resolve(ctx, project.AvatarID)
		if err != nil {
			return protocol.Event{}, stageFailure(StageAvatar, err)
		}
		if ok {
			avatar = a
		}
	}

	e.emit(protocol.ASRStart())
	transcript := ""
	if len(c.Audio) > 0 {
		started := time.Now()
		transcript, err = o.transcriber.Transcribe(ctx, Audio{
			PCM:        c.Audio,
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			Language:   c.Language,
		})
		o.metrics.ObserveStage(string(StageTranscribe), time.Since(started))
		if err != nil {
			return protocol.Event{}, stageFailure(StageTranscribe, err)
		}
	}
	e.emit(protocol.ASRFinal(transcript))
	log.Debug("transcribed", zap.Int("audio_bytes", len(c.Audio)), zap.String("transcript", redact.ForLog(transcript, logTextLimit)))

	if transcript == "" {
		o.commitAvatar(ctx, log, project.ID, avatar.ID, commitAvatar)
		return protocol.AssistantDone(""), nil
	}

	started := time.Now()
	reply, err := relayReply(ctx, o.replies, e, project.SessionKey, transcript)
	o.metrics.ObserveStage(string(StageReply), time.Since(started))
	if err != nil {
		return protocol.Event{}, stageFailure(StageReply, err)
	}
	log.Debug("reply complete", zap.String("reply", redact.ForLog(reply, logTextLimit)))
	if strings.TrimSpace(reply) == "" {
		o.commitAvatar(ctx, log, project.ID, avatar.ID, commitAvatar)
		return protocol.AssistantDone(reply), nil
	}
	e.emit(protocol.AssistantDone(reply))

	voiceID := avatar.VoiceID
	if voiceID == "" {
		voiceID = o.cfg.DefaultVoiceID
	}
	started = time.Now()
	final, err := relaySpeech(ctx, o.speech, e, reply, voiceID, func() {
		o.metrics.ObserveFirstAudioLatency(time.Since(c.StoppedAt))
	})
	o.metrics.ObserveStage(string(StageSpeech), time.Since(started))
	if err != nil {
		return protocol.Event{}, stageFailure(StageSpeech, err)
	}
	o.commitAvatar(ctx, log, project.ID, avatar.ID, commitAvatar)
	return final, nil
}

// commitAvatar stores an explicit avatar choice once the turn has succeeded.
func (o *Orchestrator) commitAvatar(ctx context.Context, log *zap.Logger, projectID, avatarID string, changed bool) {
	if !changed || avatarID == "" {
		return
	}
	if _, err := o.projects.SetAvatar(ctx, projectID, avatarID); err != nil {
		log.Warn("store project avatar failed", zap.String("avatar_id", avatarID), zap.Error(err))
	}
}

func (o *Orchestrator) observeInbound(msg any) {
	label := "invalid"
	if t, ok := protocol.TypeOf(msg); ok {
		label = string(t)
	}
	o.metrics.WSMessages.WithLabelValues("in", label).Inc()
}

func decodeErrorCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidJSON):
		return protocol.CodeInvalidJSON
	case errors.Is(err, protocol.ErrUnknownEvent):
		return protocol.CodeUnknownEvent
	default:
		return protocol.CodeUnsupportedMessage
	}
}

// emitter is the single ordered path to the connection writer. Sends block
// until accepted and become no-ops once the connection is gone.
type emitter struct {
	ctx     context.Context
	out     chan<- protocol.Event
	metrics *observability.Metrics
}

func (e *emitter) emit(ev protocol.Event) bool {
	if e.ctx.Err() != nil {
		return false
	}
	select {
	case <-e.ctx.Done():
		return false
	case e.out <- ev:
		e.metrics.WSMessages.WithLabelValues("out", string(ev.Type)).Inc()
		return true
	}
}
