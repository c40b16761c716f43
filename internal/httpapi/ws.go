package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/avatarvoice/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	outboundQueue  = 256
)

// handleAudioWS runs one audio connection: a reader feeding the connection
// loop, the loop itself, and a single writer draining its events.
func (s *Server) handleAudioWS(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.sessions.Open(r.RemoteAddr, cancel)
	s.metrics.ActiveConnections.Set(float64(s.sessions.ActiveCount()))
	s.metrics.ConnectionEvents.WithLabelValues("opened").Inc()
	log := s.logger.With(zap.String("connection_id", c.ID))
	log.Info("audio connection opened", zap.String("remote_addr", r.RemoteAddr))

	inbound := make(chan any)
	outbound := make(chan protocol.Event, outboundQueue)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.orchestrator.RunConnection(gctx, c.ID, inbound, outbound)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					return fmt.Errorf("write %s: %w", ev.Type, err)
				}
			}
		}
	})

	// Unblocks the reader when the connection is cancelled from elsewhere.
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})

	g.Go(func() error {
		defer close(inbound)
		if s.cfg.WSMaxMessageBytes > 0 {
			conn.SetReadLimit(s.cfg.WSMaxMessageBytes)
		}
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && gctx.Err() == nil {
					log.Debug("audio connection read ended", zap.Error(err))
				}
				return nil
			}

			var msg any
			switch msgType {
			case websocket.BinaryMessage:
				msg = protocol.AudioFrame{Data: data}
			case websocket.TextMessage:
				parsed, err := protocol.DecodeControl(data)
				if err != nil {
					msg = err
				} else {
					msg = parsed
				}
			default:
				continue
			}

			select {
			case <-gctx.Done():
				return nil
			case inbound <- msg:
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug("audio connection ended with error", zap.Error(err))
	}

	closed, err := s.sessions.Close(c.ID)
	if err != nil {
		// Already removed by the idle janitor.
		closed = c
	}
	s.metrics.ActiveConnections.Set(float64(s.sessions.ActiveCount()))
	s.metrics.ConnectionEvents.WithLabelValues("closed").Inc()
	log.Info("audio connection closed", zap.Int("turns", closed.TurnCount))
}
