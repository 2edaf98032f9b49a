/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
)

const (
	streamBuffer       = 256
	streamPingInterval = 15 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// Stream frame types.
const (
	frameState = "state"
	frameEvent = "event"
	framePing  = "ping"
	frameError = "error"
)

// streamFrame is one server to client message.
type streamFrame struct {
	Type      string          `json:"type"`
	Topic     events.Topic    `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// streamCommand is one client to server message.
type streamCommand struct {
	Topic   events.Topic    `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// handleStream pushes outbound mixer, effect and lifecycle events to the
// client and republishes the consumed topics it sends back.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.StreamClients.Inc()
	defer telemetry.StreamClients.Dec()

	ctx := r.Context()
	origin := "stream:" + r.RemoteAddr
	log := a.logger.With().Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("stream client connected")

	eventCh := make(chan events.Event, streamBuffer)
	sub := a.bus.SubscribeAll(func(ev events.Event) error {
		if !a.outbound[ev.Topic] {
			return nil
		}
		// The bus delivers synchronously; a slow client loses events
		// instead of stalling the mixer.
		select {
		case eventCh <- ev:
		default:
			log.Warn().Str("topic", string(ev.Topic)).Msg("stream buffer full, dropping event")
		}
		return nil
	})
	defer a.bus.Unsubscribe(sub)

	state, err := json.Marshal(a.controller.State())
	if err == nil {
		err = writeFrame(ctx, conn, streamFrame{Type: frameState, Payload: state})
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to send initial state")
		conn.Close(ws.StatusInternalError, "send failed")
		return
	}

	done := make(chan struct{})
	commandCh := make(chan streamCommand, 16)

	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) != ws.StatusNormalClosure {
					log.Debug().Err(err).Msg("websocket read error")
				}
				return
			}
			var cmd streamCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				log.Warn().Err(err).Msg("invalid websocket message")
				continue
			}
			select {
			case commandCh <- cmd:
			default:
				log.Warn().Msg("command channel full, dropping message")
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-pingTicker.C:
			if err := writeFrame(ctx, conn, streamFrame{Type: framePing}); err != nil {
				log.Error().Err(err).Msg("ping failed")
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}

		case ev := <-eventCh:
			frame, err := eventFrame(ev)
			if err != nil {
				log.Warn().Err(err).Str("topic", string(ev.Topic)).Msg("event not encodable")
				continue
			}
			if err := writeFrame(ctx, conn, frame); err != nil {
				log.Error().Err(err).Msg("send event failed")
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}

		case cmd := <-commandCh:
			if code := a.acceptCommand(cmd, origin); code != "" {
				log.Warn().Str("topic", string(cmd.Topic)).Str("error", code).Msg("stream command rejected")
				_ = writeFrame(ctx, conn, streamFrame{Type: frameError, Topic: cmd.Topic, Error: code})
			}
		}
	}
}

// acceptCommand republishes cmd on the bus and returns an error code when
// it is refused.
func (a *API) acceptCommand(cmd streamCommand, origin string) string {
	if !events.IsInbound(cmd.Topic) {
		return "topic_not_accepted"
	}
	if len(cmd.Payload) == 0 || string(cmd.Payload) == "null" {
		return "empty_payload"
	}
	a.bus.Publish(cmd.Topic, events.Remote{Origin: origin, Data: cmd.Payload})
	return ""
}

func eventFrame(ev events.Event) (streamFrame, error) {
	ts := ev.Timestamp
	frame := streamFrame{Type: frameEvent, Topic: ev.Topic, Timestamp: &ts}
	switch p := ev.Payload.(type) {
	case nil:
	case events.Remote:
		frame.Payload = p.Data
		frame.Origin = p.Origin
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return frame, err
		}
		frame.Payload = data
	}
	return frame, nil
}

func writeFrame(ctx context.Context, conn *ws.Conn, frame streamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}
