package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pefman/poke-duel/internal/engine"
	"github.com/pefman/poke-duel/internal/logging"
)

type wsMsg struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type clientIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const writeWait = 5 * time.Second

// handleWS streams snapshots as {"type":"state"} and accepts "attack",
// "reset" and "start" intents. All writes go through one goroutine.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, id string, e *engine.Engine) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("ws upgrade failed", err, logging.Fields{logging.FieldSession: id})
		return
	}
	defer conn.Close()
	logging.Info("ws connected", logging.Fields{logging.FieldSession: id, logging.FieldAddr: r.RemoteAddr})

	s.attach(id)
	defer s.detach(id)
	states, unsubscribe := e.Subscribe()
	defer unsubscribe()
	notices := make(chan wsMsg, 8)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var m wsMsg
			select {
			case b, ok := <-states:
				if !ok {
					// session closed; ending the connection stops the reader
					msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					_ = conn.Close()
					return
				}
				m = wsMsg{Type: "state", Data: b}
			case n := <-notices:
				m = n
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				logging.Error("ws write failed", err, logging.Fields{logging.FieldSession: id})
				return
			}
		}
	}()

	for {
		var in clientIn
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Error("ws read failed", err, logging.Fields{logging.FieldSession: id})
			}
			break
		}
		if err := s.dispatch(r.Context(), e, in); err != nil {
			select {
			case notices <- wsMsg{Type: "error", Data: err.Error()}:
			default:
			}
		}
	}
	unsubscribe()
	<-done
}

func (s *Server) dispatch(ctx context.Context, e *engine.Engine, in clientIn) error {
	switch in.Type {
	case "attack":
		return e.AttemptPlayerAttack()
	case "reset":
		e.Reset()
		return nil
	case "start":
		var req startRequest
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &req); err != nil {
				return err
			}
		}
		if err := s.validate.Struct(req); err != nil {
			return engine.ErrEmptyName
		}
		ctx, cancel := context.WithTimeout(ctx, startTimeout)
		defer cancel()
		return e.StartBattle(ctx, req.Name)
	default:
		return errUnknownIntent(in.Type)
	}
}

type errUnknownIntent string

func (e errUnknownIntent) Error() string { return "unknown intent " + string(e) }
