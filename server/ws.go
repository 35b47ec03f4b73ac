package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type wsMessage struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWebSocket serves the same job stream over a websocket for clients
// that cannot consume SSE. The client sends {"type":"watch","content":"<job
// id>"}; the server pushes status events until the job reaches a terminal
// state or the connection drops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "watch":
			if err := s.streamJobToConn(r, conn, msg.Content); err != nil {
				return
			}
		default:
			if err := s.sendMessage(conn, wsMessage{Type: "error", Content: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// streamJobToConn pushes watch events until the job terminates or a write
// fails. The request context of an upgraded connection is never cancelled by
// the server, so a failed write is the only disconnect signal here; cancel
// the watch on it or the watcher keeps running forever.
func (s *Server) streamJobToConn(r *http.Request, conn *websocket.Conn, jobID string) error {
	if jobID == "" {
		return s.sendMessage(conn, wsMessage{Type: "error", Content: "job id is required"})
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.jobs.Watch(ctx, jobID, s.config.PollInterval, s.config.Heartbeat)

	for ev := range events {
		if err := s.sendMessage(conn, wsMessage{Type: ev.Kind, Data: ev.Job}); err != nil {
			cancel()
			return err
		}
	}
	return nil
}

func (s *Server) sendMessage(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Msg("failed to send websocket message")
		return err
	}
	return nil
}
