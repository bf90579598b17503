package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/message"
)

const wsWriteWait = 10 * time.Second

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msgs []message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// handleWebSocket reads message envelopes until the client disconnects.
// Each envelope is handled concurrently; its responses are written in order.
// Envelopes without a session id get one shared by the whole connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	ws := &wsConn{conn: conn}
	connSession := uuid.NewString()
	logger := s.logger.With("session_id", connSession)
	logger.Debug("websocket connected", "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug("websocket read failed", "err", err)
			}
			return
		}

		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			bad := message.NewError(connSession, fmt.Errorf("%w: malformed message: %w", core.ErrInvalidInput, err))
			if err := ws.send([]message.Message{bad}); err != nil {
				return
			}
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = connSession
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			out := s.handler.Handle(ctx, msg)
			if err := ws.send(out); err != nil {
				logger.Debug("websocket write failed", "err", err)
				cancel()
			}
		}()
	}
}
