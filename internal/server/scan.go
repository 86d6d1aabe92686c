package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noot-app/petfood-nutrition-server/internal/session"
)

// Scan stream message types
const (
	MsgStart    = "start"
	MsgFrame    = "frame"
	MsgFinish   = "finish"
	MsgStarted  = "started"
	MsgProgress = "progress"
	MsgFinished = "finished"
	MsgError    = "error"
)

// ScanMessage is sent by the client over the scan websocket.
type ScanMessage struct {
	Type      string             `json:"type"`
	Barcode   string             `json:"barcode,omitempty"`
	Lines     []string           `json:"lines,omitempty"`
	Overrides map[string]float64 `json:"overrides,omitempty"`
}

// ScanReply is sent by the server over the scan websocket.
type ScanReply struct {
	Type     string            `json:"type"`
	Session  *session.Info     `json:"session,omitempty"`
	Progress *session.Progress `json:"progress,omitempty"`
	Outcome  *session.Outcome  `json:"outcome,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// handleScan upgrades to a websocket carrying one scan session: a start
// message, any number of frames and a finish.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(WSReadLimit)
	conn.SetReadDeadline(time.Now().Add(WSPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(WSPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.pingLoop(ctx, conn)

	s.log.Info("Scan stream opened", "remote", r.RemoteAddr)

	var sessionID string
	for {
		var msg ScanMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Scan stream read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(WSPongWait))

		reply, done := s.scanStep(ctx, &sessionID, msg)
		conn.SetWriteDeadline(time.Now().Add(WSWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Warn("Scan stream write failed", "error", err)
			return
		}
		if done {
			s.log.Info("Scan stream finished", "session_id", sessionID)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finished"),
				time.Now().Add(WSWriteWait))
			return
		}
	}
}

// scanStep applies one client message. The returned flag ends the stream.
func (s *Server) scanStep(ctx context.Context, sessionID *string, msg ScanMessage) (ScanReply, bool) {
	fail := func(err error) (ScanReply, bool) {
		return ScanReply{Type: MsgError, Error: err.Error()}, false
	}

	switch msg.Type {
	case MsgStart:
		if *sessionID != "" {
			return fail(errors.New("session already started"))
		}
		info, err := s.rt.Sessions.Start(ctx, msg.Barcode)
		if err != nil {
			s.log.Error("Failed to start scan session", "error", err)
			return fail(errors.New("failed to start session"))
		}
		*sessionID = info.ID
		return ScanReply{Type: MsgStarted, Session: info}, false

	case MsgFrame:
		if *sessionID == "" {
			return fail(errors.New("no session started"))
		}
		progress, err := s.rt.Sessions.AddFrame(ctx, *sessionID, msg.Lines)
		if err != nil {
			return s.sessionError(err)
		}
		return ScanReply{Type: MsgProgress, Progress: progress}, false

	case MsgFinish:
		if *sessionID == "" {
			return fail(errors.New("no session started"))
		}
		overrides, err := session.ParseOverrides(msg.Overrides)
		if err != nil {
			return fail(err)
		}
		outcome, err := s.rt.Sessions.Finish(ctx, *sessionID, overrides)
		if err != nil {
			return s.sessionError(err)
		}
		return ScanReply{Type: MsgFinished, Outcome: outcome}, true

	default:
		return fail(errors.New("unknown message type: " + msg.Type))
	}
}

func (s *Server) sessionError(err error) (ScanReply, bool) {
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionClosed) {
		return ScanReply{Type: MsgError, Error: err.Error()}, true
	}
	s.log.Error("Scan session failed", "error", err)
	return ScanReply{Type: MsgError, Error: "internal error"}, false
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WSWriteWait)); err != nil {
				return
			}
		}
	}
}
