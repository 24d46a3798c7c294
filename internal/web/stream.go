package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleStream 推送看板快照：连接建立时推送一次，之后每当快照版本变化时推送
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("⚠️ WebSocket升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	zap.L().Debug("🔌 WebSocket客户端已连接", zap.String("remote", r.RemoteAddr))

	// 读循环只用于处理控制帧和感知断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(s.opts.StreamInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	var sent uint64
	push := func() bool {
		snap := s.opts.Store.Read()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.snapshotResponse(snap)); err != nil {
			zap.L().Debug("WebSocket推送失败", zap.Error(err))
			return false
		}
		sent = snap.Version
		return true
	}

	if !push() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-poll.C:
			if s.opts.Store.Version() == sent {
				continue
			}
			if !push() {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Debug("WebSocket心跳失败", zap.Error(err))
				return
			}
		}
	}
}
