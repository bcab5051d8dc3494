package handler

import (
	"net/http"
	"time"

	"FormaLink/internal/modules/notification/application/service"
	"FormaLink/pkg/util/myjwt"
	"FormaLink/pkg/ws"
	"FormaLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type StreamHandler struct {
	hub      *ws.Hub
	notifSvc service.NotificationService
}

func NewStreamHandler(hub *ws.Hub, notifSvc service.NotificationService) *StreamHandler {
	return &StreamHandler{hub: hub, notifSvc: notifSvc}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Connect 建立推送连接。浏览器原生 WebSocket 不能自定义 Header，
// token 放在 URL 参数里，这里手动校验（没走 JWT 中间件）。
// 断开时只从登记表移除连接，在途关联一律不动：结案推送以会话身份为目标，
// 同一身份重连后照常收到后续事件。
func (h *StreamHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := myjwt.ParseToken(token)
	if err != nil || claims == nil || claims.Uuid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	sessionID := claims.Uuid
	role := claims.Role

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Error(err.Error())
		return
	}

	client := ws.NewClient(sessionID, role, conn)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	go client.WritePump()

	zlog.Info("stream connected",
		zap.String("session_id", sessionID),
		zap.String("role", role))

	// welcome + 初始 counts 快照：重连后以此重新同步，不指望事件回放。
	// 只发给新连接本身，同一身份的其他标签页不能收到重放
	client.SendFrame(ws.EventWelcome, map[string]interface{}{
		"sessionId": sessionID,
		"ts":        time.Now().Unix(),
	})
	if counts, err := h.notifSvc.GetCounts(c.Request.Context(), sessionID, role); err == nil {
		client.SendFrame(ws.EventCounts, counts)
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	// 通道是服务端单向推送，客户端帧只用来维持存活
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	}

	zlog.Info("stream disconnected", zap.String("session_id", sessionID))
}
