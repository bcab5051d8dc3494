package ws

import (
	"encoding/json"
	"sync"
	"time"

	"FormaLink/pkg/zlog"

	"github.com/gorilla/websocket"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	groups  map[string]map[*Client]struct{}

	heartbeatOnce sync.Once
	stopOnce      sync.Once
	stopChan      chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		groups:   make(map[string]map[*Client]struct{}),
		stopChan: make(chan struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	if c == nil || c.sessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.sessionID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
	if c.group != "" {
		gset := h.groups[c.group]
		if gset == nil {
			gset = make(map[*Client]struct{})
			h.groups[c.group] = gset
		}
		gset[c] = struct{}{}
	}
}

func (h *Hub) Unregister(c *Client) {
	if c == nil || c.sessionID == "" {
		return
	}
	h.mu.Lock()
	set := h.clients[c.sessionID]
	if set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.sessionID)
		}
	}
	if c.group != "" {
		gset := h.groups[c.group]
		if gset != nil {
			delete(gset, c)
			if len(gset) == 0 {
				delete(h.groups, c.group)
			}
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Session 当前在线会话的标识信息
type Session struct {
	ID    string
	Group string
}

// Sessions 列出当前在线的会话（同一身份多连接只返回一次）
func (h *Hub) Sessions() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, 0, len(h.clients))
	for id, set := range h.clients {
		for c := range set {
			out = append(out, Session{ID: id, Group: c.group})
			break
		}
	}
	return out
}

// IsOnline 指定身份当前是否有打开的连接
func (h *Hub) IsOnline(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID]) > 0
}

// SendEvent 向单个会话推送一帧命名事件。
// 会话不在线时事件直接丢弃（at-most-once，掉线补偿走客户端的主动拉取）。
func (h *Hub) SendEvent(sessionID string, event string, data interface{}) bool {
	if sessionID == "" || event == "" {
		return false
	}
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		zlog.Error("ws frame marshal failed: " + err.Error())
		return false
	}

	targets := h.snapshot(func() map[*Client]struct{} { return h.clients[sessionID] })
	if len(targets) == 0 {
		return false
	}
	return h.deliver(targets, payload)
}

// BroadcastEvent 向一个受众分组的所有在线连接推送
func (h *Hub) BroadcastEvent(group string, event string, data interface{}) {
	if group == "" || event == "" {
		return
	}
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		zlog.Error("ws frame marshal failed: " + err.Error())
		return
	}

	targets := h.snapshot(func() map[*Client]struct{} { return h.groups[group] })
	if len(targets) == 0 {
		return
	}
	h.deliver(targets, payload)
}

// BroadcastAll 向所有在线连接推送（受众 TOUS 与心跳使用）
func (h *Hub) BroadcastAll(event string, data interface{}) {
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}

	h.mu.RLock()
	all := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.deliverOne(c, payload)
	}
}

// snapshot 在读锁内拷贝目标连接，投递在锁外进行
func (h *Hub) snapshot(pick func() map[*Client]struct{}) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := pick()
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (h *Hub) deliver(targets []*Client, payload []byte) bool {
	ok := false
	for _, c := range targets {
		if h.deliverOne(c, payload) {
			ok = true
		}
	}
	return ok
}

// deliverOne 写入客户端发送通道；通道已满说明客户端卡死，直接踢掉，
// 保证慢客户端不会拖住其它连接的投递。
func (h *Hub) deliverOne(c *Client, payload []byte) bool {
	if c == nil {
		return false
	}
	ok, full := c.trySend(payload)
	if full {
		h.Unregister(c)
	}
	return ok
}

// StartHeartbeat 启动全局心跳，定期向所有连接发送 heartbeat 帧，
// 让中间代理和客户端的存活检测不会把空闲连接当成死连接。
func (h *Hub) StartHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	h.heartbeatOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					h.BroadcastAll(EventHeartbeat, map[string]interface{}{
						"ts": time.Now().Unix(),
					})
				case <-h.stopChan:
					return
				}
			}
		}()
	})
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, set := range h.clients {
			for c := range set {
				c.Close()
			}
		}
		h.clients = make(map[string]map[*Client]struct{})
		h.groups = make(map[string]map[*Client]struct{})
	})
}

type Client struct {
	sessionID string
	group     string
	conn      *websocket.Conn
	send      chan []byte

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewClient(sessionID string, group string, conn *websocket.Conn) *Client {
	return &Client{
		sessionID: sessionID,
		group:     group,
		conn:      conn,
		send:      make(chan []byte, 64),
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		close(c.send)
		c.closeMu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// SendFrame 只向本连接投递一帧，不做会话级扇出。握手帧（welcome、首发
// counts）走这里，避免重放到同一身份的其他连接。
func (c *Client) SendFrame(event string, data interface{}) bool {
	payload, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		zlog.Error(err.Error())
		return false
	}
	ok, _ := c.trySend(payload)
	return ok
}

// trySend 非阻塞写入发送通道。第二个返回值表示通道已满（慢客户端）。
func (c *Client) trySend(payload []byte) (ok bool, full bool) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- payload:
		return true, false
	default:
		return false, true
	}
}

// WritePump 单协程串行写出，保证同一连接上不会出现交错的半帧
func (c *Client) WritePump() {
	if c.conn == nil {
		return
	}
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			zlog.Error(err.Error())
			return
		}
	}
}
