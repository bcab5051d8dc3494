package streamclient

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"FormaLink/pkg/util"
	"FormaLink/pkg/ws"
	"FormaLink/pkg/zlog"

	"github.com/gorilla/websocket"
)

// EventHandler 事件处理器。在读循环协程内按序执行，不得阻塞：
// 需要耗时处理的自己转交出去。
type EventHandler func(data json.RawMessage)

// Config 推送通道客户端配置
type Config struct {
	// URL 形如 ws://host:port/wss?token=xxx
	URL string
	// Backoff 断线后的固定重连等待（不做立即重试，避免雪崩式重连）
	Backoff time.Duration
	// PingInterval 客户端主动 ping，维持服务端读超时
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Client 推送通道的客户端。单协程读循环保证事件按到达顺序处理；
// 掉线后等待固定退避时间再安排一次重连，重连成功靠 welcome/counts
// 重新同步，不假设任何事件回放。
type Client struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string][]EventHandler
	listeners map[string]*Listener

	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:       cfg,
		handlers:  make(map[string][]EventHandler),
		listeners: make(map[string]*Listener),
		closed:    make(chan struct{}),
	}
}

// OnEvent 注册命名事件的处理器，需在 Start 之前完成注册
func (c *Client) OnEvent(event string, h EventHandler) {
	if event == "" || h == nil {
		return
	}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()
}

// Start 启动连接维护协程
func (c *Client) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) run() {
	for {
		if c.isClosed() {
			return
		}
		conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			zlog.Warn("stream dial failed: " + err.Error())
			if !c.waitBackoff() {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if c.isClosed() {
			return
		}
		// 一次性安排重连，而不是立即循环重试
		if !c.waitBackoff() {
			return
		}
	}
}

func (c *Client) waitBackoff() bool {
	select {
	case <-time.After(c.cfg.Backoff):
		return true
	case <-c.closed:
		return false
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			case <-stopPing:
				return
			case <-c.closed:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				zlog.Warn("stream connection lost: " + err.Error())
			}
			return
		}
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.dispatch(frame.Event, frame.Data)
	}
}

// dispatch 事件处理：关联结案帧先走监听器，再交给普通处理器。
// 全部在读循环内串行执行，保证同一连接上的事件有序。
func (c *Client) dispatch(event string, data json.RawMessage) {
	if event == ws.EventWorkflowResponse {
		c.resolveListener(data)
	}

	c.mu.Lock()
	hs := append([]EventHandler(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (c *Client) resolveListener(data json.RawMessage) {
	var resp struct {
		CorrelationId string `json:"correlationId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || resp.CorrelationId == "" {
		return
	}

	c.mu.Lock()
	l := c.listeners[resp.CorrelationId]
	c.mu.Unlock()
	if l == nil {
		// 没有监听器在等（已超时或不是本端发起的），忽略；
		// 通知缓存照常通过 notification 帧更新
		return
	}

	outcome := OutcomeError
	if resp.Status == "success" {
		outcome = OutcomeSuccess
	}
	l.fire(outcome, data)
}

// NewCorrelationId 生成动作关联号。关联号由发起方生成、服务端只透传，
// 用 UUID 保证跨客户端全局唯一
func NewCorrelationId() string {
	return util.GenerateUUID()
}

// WaitForResponse 为一个关联号注册唯一监听器。
// 同一关联号只允许一个监听器，避免多个 UI 组件对同一结案重复执行副作用。
func (c *Client) WaitForResponse(correlationId string, timeout time.Duration, fn CompletionFunc) (*Listener, error) {
	if correlationId == "" || fn == nil {
		return nil, errors.New("correlationId et callback requis")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	l := &Listener{
		client:        c,
		correlationId: correlationId,
		fn:            fn,
		state:         StatePending,
	}

	c.mu.Lock()
	if _, dup := c.listeners[correlationId]; dup {
		c.mu.Unlock()
		return nil, errors.New("un écouteur existe déjà pour cette corrélation")
	}
	c.listeners[correlationId] = l
	c.mu.Unlock()

	l.timer = time.AfterFunc(timeout, func() {
		l.fire(OutcomeTimeout, nil)
	})
	return l, nil
}

func (c *Client) removeListener(correlationId string) {
	c.mu.Lock()
	delete(c.listeners, correlationId)
	c.mu.Unlock()
}
