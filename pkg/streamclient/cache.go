package streamclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"FormaLink/pkg/ws"
)

// Notification 推送通道与查询接口上的通知线格式
type Notification struct {
	Id              int64      `json:"id"`
	SourceAgent     string     `json:"sourceAgent,omitempty"`
	Categorie       string     `json:"categorie"`
	Type            string     `json:"type"`
	Priorite        string     `json:"priorite"`
	Titre           string     `json:"titre"`
	Message         string     `json:"message"`
	Audience        string     `json:"audience,omitempty"`
	DestinataireId  string     `json:"destinataireId,omitempty"`
	EntiteType      string     `json:"entiteType,omitempty"`
	EntiteId        string     `json:"entiteId,omitempty"`
	LienAction      string     `json:"lienAction,omitempty"`
	ActionRequise   bool       `json:"actionRequise"`
	TypeAction      string     `json:"typeAction,omitempty"`
	ActionEffectuee bool       `json:"actionEffectuee"`
	Lue             bool       `json:"lue"`
	DateLecture     *time.Time `json:"dateLecture,omitempty"`
	CorrelationId   string     `json:"correlationId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Counts 聚合计数线格式
type Counts struct {
	Total           int64 `json:"total"`
	NonLues         int64 `json:"nonLues"`
	Urgentes        int64 `json:"urgentes"`
	ActionsRequises int64 `json:"actionsRequises"`
}

// Fetcher 拉取回源。推送不可用或重连后，缓存经由它回到最终一致。
type Fetcher interface {
	FetchNotifications(ctx context.Context, page int, pageSize int) ([]Notification, int64, error)
	FetchCounts(ctx context.Context) (Counts, error)
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
}

// Cache 本地通知视图：按 id 去重、最新在前，维护派生计数。
// 推送断开期间继续提供最后已知状态，不阻塞 UI。
type Cache struct {
	mu      sync.Mutex
	items   []Notification
	seen    map[int64]struct{}
	counts  Counts
	fetcher Fetcher

	// OnUrgent URGENTE 通知的钩子（原生系统提醒由上层 UI 负责），
	// 在独立协程中调用
	OnUrgent func(Notification)
}

func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		seen:    make(map[int64]struct{}),
		fetcher: fetcher,
	}
}

// Bind 订阅推送通道的 notification / counts 帧
func (c *Cache) Bind(client *Client) {
	client.OnEvent(ws.EventNotification, func(data json.RawMessage) {
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return
		}
		c.ApplyPush(n)
	})
	client.OnEvent(ws.EventCounts, func(data json.RawMessage) {
		var counts Counts
		if err := json.Unmarshal(data, &counts); err != nil {
			return
		}
		c.ReplaceCounts(counts)
	})
}

// Refresh 显式回源：重建列表并整体替换计数
func (c *Cache) Refresh(ctx context.Context) error {
	items, _, err := c.fetcher.FetchNotifications(ctx, 1, 50)
	if err != nil {
		return err
	}
	counts, err := c.fetcher.FetchCounts(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.items = items
	c.seen = make(map[int64]struct{}, len(items))
	for _, n := range items {
		c.seen[n.Id] = struct{}{}
	}
	c.counts = counts
	c.mu.Unlock()
	return nil
}

// ApplyPush 推送到达：按 id 去重后头插，并增量维护计数
func (c *Cache) ApplyPush(n Notification) {
	c.mu.Lock()
	if _, dup := c.seen[n.Id]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[n.Id] = struct{}{}
	c.items = append([]Notification{n}, c.items...)
	c.counts.Total++
	if !n.Lue {
		c.counts.NonLues++
		if n.Priorite == "URGENTE" {
			c.counts.Urgentes++
		}
	}
	if n.ActionRequise && !n.ActionEffectuee {
		c.counts.ActionsRequises++
	}
	hook := c.OnUrgent
	c.mu.Unlock()

	if n.Priorite == "URGENTE" && hook != nil {
		go hook(n)
	}
}

// ReplaceCounts 整体替换计数（服务端快照权威，纠正本地漂移）
func (c *Cache) ReplaceCounts(counts Counts) {
	c.mu.Lock()
	c.counts = counts
	c.mu.Unlock()
}

// Counts 当前计数快照
func (c *Cache) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Items 当前列表的拷贝，最新在前
func (c *Cache) Items() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// MarkAsRead 乐观置已读：先改本地，请求失败再补偿回滚
func (c *Cache) MarkAsRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	idx := -1
	for i := range c.items {
		if c.items[i].Id == id {
			idx = i
			break
		}
	}
	if idx < 0 || c.items[idx].Lue {
		c.mu.Unlock()
		return nil
	}
	c.applyReadLocked(idx)
	c.mu.Unlock()

	if err := c.fetcher.MarkAsRead(ctx, id); err != nil {
		c.mu.Lock()
		if idx < len(c.items) && c.items[idx].Id == id {
			c.rollbackReadLocked(idx)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// MarkAllAsRead 乐观批量置已读，失败时按快照恢复
func (c *Cache) MarkAllAsRead(ctx context.Context) error {
	c.mu.Lock()
	touched := make([]int64, 0)
	for i := range c.items {
		if !c.items[i].Lue {
			touched = append(touched, c.items[i].Id)
			c.applyReadLocked(i)
		}
	}
	c.mu.Unlock()

	if len(touched) == 0 {
		return c.fetcher.MarkAllAsRead(ctx)
	}

	if err := c.fetcher.MarkAllAsRead(ctx); err != nil {
		c.mu.Lock()
		rollback := make(map[int64]struct{}, len(touched))
		for _, id := range touched {
			rollback[id] = struct{}{}
		}
		for i := range c.items {
			if _, ok := rollback[c.items[i].Id]; ok {
				c.rollbackReadLocked(i)
			}
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Cache) applyReadLocked(idx int) {
	now := time.Now()
	c.items[idx].Lue = true
	c.items[idx].DateLecture = &now
	c.counts.NonLues--
	if c.items[idx].Priorite == "URGENTE" {
		c.counts.Urgentes--
	}
}

func (c *Cache) rollbackReadLocked(idx int) {
	c.items[idx].Lue = false
	c.items[idx].DateLecture = nil
	c.counts.NonLues++
	if c.items[idx].Priorite == "URGENTE" {
		c.counts.Urgentes++
	}
}
