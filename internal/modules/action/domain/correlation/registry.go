package correlation

import (
	"sync"
	"time"

	"FormaLink/pkg/zlog"
)

// Key 在途动作的去重键：同一实体上的同一动作类型，任一时刻最多一个在途关联
type Key struct {
	EntiteType string
	EntiteId   string
	ActionType string
}

// Pending 一次在途动作的登记信息
type Pending struct {
	CorrelationId    string
	Key              Key
	OwnerSessionId   string
	Audience         string
	ExpectedResponse string
	RegisteredAt     time.Time
	ExpiresAt        time.Time
}

// Remaining 剩余存活时间，已过期返回 0
func (p *Pending) Remaining(now time.Time) time.Duration {
	if p == nil || !now.Before(p.ExpiresAt) {
		return 0
	}
	return p.ExpiresAt.Sub(now)
}

func (p *Pending) expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Registry 在途关联登记表。进程启动时创建一个实例并注入网关与回调端，
// 不作为包级全局状态存在。纯内存：进程重启丢失在途关联，由客户端超时兜底。
type Registry struct {
	mu   sync.Mutex
	byId map[string]*Pending
	byKey map[Key]string

	sweepEvery time.Duration
	stopChan   chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once

	// now 可替换时钟，测试用
	now func() time.Time
}

func NewRegistry(sweepEvery time.Duration) *Registry {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Second
	}
	return &Registry{
		byId:       make(map[string]*Pending),
		byKey:      make(map[Key]string),
		sweepEvery: sweepEvery,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Register 原子地执行冲突检查并登记。
// 同一 Key 已有未过期关联时返回该关联（冲突方拿到剩余等待时间），不覆盖。
// 已过期但尚未被清扫的旧条目就地逐出后接受新登记。
func (r *Registry) Register(p *Pending) (conflict *Pending, ok bool) {
	if p == nil || p.CorrelationId == "" {
		return nil, false
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existingId, found := r.byKey[p.Key]; found {
		existing := r.byId[existingId]
		if existing != nil && !existing.expired(now) {
			return existing, false
		}
		r.evictLocked(existingId)
	}
	if _, dup := r.byId[p.CorrelationId]; dup {
		// 同一关联号重复提交，视为冲突
		return r.byId[p.CorrelationId], false
	}

	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = now
	}
	r.byId[p.CorrelationId] = p
	r.byKey[p.Key] = p.CorrelationId
	return nil, true
}

// Resolve 以关联号结案并移除条目。过期或未知的关联号返回 false，
// 结案与超时逐出互斥：二者只有一个会成功。
func (r *Registry) Resolve(correlationId string) (*Pending, bool) {
	if correlationId == "" {
		return nil, false
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.byId[correlationId]
	if !found {
		return nil, false
	}
	r.evictLocked(correlationId)
	if p.expired(now) {
		return nil, false
	}
	return p, true
}

// Evict 立即移除一条登记（转发失败时回滚，避免幻影冲突挡住重试）
func (r *Registry) Evict(correlationId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(correlationId)
}

func (r *Registry) evictLocked(correlationId string) {
	p, found := r.byId[correlationId]
	if !found {
		return
	}
	delete(r.byId, correlationId)
	if r.byKey[p.Key] == correlationId {
		delete(r.byKey, p.Key)
	}
}

// Len 当前在途条目数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byId)
}

// Start 启动后台清扫，定期逐出过期条目。逐出是静默的：
// 纯超时不合成任何通知，客户端在自己的时钟上独立判定超时。
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(r.sweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.sweep()
				case <-r.stopChan:
					return
				}
			}
		}()
	})
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func (r *Registry) sweep() {
	now := r.now()
	r.mu.Lock()
	expired := make([]string, 0)
	for id, p := range r.byId {
		if p.expired(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.evictLocked(id)
	}
	r.mu.Unlock()

	if len(expired) > 0 {
		zlog.Info("correlation sweep evicted expired entries")
	}
}
