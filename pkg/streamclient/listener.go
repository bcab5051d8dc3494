package streamclient

import (
	"encoding/json"
	"sync"
	"time"
)

// Outcome 监听器的终态
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// State 监听器状态机：pending → {success, error, timeout}，终态不再转移
type State int

const (
	StatePending State = iota
	StateDone
)

// CompletionFunc 终态回调，在独立协程中执行（不会卡住读循环）
type CompletionFunc func(outcome Outcome, data json.RawMessage)

// Listener 单个动作的关联监听器。本地计时器与结案帧赛跑，
// 先到者生效，后到者保证无操作：结案时取消计时器，
// 超时后到达的结案帧被忽略（通知缓存仍独立更新）。
type Listener struct {
	client        *Client
	correlationId string
	fn            CompletionFunc
	timer         *time.Timer

	mu      sync.Mutex
	state   State
	outcome Outcome
	once    sync.Once
}

// CorrelationId 监听的关联号
func (l *Listener) CorrelationId() string {
	return l.correlationId
}

// Outcome 终态；尚未结束时第二个返回值为 false
func (l *Listener) Outcome() (Outcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateDone {
		return "", false
	}
	return l.outcome, true
}

// Cancel 放弃等待（等同于超时，不再触发回调）
func (l *Listener) Cancel() {
	l.once.Do(func() {
		l.settle(OutcomeTimeout)
	})
}

// fire 进入终态。sync.Once 保证恰好触发一次回调，
// 竞争的另一方（计时器或结案帧）成为无操作。
func (l *Listener) fire(outcome Outcome, data json.RawMessage) {
	l.once.Do(func() {
		l.settle(outcome)
		// 回调转交新协程，避免在读循环里执行阻塞工作
		go l.fn(outcome, data)
	})
}

func (l *Listener) settle(outcome Outcome) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Lock()
	l.state = StateDone
	l.outcome = outcome
	l.mu.Unlock()
	if l.client != nil {
		l.client.removeListener(l.correlationId)
	}
}
