package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FormaLink/internal/modules/action/application/dto/request"
	"FormaLink/internal/modules/action/domain/correlation"
	"FormaLink/internal/modules/action/infrastructure/mq"
	"FormaLink/pkg/xerr"
)

// ---- 测试替身 ----

type fakePublisher struct {
	mu       sync.Mutex
	messages []mq.Message
	failWith error
}

func (f *fakePublisher) Publish(ctx context.Context, msg mq.Message) (mq.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return mq.PublishResult{}, f.failWith
	}
	f.messages = append(f.messages, msg)
	return mq.PublishResult{Partition: 0, Offset: int64(len(f.messages))}, nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []mq.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mq.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

type pushedEvent struct {
	Target string // sessionID 或组名，广播为 "*"
	Event  string
	Data   interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	events []pushedEvent
}

func (f *fakePusher) SendEvent(sessionID string, event string, data interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pushedEvent{Target: sessionID, Event: event, Data: data})
	return true
}

func (f *fakePusher) BroadcastEvent(group string, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pushedEvent{Target: group, Event: event, Data: data})
}

func (f *fakePusher) BroadcastAll(event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, pushedEvent{Target: "*", Event: event, Data: data})
}

func (f *fakePusher) all() []pushedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pushedEvent, len(f.events))
	copy(out, f.events)
	return out
}

// ---- Dispatch ----

func validDispatchRequest() request.DispatchActionRequest {
	return request.DispatchActionRequest{
		CorrelationId:  "corr-abc",
		ActionType:     "ENVOYER_EMAIL",
		ActionSource:   "fiche_prospect",
		EntiteType:     "prospect",
		EntiteId:       "42",
		Metadonnees:    json.RawMessage(`{"modeleEmail":"relance","destinataires":["x@y.fr"],"objet":"Relance"}`),
		ResponseConfig: request.ResponseConfig{ExpectedResponse: "notification", TimeoutSeconds: 30},
		OwnerSessionId: "session-1",
		OwnerRole:      "COMMERCIAL",
	}
}

func TestDispatchAccepted(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	pub := &fakePublisher{}
	svc := NewDispatchService(reg, pub, "formalink.actions", 60)

	ack, conflict, err := svc.Dispatch(context.Background(), validDispatchRequest())
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}
	if ack == nil || ack.CorrelationId != "corr-abc" || ack.Statut != "accepte" {
		t.Fatalf("bad ack: %+v", ack)
	}
	if ack.TimeoutSeconds != 30 {
		t.Fatalf("ack timeout = %d, want request value 30", ack.TimeoutSeconds)
	}

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("expected one published message, got %d", len(msgs))
	}
	if msgs[0].Topic != "formalink.actions" {
		t.Fatalf("topic = %q", msgs[0].Topic)
	}
	if string(msgs[0].Key) != "corr-abc" {
		t.Fatalf("message key should be the correlation id, got %q", msgs[0].Key)
	}

	var env map[string]interface{}
	if err := json.Unmarshal(msgs[0].Value, &env); err != nil {
		t.Fatalf("envelope is not valid json: %v", err)
	}
	if env["correlationId"] != "corr-abc" || env["demandeurSessionId"] != "session-1" {
		t.Fatalf("envelope missing identity fields: %v", env)
	}
	if reg.Len() != 1 {
		t.Fatalf("pending entry should be registered, len=%d", reg.Len())
	}
}

func TestDispatchValidationHasNoSideEffects(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	pub := &fakePublisher{}
	svc := NewDispatchService(reg, pub, "formalink.actions", 60)

	bad := validDispatchRequest()
	bad.EntiteId = ""
	_, _, err := svc.Dispatch(context.Background(), bad)
	if err == nil {
		t.Fatal("missing entity reference must be rejected")
	}
	var ce *xerr.CodeError
	if !errors.As(err, &ce) || ce.Code != xerr.BadRequest {
		t.Fatalf("want BadRequest, got %v", err)
	}
	if reg.Len() != 0 || len(pub.published()) != 0 {
		t.Fatal("rejected request must leave no trace")
	}
}

func TestDispatchConflictReturnsRemaining(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	pub := &fakePublisher{}
	svc := NewDispatchService(reg, pub, "formalink.actions", 60)

	if _, _, err := svc.Dispatch(context.Background(), validDispatchRequest()); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	second := validDispatchRequest()
	second.CorrelationId = "corr-def"
	ack, conflict, err := svc.Dispatch(context.Background(), second)
	if err != nil || ack != nil {
		t.Fatalf("conflict must not be an error or an ack: ack=%+v err=%v", ack, err)
	}
	if conflict == nil || conflict.CorrelationId != "corr-abc" {
		t.Fatalf("conflict should name the live correlation, got %+v", conflict)
	}
	if conflict.RemainingSeconds <= 0 || conflict.RemainingSeconds > 30 {
		t.Fatalf("remaining = %d, want within (0, 30]", conflict.RemainingSeconds)
	}
	if len(pub.published()) != 1 {
		t.Fatal("conflicting dispatch must not reach the workflow engine")
	}
}

func TestDispatchPublishFailureEvictsPending(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	pub := &fakePublisher{failWith: errors.New("broker down")}
	svc := NewDispatchService(reg, pub, "formalink.actions", 60)

	_, _, err := svc.Dispatch(context.Background(), validDispatchRequest())
	if err == nil {
		t.Fatal("publish failure must surface as an error")
	}
	var ce *xerr.CodeError
	if !errors.As(err, &ce) || ce.Code != xerr.InternalServerError {
		t.Fatalf("want InternalServerError, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("pending entry must be evicted so retries are not blocked")
	}

	// 恢复后立即重试应可通过
	pub.failWith = nil
	if _, conflict, err := svc.Dispatch(context.Background(), validDispatchRequest()); err != nil || conflict != nil {
		t.Fatalf("retry after eviction should succeed: conflict=%+v err=%v", conflict, err)
	}
}

func TestDispatchDefaultTimeout(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	svc := NewDispatchService(reg, &fakePublisher{}, "formalink.actions", 45)

	req := validDispatchRequest()
	req.ResponseConfig.TimeoutSeconds = 0
	ack, _, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if ack.TimeoutSeconds != 45 {
		t.Fatalf("ack timeout = %d, want configured default 45", ack.TimeoutSeconds)
	}
}

func TestDispatchRejectsInvalidMetadata(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	svc := NewDispatchService(reg, &fakePublisher{}, "formalink.actions", 60)

	req := validDispatchRequest()
	req.Metadonnees = json.RawMessage(`{"destinataire":`)
	if _, _, err := svc.Dispatch(context.Background(), req); err == nil {
		t.Fatal("malformed metadata must be rejected")
	}
	if reg.Len() != 0 {
		t.Fatal("rejected request must not register a correlation")
	}
}

func TestDispatchUnknownActionTypeForwarded(t *testing.T) {
	reg := correlation.NewRegistry(5 * time.Second)
	pub := &fakePublisher{}
	svc := NewDispatchService(reg, pub, "formalink.actions", 60)

	// 清单之外的类型照常受理，元数据原样进信封
	req := validDispatchRequest()
	req.CorrelationId = "corr-raw"
	req.ActionType = "EXPORTER_CSV"
	req.Metadonnees = json.RawMessage(`{"fichier":"prospects.csv"}`)

	ack, conflict, err := svc.Dispatch(context.Background(), req)
	if err != nil || conflict != nil {
		t.Fatalf("unknown action type must still dispatch: err=%v conflict=%+v", err, conflict)
	}
	if ack.Statut != "accepte" {
		t.Fatalf("ack = %+v", ack)
	}

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("expected one published message, got %d", len(msgs))
	}
	var env struct {
		ActionType  string          `json:"actionType"`
		Metadonnees json.RawMessage `json:"metadonnees"`
	}
	if err := json.Unmarshal(msgs[0].Value, &env); err != nil {
		t.Fatalf("envelope is not valid json: %v", err)
	}
	if env.ActionType != "EXPORTER_CSV" {
		t.Fatalf("actionType = %q", env.ActionType)
	}
	var meta map[string]string
	if err := json.Unmarshal(env.Metadonnees, &meta); err != nil || meta["fichier"] != "prospects.csv" {
		t.Fatalf("metadata must pass through untouched, got %s", env.Metadonnees)
	}
}
