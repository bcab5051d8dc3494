package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FormaLink/internal/modules/notification/application/dto/request"
	"FormaLink/internal/modules/notification/domain/entity"
	"FormaLink/internal/modules/notification/domain/repository"
	"FormaLink/pkg/ws"
)

type stubRepo struct {
	mu   sync.Mutex
	rows map[int64]*entity.Notification

	markAllAffected int64
	counts          entity.Counts
	failCounts      bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{rows: make(map[int64]*entity.Notification)}
}

func (s *stubRepo) Create(ctx context.Context, notif *entity.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notif.Id = int64(len(s.rows) + 1)
	s.rows[notif.Id] = notif
	return nil
}

func (s *stubRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		return row, nil
	}
	return nil, errors.New("record not found")
}

func (s *stubRepo) List(ctx context.Context, identity string, role string, filter repository.ListFilter) ([]*entity.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entity.Notification, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, int64(len(out)), nil
}

func (s *stubRepo) Counts(ctx context.Context, identity string, role string) (*entity.Counts, error) {
	if s.failCounts {
		return nil, errors.New("db down")
	}
	c := s.counts
	return &c, nil
}

func (s *stubRepo) MarkAsRead(ctx context.Context, id int64, identity string, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok && !row.Lue {
		now := time.Now()
		row.Lue = true
		row.DateLecture = &now
	}
	return nil
}

func (s *stubRepo) MarkAllAsRead(ctx context.Context, identity string, role string) (int64, error) {
	return s.markAllAffected, nil
}

func (s *stubRepo) MarkActionEffectuee(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.ActionEffectuee {
		return false, nil
	}
	row.ActionEffectuee = true
	return true, nil
}

func (s *stubRepo) ExistsByCorrelation(ctx context.Context, correlationId string) (bool, error) {
	return false, nil
}

func (s *stubRepo) ListRappelsActionsRequises(ctx context.Context, olderThan time.Time) ([]*repository.RappelAgg, error) {
	return nil, nil
}

type recordingPusher struct {
	mu     sync.Mutex
	sent   []string // "target/event"
	bcast  []string // "group/event"
	global []string // event
}

func (r *recordingPusher) SendEvent(sessionID string, event string, data interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sessionID+"/"+event)
	return true
}

func (r *recordingPusher) BroadcastEvent(group string, event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcast = append(r.bcast, group+"/"+event)
}

func (r *recordingPusher) BroadcastAll(event string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, event)
}

func TestMarkAsReadReturnsFreshCounts(t *testing.T) {
	repo := newStubRepo()
	repo.counts = entity.Counts{Total: 5, NonLues: 2}
	svc := NewNotificationService(repo, &recordingPusher{})

	repo.Create(context.Background(), &entity.Notification{Titre: "t"})

	counts, err := svc.MarkAsRead(context.Background(), request.MarkAsReadRequest{
		OwnerId: "u1", Role: "COMMERCIAL", NotificationId: 1,
	})
	if err != nil {
		t.Fatalf("markAsRead failed: %v", err)
	}
	if counts == nil || counts.Total != 5 || counts.NonLues != 2 {
		t.Fatalf("counts snapshot not returned: %+v", counts)
	}
	if !repo.rows[1].Lue || repo.rows[1].DateLecture == nil {
		t.Fatal("row should be read with a read date")
	}
}

func TestMarkAsReadRejectsBadId(t *testing.T) {
	svc := NewNotificationService(newStubRepo(), nil)
	if _, err := svc.MarkAsRead(context.Background(), request.MarkAsReadRequest{NotificationId: 0}); err == nil {
		t.Fatal("id <= 0 must be rejected")
	}
}

func TestMarkAllAsReadPushesCounts(t *testing.T) {
	repo := newStubRepo()
	repo.markAllAffected = 3
	pusher := &recordingPusher{}
	svc := NewNotificationService(repo, pusher)

	resp, err := svc.MarkAllAsRead(context.Background(), request.MarkAllAsReadRequest{OwnerId: "u1", Role: "ADMIN"})
	if err != nil {
		t.Fatalf("markAllAsRead failed: %v", err)
	}
	if resp.NbMarquees != 3 {
		t.Fatalf("nbMarquees = %d, want 3", resp.NbMarquees)
	}
	if len(pusher.sent) != 1 || pusher.sent[0] != "u1/"+ws.EventCounts {
		t.Fatalf("counts frame should be pushed to the owner, got %v", pusher.sent)
	}
}

func TestExecuteActionOnce(t *testing.T) {
	repo := newStubRepo()
	pusher := &recordingPusher{}
	svc := NewNotificationService(repo, pusher)

	repo.Create(context.Background(), &entity.Notification{
		DestinataireId: "u1",
		ActionRequise:  true,
	})

	req := request.ExecuteActionRequest{OwnerId: "u1", Role: "COMMERCIAL", NotificationId: 1}
	if err := svc.ExecuteAction(context.Background(), req); err != nil {
		t.Fatalf("executeAction failed: %v", err)
	}
	if !repo.rows[1].ActionEffectuee {
		t.Fatal("action must be marked done")
	}
	if len(pusher.sent) != 1 || pusher.sent[0] != "u1/"+ws.EventActionCompleted {
		t.Fatalf("action_completed should reach the recipient, got %v", pusher.sent)
	}

	// 第二次执行：单调转移，不报错也不再推送
	if err := svc.ExecuteAction(context.Background(), req); err != nil {
		t.Fatalf("repeat executeAction must be silent: %v", err)
	}
	if len(pusher.sent) != 1 {
		t.Fatalf("no second push expected, got %v", pusher.sent)
	}
}

func TestExecuteActionRejectsNonActionable(t *testing.T) {
	repo := newStubRepo()
	svc := NewNotificationService(repo, nil)

	repo.Create(context.Background(), &entity.Notification{DestinataireId: "u1"})

	err := svc.ExecuteAction(context.Background(), request.ExecuteActionRequest{OwnerId: "u1", NotificationId: 1})
	if err == nil {
		t.Fatal("notification without a pending action must be rejected")
	}
}

func TestPublishNotificationRouting(t *testing.T) {
	cases := []struct {
		name      string
		notif     entity.Notification
		wantSent  int
		wantBcast int
		wantAll   int
	}{
		{"direct", entity.Notification{DestinataireId: "u1", Categorie: entity.CategorieWorkflow, Type: entity.TypeActionTerminee}, 1, 0, 0},
		{"role group", entity.Notification{Audience: "COMMERCIAL", Categorie: entity.CategorieWorkflow, Type: entity.TypeActionTerminee}, 0, 1, 0},
		{"everyone", entity.Notification{Audience: entity.AudienceTous, Categorie: entity.CategorieSysteme, Type: entity.TypeRappelAction}, 0, 0, 1},
		{"direct and group", entity.Notification{DestinataireId: "u1", Audience: "ADMIN", Categorie: entity.CategorieWorkflow, Type: entity.TypeActionTerminee}, 1, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubRepo()
			pusher := &recordingPusher{}
			svc := NewNotificationService(repo, pusher)

			n := tc.notif
			n.CreatedAt = time.Now()
			if err := svc.PublishNotification(context.Background(), &n); err != nil {
				t.Fatalf("publish failed: %v", err)
			}
			if len(repo.rows) != 1 {
				t.Fatal("notification must be persisted before any push")
			}
			if len(pusher.sent) != tc.wantSent || len(pusher.bcast) != tc.wantBcast || len(pusher.global) != tc.wantAll {
				t.Fatalf("routing sent=%v bcast=%v all=%v", pusher.sent, pusher.bcast, pusher.global)
			}
		})
	}
}
