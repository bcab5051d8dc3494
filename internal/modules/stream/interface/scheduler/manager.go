package scheduler

import (
	"context"
	"fmt"
	"time"

	"FormaLink/internal/modules/notification/application/service"
	notifEntity "FormaLink/internal/modules/notification/domain/entity"
	notifRepository "FormaLink/internal/modules/notification/domain/repository"
	"FormaLink/pkg/ws"
	"FormaLink/pkg/zlog"

	"github.com/robfig/cron/v3"
)

// rappelAge 待处理动作超过该时长未处理才进入每日提醒
const rappelAge = 24 * time.Hour

// Manager 定时任务：每日待办提醒 + 周期性计数快照推送。
// 计数重推只面向在线会话，用于纠正客户端缓存漂移。
type Manager struct {
	cron     *cron.Cron
	repo     notifRepository.NotificationRepository
	notifSvc service.NotificationService
	hub      *ws.Hub

	refreshEvery time.Duration
	stopChan     chan struct{}
}

func NewManager(repo notifRepository.NotificationRepository, notifSvc service.NotificationService, hub *ws.Hub, refreshEvery time.Duration) *Manager {
	if refreshEvery <= 0 {
		refreshEvery = time.Minute
	}
	return &Manager{
		// 使用标准5段Cron表达式（不含秒）
		cron:         cron.New(),
		repo:         repo,
		notifSvc:     notifSvc,
		hub:          hub,
		refreshEvery: refreshEvery,
		stopChan:     make(chan struct{}),
	}
}

func (m *Manager) Start() {
	// 每天早上 8 点生成待办提醒
	if _, err := m.cron.AddFunc("0 8 * * *", m.pushRappels); err != nil {
		zlog.Error("cron schedule failed: " + err.Error())
	}
	m.cron.Start()
	go m.runCountsRefresher()
	zlog.Info("stream scheduler started")
}

func (m *Manager) Stop() {
	m.cron.Stop()
	close(m.stopChan)
}

// pushRappels 信息类通知由内部定时任务产生（非回调合成的那条路径）
func (m *Manager) pushRappels() {
	ctx := context.Background()
	aggs, err := m.repo.ListRappelsActionsRequises(ctx, time.Now().Add(-rappelAge))
	if err != nil {
		zlog.Error("rappel aggregation failed: " + err.Error())
		return
	}
	for _, agg := range aggs {
		if agg == nil || agg.DestinataireId == "" || agg.Nb == 0 {
			continue
		}
		notif := &notifEntity.Notification{
			SourceAgent:    "scheduler",
			Categorie:      notifEntity.CategorieSysteme,
			Type:           notifEntity.TypeRappelAction,
			Priorite:       notifEntity.PrioriteHaute,
			Titre:          "Actions en attente",
			Message:        fmt.Sprintf("Vous avez %d action(s) en attente depuis plus de 24h", agg.Nb),
			DestinataireId: agg.DestinataireId,
			ActionRequise:  false,
			CreatedAt:      time.Now(),
		}
		if err := m.notifSvc.PublishNotification(ctx, notif); err != nil {
			zlog.Error("rappel publish failed: " + err.Error())
		}
	}
}

func (m *Manager) runCountsRefresher() {
	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.refreshCounts()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) refreshCounts() {
	ctx := context.Background()
	for _, s := range m.hub.Sessions() {
		counts, err := m.repo.Counts(ctx, s.ID, s.Group)
		if err != nil {
			continue
		}
		m.hub.SendEvent(s.ID, ws.EventCounts, counts)
	}
}
