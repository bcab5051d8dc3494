package service

import (
	"context"

	"FormaLink/internal/modules/notification/application/dto/request"
	"FormaLink/internal/modules/notification/application/dto/respond"
	"FormaLink/internal/modules/notification/domain/entity"
	"FormaLink/internal/modules/notification/domain/repository"
	"FormaLink/pkg/ws"
	"FormaLink/pkg/xerr"
	"FormaLink/pkg/zlog"
)

// Pusher 推送通道抽象，由 pkg/ws 的 Hub 实现
type Pusher interface {
	SendEvent(sessionID string, event string, data interface{}) bool
	BroadcastEvent(group string, event string, data interface{})
	BroadcastAll(event string, data interface{})
}

// NotificationService 接口定义 (Application Service)
type NotificationService interface {
	GetNotificationList(ctx context.Context, req request.GetNotificationListRequest) (*respond.NotificationListRespond, error)
	GetCounts(ctx context.Context, identity string, role string) (*entity.Counts, error)
	MarkAsRead(ctx context.Context, req request.MarkAsReadRequest) (*entity.Counts, error)
	MarkAllAsRead(ctx context.Context, req request.MarkAllAsReadRequest) (*respond.MarkAllAsReadRespond, error)
	ExecuteAction(ctx context.Context, req request.ExecuteActionRequest) error

	// PublishNotification 落库并推送 notification 帧（回调合成与定时任务共用入口）
	PublishNotification(ctx context.Context, notif *entity.Notification) error
}

type notificationServiceImpl struct {
	repo   repository.NotificationRepository
	pusher Pusher
}

// NewNotificationService 构造函数
func NewNotificationService(repo repository.NotificationRepository, pusher Pusher) NotificationService {
	return &notificationServiceImpl{repo: repo, pusher: pusher}
}

func (s *notificationServiceImpl) GetNotificationList(ctx context.Context, req request.GetNotificationListRequest) (*respond.NotificationListRespond, error) {
	filter := repository.ListFilter{
		Categorie:     req.Categorie,
		Priorite:      req.Priorite,
		NonLuesSeules: req.NonLuesSeules,
		Page:          req.Page,
		PageSize:      req.PageSize,
	}
	items, total, err := s.repo.List(ctx, req.OwnerId, req.Role, filter)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return &respond.NotificationListRespond{Items: items, Total: total, Page: page}, nil
}

func (s *notificationServiceImpl) GetCounts(ctx context.Context, identity string, role string) (*entity.Counts, error) {
	counts, err := s.repo.Counts(ctx, identity, role)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return counts, nil
}

func (s *notificationServiceImpl) MarkAsRead(ctx context.Context, req request.MarkAsReadRequest) (*entity.Counts, error) {
	if req.NotificationId <= 0 {
		return nil, xerr.ErrParam
	}
	if err := s.repo.MarkAsRead(ctx, req.NotificationId, req.OwnerId, req.Role); err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	return s.GetCounts(ctx, req.OwnerId, req.Role)
}

func (s *notificationServiceImpl) MarkAllAsRead(ctx context.Context, req request.MarkAllAsReadRequest) (*respond.MarkAllAsReadRespond, error) {
	n, err := s.repo.MarkAllAsRead(ctx, req.OwnerId, req.Role)
	if err != nil {
		zlog.Error(err.Error())
		return nil, xerr.ErrServerError
	}
	counts, err := s.GetCounts(ctx, req.OwnerId, req.Role)
	if err != nil {
		return nil, err
	}
	// 推送最新计数，纠正其它标签页/设备的本地缓存漂移
	if s.pusher != nil {
		s.pusher.SendEvent(req.OwnerId, ws.EventCounts, counts)
	}
	return &respond.MarkAllAsReadRespond{NbMarquees: n, Counts: counts}, nil
}

func (s *notificationServiceImpl) ExecuteAction(ctx context.Context, req request.ExecuteActionRequest) error {
	if req.NotificationId <= 0 {
		return xerr.ErrParam
	}
	notif, err := s.repo.GetByID(ctx, req.NotificationId)
	if err != nil {
		return xerr.ErrNotFound
	}
	if !notif.ActionRequise {
		return xerr.New(xerr.BadRequest, "Cette notification ne porte aucune action")
	}

	done, err := s.repo.MarkActionEffectuee(ctx, req.NotificationId)
	if err != nil {
		zlog.Error(err.Error())
		return xerr.ErrServerError
	}
	if !done {
		// 已经处理过：单调转移，不报错也不重复推送
		return nil
	}

	if s.pusher != nil {
		payload := map[string]interface{}{
			"notificationId":  notif.Id,
			"actionEffectuee": true,
		}
		if notif.DestinataireId != "" {
			s.pusher.SendEvent(notif.DestinataireId, ws.EventActionCompleted, payload)
		}
		if notif.Audience == entity.AudienceTous {
			s.pusher.BroadcastAll(ws.EventActionCompleted, payload)
		} else if notif.Audience != "" {
			s.pusher.BroadcastEvent(notif.Audience, ws.EventActionCompleted, payload)
		}
	}
	return nil
}

func (s *notificationServiceImpl) PublishNotification(ctx context.Context, notif *entity.Notification) error {
	if notif == nil {
		return xerr.ErrParam
	}
	if err := s.repo.Create(ctx, notif); err != nil {
		zlog.Error("notification create failed: " + err.Error())
		return xerr.ErrServerError
	}

	if s.pusher == nil {
		return nil
	}
	if notif.DestinataireId != "" {
		s.pusher.SendEvent(notif.DestinataireId, ws.EventNotification, notif)
	}
	if notif.Audience == entity.AudienceTous {
		s.pusher.BroadcastAll(ws.EventNotification, notif)
	} else if notif.Audience != "" {
		s.pusher.BroadcastEvent(notif.Audience, ws.EventNotification, notif)
	}
	return nil
}
