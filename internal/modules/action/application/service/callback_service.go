package service

import (
	"context"
	"time"

	"FormaLink/internal/modules/action/application/dto/request"
	"FormaLink/internal/modules/action/domain/correlation"
	notifService "FormaLink/internal/modules/notification/application/service"
	notifEntity "FormaLink/internal/modules/notification/domain/entity"
	notifRepository "FormaLink/internal/modules/notification/domain/repository"
	"FormaLink/pkg/redis"
	"FormaLink/pkg/ws"
	"FormaLink/pkg/xerr"
	"FormaLink/pkg/zlog"

	"go.uber.org/zap"
)

// callbackMarkerTTL 回调一次性标记的保留时长，覆盖引擎的重试窗口
const callbackMarkerTTL = 24 * time.Hour

func callbackMarkerKey(correlationId string) string {
	return "formalink:callback:" + correlationId
}

// CallbackService 回调摄取 (Application Service)。
// 工作流引擎按 at-least-once 投递，这里必须全程幂等：
// redis 一次性标记 → 登记表单次结案 → correlation_id 唯一索引，三层兜底。
type CallbackService interface {
	Ingest(ctx context.Context, req request.WorkflowCallbackRequest) error
}

type callbackServiceImpl struct {
	registry  *correlation.Registry
	notifRepo notifRepository.NotificationRepository
	notifSvc  notifService.NotificationService
	pusher    notifService.Pusher
}

// NewCallbackService 构造函数
func NewCallbackService(registry *correlation.Registry, notifRepo notifRepository.NotificationRepository, notifSvc notifService.NotificationService, pusher notifService.Pusher) CallbackService {
	return &callbackServiceImpl{
		registry:  registry,
		notifRepo: notifRepo,
		notifSvc:  notifSvc,
		pusher:    pusher,
	}
}

func (s *callbackServiceImpl) Ingest(ctx context.Context, req request.WorkflowCallbackRequest) error {
	if req.CorrelationId == "" {
		return xerr.New(xerr.BadRequest, "correlationId manquant")
	}
	if req.Outcome != request.OutcomeSuccess && req.Outcome != request.OutcomeError {
		return xerr.New(xerr.BadRequest, "outcome invalide: "+req.Outcome)
	}

	// 1. 跨投递幂等：redis 可用时用一次性标记拦掉重复回调
	if redis.IsConnected() {
		ok, err := redis.SetNX(ctx, callbackMarkerKey(req.CorrelationId), "1", callbackMarkerTTL)
		if err != nil {
			zlog.Warn("callback marker failed, falling back to registry/db dedup: " + err.Error())
		} else if !ok {
			zlog.Info("duplicate workflow callback dropped",
				zap.String("correlation_id", req.CorrelationId))
			return nil
		}
	}

	// 2. 结案。未知或已过期的关联：记日志，监听方不再收到任何事件，
	// 但通知行仍然落库广播（用户稍后在通知列表里看到迟到的结果）。
	pending, resolved := s.registry.Resolve(req.CorrelationId)
	if !resolved {
		zlog.Info("workflow callback for unknown or evicted correlation",
			zap.String("correlation_id", req.CorrelationId))
	}

	// 3. 数据库层幂等兜底（redis 未配置或标记失败时生效）
	exists, err := s.notifRepo.ExistsByCorrelation(ctx, req.CorrelationId)
	if err != nil {
		zlog.Error(err.Error())
		s.rollback(ctx, req.CorrelationId, pending, resolved)
		return xerr.ErrServerError
	}
	if exists {
		zlog.Info("notification already synthesized for correlation",
			zap.String("correlation_id", req.CorrelationId))
		return nil
	}

	notif := s.synthesize(req, pending)
	if notif.DestinataireId == "" && notif.Audience == "" {
		// 没有任何可投递的受众（过期且回调也没带收件人），只记录不落库
		zlog.Warn("workflow callback has no addressable recipient, dropped",
			zap.String("correlation_id", req.CorrelationId))
		return nil
	}

	if err := s.notifSvc.PublishNotification(ctx, notif); err != nil {
		// 落库失败必须撤销已消费的幂等状态，否则引擎的重投会被当成重复丢弃，
		// 结果永久丢失
		s.rollback(ctx, req.CorrelationId, pending, resolved)
		return err
	}

	// 4. 只有成功结案才推送关联事件：监听方还在等这一帧
	if resolved && s.pusher != nil {
		s.pusher.SendEvent(pending.OwnerSessionId, ws.EventWorkflowResponse, map[string]interface{}{
			"correlationId": req.CorrelationId,
			"status":        req.Outcome,
		})
	}
	return nil
}

// rollback 瞬时失败时撤销已消费的幂等状态：退回 redis 一次性标记、把在途
// 登记放回登记表，让引擎的下一次重投走完整流程（收件人信息不丢）
func (s *callbackServiceImpl) rollback(ctx context.Context, correlationId string, pending *correlation.Pending, resolved bool) {
	if redis.IsConnected() {
		if _, err := redis.Del(ctx, callbackMarkerKey(correlationId)); err != nil {
			zlog.Warn("callback marker release failed: " + err.Error())
		}
	}
	if resolved && pending != nil {
		if _, ok := s.registry.Register(pending); !ok {
			zlog.Warn("pending correlation not restored, slot already taken",
				zap.String("correlation_id", correlationId))
		}
	}
}

// synthesize 按回调终态合成通知行，成功与失败有不同的分类/优先级缺省
func (s *callbackServiceImpl) synthesize(req request.WorkflowCallbackRequest, pending *correlation.Pending) *notifEntity.Notification {
	p := req.ResultPayload

	notif := &notifEntity.Notification{
		SourceAgent:   "workflow",
		Categorie:     p.Categorie,
		Type:          p.Type,
		Priorite:      p.Priorite,
		Titre:         p.Titre,
		Message:       p.Message,
		LienAction:    p.LienAction,
		ActionRequise: p.ActionRequise,
		TypeAction:    p.TypeAction,
		EntiteType:    p.EntiteType,
		EntiteId:      p.EntiteId,
		CorrelationId: &req.CorrelationId,
		CreatedAt:     time.Now(),
	}

	if notif.Categorie == "" {
		notif.Categorie = notifEntity.CategorieWorkflow
	}
	if req.Outcome == request.OutcomeError {
		if notif.Type == "" {
			notif.Type = notifEntity.TypeActionEchouee
		}
		if notif.Priorite == "" {
			notif.Priorite = notifEntity.PrioriteHaute
		}
		if notif.Titre == "" {
			notif.Titre = "Action échouée"
		}
	} else {
		if notif.Type == "" {
			notif.Type = notifEntity.TypeActionTerminee
		}
		if notif.Priorite == "" {
			notif.Priorite = notifEntity.PrioriteNormale
		}
		if notif.Titre == "" {
			notif.Titre = "Action terminée"
		}
	}

	// 受众：原始动作指定的受众优先，其次回调负载，最后退回发起人
	if pending != nil {
		notif.DestinataireId = pending.OwnerSessionId
		notif.Audience = pending.Audience
		if notif.EntiteType == "" {
			notif.EntiteType = pending.Key.EntiteType
			notif.EntiteId = pending.Key.EntiteId
		}
	}
	if notif.DestinataireId == "" {
		notif.DestinataireId = p.DestinataireId
	}
	if notif.Audience == "" {
		notif.Audience = p.Audience
	}
	return notif
}
