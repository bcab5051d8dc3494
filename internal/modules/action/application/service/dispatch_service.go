package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FormaLink/internal/modules/action/application/dto/request"
	"FormaLink/internal/modules/action/application/dto/respond"
	"FormaLink/internal/modules/action/domain/action"
	"FormaLink/internal/modules/action/domain/correlation"
	"FormaLink/internal/modules/action/infrastructure/mq"
	"FormaLink/pkg/xerr"
	"FormaLink/pkg/zlog"

	"go.uber.org/zap"
)

// DispatchService 动作调度网关 (Application Service)。
// 受理后即返回：真实业务结果由工作流引擎回调，经推送通道送达。
type DispatchService interface {
	// Dispatch 返回三选一：受理确认 / 冲突详情 / 错误
	Dispatch(ctx context.Context, req request.DispatchActionRequest) (*respond.DispatchAckRespond, *respond.ConflictRespond, error)
}

type dispatchServiceImpl struct {
	registry       *correlation.Registry
	publisher      mq.Publisher
	topic          string
	defaultTimeout int
}

// NewDispatchService 构造函数。registry 由进程启动时创建并注入。
func NewDispatchService(registry *correlation.Registry, publisher mq.Publisher, topic string, defaultTimeoutSeconds int) DispatchService {
	if defaultTimeoutSeconds <= 0 {
		defaultTimeoutSeconds = 60
	}
	return &dispatchServiceImpl{
		registry:       registry,
		publisher:      publisher,
		topic:          topic,
		defaultTimeout: defaultTimeoutSeconds,
	}
}

// workflowEnvelope 发给工作流引擎的消息体
type workflowEnvelope struct {
	CorrelationId string             `json:"correlationId"`
	ActionType    string             `json:"actionType"`
	ActionSource  string             `json:"actionSource,omitempty"`
	ActionButton  string             `json:"actionButton,omitempty"`
	EntiteType    string             `json:"entiteType"`
	EntiteId      string             `json:"entiteId"`
	EntiteData    json.RawMessage    `json:"entiteData,omitempty"`
	DecisionType  string             `json:"decisionType,omitempty"`
	Commentaire   string             `json:"commentaire,omitempty"`
	Metadonnees   action.Metadonnees `json:"metadonnees,omitempty"`

	ResponseConfig request.ResponseConfig `json:"responseConfig"`

	DemandeurSessionId string    `json:"demandeurSessionId"`
	DemandeurRole      string    `json:"demandeurRole,omitempty"`
	Horodatage         time.Time `json:"horodatage"`
}

func (s *dispatchServiceImpl) Dispatch(ctx context.Context, req request.DispatchActionRequest) (*respond.DispatchAckRespond, *respond.ConflictRespond, error) {
	// 1. 校验：缺字段直接拒绝，不产生任何副作用
	if req.CorrelationId == "" {
		return nil, nil, xerr.New(xerr.BadRequest, "correlationId manquant")
	}
	if req.ActionType == "" {
		return nil, nil, xerr.New(xerr.BadRequest, "actionType manquant")
	}
	if req.EntiteType == "" || req.EntiteId == "" {
		return nil, nil, xerr.New(xerr.BadRequest, "Référence d'entité manquante (entiteType / entiteId)")
	}

	if !action.IsValidType(req.ActionType) {
		// 未知类型原样转发（元数据走 RawMeta），记一笔便于排查拼写错误
		zlog.Info("unrecognized action type forwarded as-is",
			zap.String("action_type", req.ActionType),
			zap.String("correlation_id", req.CorrelationId))
	}

	meta, err := action.ParseMetadonnees(req.ActionType, req.Metadonnees)
	if err != nil {
		return nil, nil, xerr.New(xerr.BadRequest, "Métadonnées invalides pour l'action "+req.ActionType)
	}

	timeout := req.ResponseConfig.TimeoutSeconds
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	now := time.Now()
	pending := &correlation.Pending{
		CorrelationId: req.CorrelationId,
		Key: correlation.Key{
			EntiteType: req.EntiteType,
			EntiteId:   req.EntiteId,
			ActionType: req.ActionType,
		},
		OwnerSessionId:   req.OwnerSessionId,
		Audience:         req.Audience,
		ExpectedResponse: req.ResponseConfig.ExpectedResponse,
		RegisteredAt:     now,
		ExpiresAt:        now.Add(time.Duration(timeout) * time.Second),
	}

	// 2. 冲突检查 + 登记（登记表内部原子完成）
	existing, ok := s.registry.Register(pending)
	if !ok {
		remaining := int(existing.Remaining(now).Round(time.Second).Seconds())
		zlog.Info("action dispatch conflict",
			zap.String("correlation_id", req.CorrelationId),
			zap.String("existing_id", existing.CorrelationId))
		return nil, &respond.ConflictRespond{
			CorrelationId:    existing.CorrelationId,
			RemainingSeconds: remaining,
		}, nil
	}

	// 3. 转发给工作流引擎（引擎侧为 fire-and-forget）
	envelope := workflowEnvelope{
		CorrelationId:      req.CorrelationId,
		ActionType:         req.ActionType,
		ActionSource:       req.ActionSource,
		ActionButton:       req.ActionButton,
		EntiteType:         req.EntiteType,
		EntiteId:           req.EntiteId,
		EntiteData:         req.EntiteData,
		DecisionType:       req.DecisionType,
		Commentaire:        req.Commentaire,
		Metadonnees:        meta,
		ResponseConfig:     request.ResponseConfig{ExpectedResponse: req.ResponseConfig.ExpectedResponse, TimeoutSeconds: timeout},
		DemandeurSessionId: req.OwnerSessionId,
		DemandeurRole:      req.OwnerRole,
		Horodatage:         now,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		s.registry.Evict(req.CorrelationId)
		zlog.Error("workflow envelope marshal failed: " + err.Error())
		return nil, nil, xerr.ErrServerError
	}

	_, err = s.publisher.Publish(ctx, mq.Message{
		Topic: s.topic,
		Key:   []byte(req.CorrelationId),
		Value: value,
		Headers: map[string]string{
			"actionType": req.ActionType,
		},
	})
	if err != nil {
		// 转发失败是唯一同步告知调用方结果的失败路径，
		// 立即逐出登记，避免幻影冲突挡住随后的重试
		s.registry.Evict(req.CorrelationId)
		zlog.Error("workflow dispatch failed",
			zap.Error(err),
			zap.String("correlation_id", req.CorrelationId))
		return nil, nil, xerr.New(xerr.InternalServerError, "Impossible de joindre le moteur de workflow, veuillez réessayer")
	}

	return &respond.DispatchAckRespond{
		CorrelationId:  req.CorrelationId,
		TimeoutSeconds: timeout,
		Statut:         "accepte",
	}, nil, nil
}

// ConflictMessage 冲突的人类可读文案
func ConflictMessage(conflict *respond.ConflictRespond) string {
	return fmt.Sprintf("Une action est déjà en cours pour cette entité, réessayez dans ~%ds", conflict.RemainingSeconds)
}
