package repository

import (
	"context"
	"time"

	"FormaLink/internal/modules/notification/domain/entity"
)

// ListFilter 列表查询过滤条件
type ListFilter struct {
	Categorie     string
	Priorite      string
	NonLuesSeules bool
	Page          int
	PageSize      int
}

// RappelAgg 待处理动作的聚合（定时提醒任务使用）
type RappelAgg struct {
	DestinataireId string
	Nb             int64
}

// NotificationRepository 通知仓储接口。
// 可见性规则统一为：destinataire_id = identity，或 audience ∈ {role, TOUS}。
type NotificationRepository interface {
	Create(ctx context.Context, notif *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)

	// List 按创建时间倒序分页
	List(ctx context.Context, identity string, role string, filter ListFilter) ([]*entity.Notification, int64, error)

	// Counts 聚合计数：总数、未读、未读紧急、待处理动作
	Counts(ctx context.Context, identity string, role string) (*entity.Counts, error)

	// MarkAsRead 单条置已读，只允许 false→true，重复调用无效果
	MarkAsRead(ctx context.Context, id int64, identity string, role string) error

	// MarkAllAsRead 批量置已读，返回受影响行数
	MarkAllAsRead(ctx context.Context, identity string, role string) (int64, error)

	// MarkActionEffectuee 动作完成标记，只允许 false→true；返回是否真的发生了转移
	MarkActionEffectuee(ctx context.Context, id int64) (bool, error)

	// ExistsByCorrelation 回调幂等兜底：该关联号是否已合成过通知
	ExistsByCorrelation(ctx context.Context, correlationId string) (bool, error)

	// ListRappelsActionsRequises 聚合超过 olderThan 仍未处理的待办动作（按收件人）
	ListRappelsActionsRequises(ctx context.Context, olderThan time.Time) ([]*RappelAgg, error)
}
