package entity

import "time"

// 优先级，URGENTE 在客户端额外触发系统级提醒
const (
	PrioriteBasse   = "BASSE"
	PrioriteNormale = "NORMALE"
	PrioriteHaute   = "HAUTE"
	PrioriteUrgente = "URGENTE"
)

// 受众：DestinataireId 定向单人；Audience 定向角色分组，TOUS 广播所有人
const (
	AudienceTous = "TOUS"
)

// 常用分类
const (
	CategorieWorkflow = "WORKFLOW"
	CategorieSysteme  = "SYSTEME"
)

// 工作流回调合成通知的缺省类型
const (
	TypeActionTerminee = "ACTION_TERMINEE"
	TypeActionEchouee  = "ACTION_ECHOUEE"
	TypeRappelAction   = "RAPPEL_ACTION"
)

// Notification 通知实体。主键自增，天然按创建时间单调有序。
// entite_type/entite_id 是对业务对象的弱引用，业务对象删除后通知仍然有效。
// correlation_id 唯一索引兜底回调的 at-least-once 重复投递。
type Notification struct {
	Id            int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SourceAgent   string `gorm:"column:source_agent;type:varchar(50)" json:"sourceAgent"`
	Categorie     string `gorm:"column:categorie;type:varchar(30);index;not null" json:"categorie"`
	Type          string `gorm:"column:type;type:varchar(50);not null" json:"type"`
	Priorite      string `gorm:"column:priorite;type:varchar(10);index;not null;default:NORMALE" json:"priorite"`
	Titre         string `gorm:"column:titre;type:varchar(200)" json:"titre"`
	Message       string `gorm:"column:message;type:text" json:"message"`
	Audience      string `gorm:"column:audience;type:varchar(30);index" json:"audience"`
	DestinataireId string `gorm:"column:destinataire_id;type:char(36);index" json:"destinataireId"`

	EntiteType string `gorm:"column:entite_type;type:varchar(30)" json:"entiteType,omitempty"`
	EntiteId   string `gorm:"column:entite_id;type:varchar(36)" json:"entiteId,omitempty"`

	LienAction      string `gorm:"column:lien_action;type:varchar(255)" json:"lienAction,omitempty"`
	ActionRequise   bool   `gorm:"column:action_requise;not null;default:0" json:"actionRequise"`
	TypeAction      string `gorm:"column:type_action;type:varchar(50)" json:"typeAction,omitempty"`
	ActionEffectuee bool   `gorm:"column:action_effectuee;not null;default:0" json:"actionEffectuee"`

	Lue         bool       `gorm:"column:lue;not null;default:0;index" json:"lue"`
	DateLecture *time.Time `gorm:"column:date_lecture;type:datetime" json:"dateLecture,omitempty"`

	// 可空列：MySQL 的唯一索引对 NULL 不去重，非关联通知留空即可
	CorrelationId *string   `gorm:"column:correlation_id;type:varchar(64);uniqueIndex" json:"correlationId,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;type:datetime;not null" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Counts 聚合计数快照，welcome 初始化与周期性 counts 帧共用
type Counts struct {
	Total           int64 `json:"total"`
	NonLues         int64 `json:"nonLues"`
	Urgentes        int64 `json:"urgentes"`
	ActionsRequises int64 `json:"actionsRequises"`
}
