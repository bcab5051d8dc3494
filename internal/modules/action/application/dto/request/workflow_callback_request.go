package request

// 工作流引擎回调的终态
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// CallbackResultPayload 引擎回传的自由负载，用于合成通知的标题/正文/分类
type CallbackResultPayload struct {
	Titre          string `json:"titre,omitempty"`
	Message        string `json:"message,omitempty"`
	Categorie      string `json:"categorie,omitempty"`
	Type           string `json:"type,omitempty"`
	Priorite       string `json:"priorite,omitempty"`
	LienAction     string `json:"lienAction,omitempty"`
	ActionRequise  bool   `json:"actionRequise,omitempty"`
	TypeAction     string `json:"typeAction,omitempty"`
	Audience       string `json:"audience,omitempty"`
	DestinataireId string `json:"destinataireId,omitempty"`
	EntiteType     string `json:"entiteType,omitempty"`
	EntiteId       string `json:"entiteId,omitempty"`
}

// WorkflowCallbackRequest 外部工作流引擎的异步回调
type WorkflowCallbackRequest struct {
	CorrelationId string                `json:"correlationId"`
	Outcome       string                `json:"outcome"`
	ResultPayload CallbackResultPayload `json:"resultPayload"`
}
