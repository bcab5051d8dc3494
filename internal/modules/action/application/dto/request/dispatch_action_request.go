package request

import "encoding/json"

// ResponseConfig 调用方期望的响应配置
type ResponseConfig struct {
	ExpectedResponse string `json:"expectedResponse"`
	TimeoutSeconds   int    `json:"timeoutSeconds"`
}

// DispatchActionRequest 动作触发请求。correlationId 由调用方生成，
// 要求全局唯一；entiteData 是给工作流引擎的反规范化快照。
type DispatchActionRequest struct {
	CorrelationId string `json:"correlationId"`
	ActionType    string `json:"actionType"`
	ActionSource  string `json:"actionSource"`
	ActionButton  string `json:"actionButton"`

	EntiteType string          `json:"entiteType"`
	EntiteId   string          `json:"entiteId"`
	EntiteData json.RawMessage `json:"entiteData,omitempty"`

	DecisionType string          `json:"decisionType,omitempty"`
	Commentaire  string          `json:"commentaire,omitempty"`
	Metadonnees  json.RawMessage `json:"metadonnees,omitempty"`

	ResponseConfig ResponseConfig `json:"responseConfig"`

	// 以下由网关从会话上下文填充，不信任请求体
	OwnerSessionId string `json:"-"`
	OwnerRole      string `json:"-"`
	Audience       string `json:"audience,omitempty"`
}
