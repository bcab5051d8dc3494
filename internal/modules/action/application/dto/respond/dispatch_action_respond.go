package respond

// DispatchAckRespond 受理确认：动作已转发，业务结果走推送通道
type DispatchAckRespond struct {
	CorrelationId  string `json:"correlationId"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Statut         string `json:"statut"`
}

// ConflictRespond 冲突时返回已有在途关联及其剩余等待时间
type ConflictRespond struct {
	CorrelationId    string `json:"correlationId"`
	RemainingSeconds int    `json:"remainingSeconds"`
}
