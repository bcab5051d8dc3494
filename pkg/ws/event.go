package ws

// 推送通道上的命名事件，与前端约定保持一致
const (
	EventWelcome          = "welcome"
	EventCounts           = "counts"
	EventNotification     = "notification"
	EventActionCompleted  = "action_completed"
	EventWorkflowResponse = "workflow_response"
	EventHeartbeat        = "heartbeat"
)

// Frame 推送通道上的统一帧结构
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
