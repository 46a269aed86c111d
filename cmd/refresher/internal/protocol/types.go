package protocol

import "github.com/shubham-shewale/price-widget/pkg/models"

const (
	ActionAttach    = "attach"
	ActionDetach    = "detach"
	ActionDetachAll = "detach_all"
	ActionRefresh   = "refresh"
	ActionTap       = "tap"
)

const (
	TypeAck   = "ack"
	TypeError = "error"
	TypeView  = "view"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Instances []models.InstanceID `json:"instances"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error", "view"
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
