package dto

import "encoding/json"

// ClientCommand 表示从客户端 WebSocket 消息中接收的指令信封。
type ClientCommand struct {
	Event string          `json:"event" binding:"required,oneof=joinRoom leaveAllRoom"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomRequest 是 joinRoom 指令的载荷。
type JoinRoomRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
}

// ServerEvent 表示推送给客户端的事件信封。
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ConnectionStatus 在连接建立后通过私有房间回发给客户端。
type ConnectionStatus struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Status       string `json:"status"`
}

// JoinRoomStatus 是 joinRoom/leaveAllRoom 指令的回执。
type JoinRoomStatus struct {
	ConversationID string `json:"conversationId,omitempty"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}
