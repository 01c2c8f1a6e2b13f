package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"group-chat-server/internal/authz"
	"group-chat-server/internal/dto"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// 推送给客户端的事件名
const (
	EventConnectionStatus = "connectionStatus"
	EventJoinRoomStatus   = "joinRoomStatus"
	EventNewMessage       = "newMessage"
	EventNewMedia         = "newMedia"
)

// 客户端指令名
const (
	commandJoinRoom     = "joinRoom"
	commandLeaveAllRoom = "leaveAllRoom"
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "command"
	Client  *Client // 来源客户端
	RawData []byte  // 仅用于 command (原始 WebSocket 消息)
}

// Hub 维护活跃客户端集合并协调房间成员关系。
//
// 每个连接注册后自动拥有一个以连接 ID 命名的私有房间，用于点对点回执；
// 此外每个连接同一时刻至多加入一个会话房间 (加入新房间前先退出旧房间)。
// joinRoom 通过授权桥校验成员资格，校验不过则断开连接。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 房间集合：map[roomID]map[*Client]bool。
	// roomID 既可以是会话 ID，也可以是连接 ID (私有房间)。
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	// 每个客户端当前加入的会话房间 (不含私有房间)，保证房间互斥
	clientRoom map[*Client]string

	// 注入的授权桥，回答"该用户是否在该会话中"
	bridge *authz.Bridge
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(bridge *authz.Bridge) *Hub {
	if bridge == nil {
		panic("authz.Bridge cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		clientRoom:  make(map[*Client]string),
		bridge:      bridge,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "command":
			// 异步处理客户端指令，避免阻塞 Hub 主循环
			go h.handleClientCommand(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册逻辑。
// 注册即加入以连接 ID 命名的私有房间，并回发 connectionStatus。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"connection_id": client.ConnectionID(),
		"user_id":       client.UserID(),
		"action":        "registerClient",
	})

	h.roomsMu.Lock()
	h.joinRoomLocked(client.ConnectionID(), client)
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	h.SendToConnection(client.ConnectionID(), EventConnectionStatus, dto.ConnectionStatus{
		ConnectionID: client.ConnectionID(),
		UserID:       client.UserID(),
		Status:       "connected",
	})
}

// unregisterClient 处理客户端注销逻辑，将其从所有房间移除并关闭发送通道。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"connection_id": client.ConnectionID(),
		"user_id":       client.UserID(),
		"action":        "unregisterClient",
	})

	h.roomsMu.Lock()
	removed := false
	for roomID, roomClients := range h.rooms {
		if _, ok := roomClients[client]; !ok {
			continue
		}
		delete(roomClients, client)
		removed = true
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clientRoom, client)
	h.roomsMu.Unlock()

	if removed {
		// 关闭 send 通道使 WritePump 退出；防止重复关闭
		select {
		case <-client.send:
			logCtx.Warn("Client send channel already closed or has data during unregister")
		default:
			close(client.send)
		}
		logCtx.Info("Client unregistered from Hub")
	} else {
		logCtx.Warn("Client not found in any room during unregister")
	}
}

// handleClientCommand 异步处理客户端发来的指令消息
func (h *Hub) handleClientCommand(msg HubMessage) {
	client := msg.Client
	logCtx := logrus.WithFields(logrus.Fields{
		"connection_id": client.ConnectionID(),
		"user_id":       client.UserID(),
		"operation":     "handleClientCommand",
	})

	var command dto.ClientCommand
	if err := json.Unmarshal(msg.RawData, &command); err != nil {
		logCtx.WithError(err).Warn("Failed to parse client command")
		h.SendToConnection(client.ConnectionID(), EventJoinRoomStatus, dto.JoinRoomStatus{
			Status:  "error",
			Message: "invalid command payload",
		})
		return
	}

	switch command.Event {
	case commandJoinRoom:
		h.handleJoinRoom(client, command.Data)
	case commandLeaveAllRoom:
		h.LeaveAllRooms(client)
		h.SendToConnection(client.ConnectionID(), EventJoinRoomStatus, dto.JoinRoomStatus{
			Status: "left",
		})
	default:
		logCtx.Warnf("Received unknown client command: %s", command.Event)
	}
}

// handleJoinRoom 校验成员资格并让客户端加入会话房间。
// 授权失败一律视为非成员：回发错误回执后断开连接。
func (h *Hub) handleJoinRoom(client *Client, rawData []byte) {
	logCtx := logrus.WithFields(logrus.Fields{
		"connection_id": client.ConnectionID(),
		"user_id":       client.UserID(),
		"operation":     "handleJoinRoom",
	})

	var req dto.JoinRoomRequest
	if err := json.Unmarshal(rawData, &req); err != nil || req.ConversationID == "" {
		logCtx.Warn("Invalid joinRoom payload")
		h.SendToConnection(client.ConnectionID(), EventJoinRoomStatus, dto.JoinRoomStatus{
			Status:  "error",
			Message: "conversationId is required",
		})
		return
	}
	logCtx = logCtx.WithField("conversation_id", req.ConversationID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	membership, err := h.bridge.Membership(ctx, authz.MembershipQuery{
		UserID:         client.UserID(),
		ConversationID: req.ConversationID,
	})
	if err != nil {
		logCtx.WithError(err).Error("Membership check failed")
	}
	// err、缺失记录和非参与状态一律按非成员处理
	if err != nil || membership == nil || !membership.IsParticipating() {
		logCtx.Warn("joinRoom rejected: user is not a participating member")
		h.SendToConnection(client.ConnectionID(), EventJoinRoomStatus, dto.JoinRoomStatus{
			ConversationID: req.ConversationID,
			Status:         "error",
			Message:        "not a member of this conversation",
		})
		client.CloseConn()
		return
	}

	h.roomsMu.Lock()
	// 成员校验在 Hub 主循环之外进行，期间客户端可能已经断开并被注销。
	// 注销会关闭 send 通道，把幽灵客户端重新放进房间会让下一次广播 panic，
	// 所以在临界区内以私有房间的存在与否重查注册状态。
	if !h.isRegisteredLocked(client) {
		h.roomsMu.Unlock()
		logCtx.Warn("joinRoom ignored: client unregistered during membership check")
		return
	}
	// 房间互斥：加入新会话房间前先退出当前会话房间
	if current, ok := h.clientRoom[client]; ok && current != req.ConversationID {
		h.leaveRoomLocked(current, client)
	}
	h.joinRoomLocked(req.ConversationID, client)
	h.clientRoom[client] = req.ConversationID
	h.roomsMu.Unlock()

	logCtx.Info("Client joined conversation room")
	h.SendToConnection(client.ConnectionID(), EventJoinRoomStatus, dto.JoinRoomStatus{
		ConversationID: req.ConversationID,
		Status:         "joined",
	})
}

// LeaveAllRooms 将客户端移出其当前加入的所有会话房间，私有房间保留。
func (h *Hub) LeaveAllRooms(client *Client) {
	h.roomsMu.Lock()
	if current, ok := h.clientRoom[client]; ok {
		h.leaveRoomLocked(current, client)
		delete(h.clientRoom, client)
	}
	h.roomsMu.Unlock()
	logrus.WithFields(logrus.Fields{
		"connection_id": client.ConnectionID(),
		"user_id":       client.UserID(),
	}).Debug("Client left all conversation rooms")
}

// isRegisteredLocked 报告客户端是否仍在 Hub 中注册；调用方必须持有 roomsMu 锁。
// 注册的标志是私有房间的存在：registerClient 建立它，unregisterClient 拆除它。
func (h *Hub) isRegisteredLocked(client *Client) bool {
	_, ok := h.rooms[client.ConnectionID()][client]
	return ok
}

// joinRoomLocked 将客户端加入房间；调用方必须持有 roomsMu 写锁。
func (h *Hub) joinRoomLocked(roomID string, client *Client) {
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// leaveRoomLocked 将客户端移出房间；调用方必须持有 roomsMu 写锁。
func (h *Hub) leaveRoomLocked(roomID string, client *Client) {
	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(roomClients, client)
	if len(roomClients) == 0 {
		delete(h.rooms, roomID)
	}
}

// Broadcast 将事件推送给会话房间内的所有客户端。
// 房间不存在或为空时是空操作，不是错误。
func (h *Hub) Broadcast(conversationID, event string, payload interface{}) {
	envelope := dto.ServerEvent{Event: event, Data: payload}
	message, err := json.Marshal(envelope)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal broadcast event")
		return
	}

	h.roomsMu.RLock()
	roomClients, ok := h.rooms[conversationID]
	// 创建接收者列表的副本，避免长时间持有锁
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"event":           event,
		"recipient_count": len(clientsToSend),
	})
	logCtx.Debug("Broadcasting event to room clients")

	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logCtx.WithField("connection_id", client.ConnectionID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// SendToConnection 通过连接的私有房间向单个客户端推送事件。
func (h *Hub) SendToConnection(connectionID, event string, payload interface{}) {
	h.Broadcast(connectionID, event, payload)
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}
