package dto

// Response 统一响应封装
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ConnStatusDTO 连接诊断信息
type ConnStatusDTO struct {
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
}

// UnreadSummaryDTO 未读概要
type UnreadSummaryDTO struct {
	UniqueSenders int                `json:"unique_senders"`
	Senders       map[uint64]uint64  `json:"senders"`
	Messages      []*SenderAggregate `json:"messages"`
}

// CacheStatsDTO 图片缓存统计
type CacheStatsDTO struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// JoinRoomReq 加入聊天室请求
type JoinRoomReq struct {
	RoomID string `json:"room_id" binding:"required"`
	PeerID uint64 `json:"peer_id" binding:"required"`
}

// SendChatReq 通过本地 API 发送聊天消息
type SendChatReq struct {
	RoomID  string `json:"room_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}
