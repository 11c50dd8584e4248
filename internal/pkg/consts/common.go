package consts

// 凭据存储键
const (
	AuthTokenKey = "client:auth:token"
)

// 通知通道帧类型
const (
	FrameTypePong           = "pong"
	FrameTypePing           = "ping"
	FrameTypeGetInitialData = "get_initial_data"
	FrameTypeInitial        = "initial_notification"
	FrameTypeBySenderUpdate = "messages_by_sender_update"
	FrameTypeUpdate         = "notification_update"
	FrameTypeNewMessage     = "new_message_notification"
	FrameTypeIndividual     = "individual_message"
	FrameTypeUserStatus     = "user_status_update"
	FrameTypeChatMessage    = "chat_message"
)

// 在线状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
