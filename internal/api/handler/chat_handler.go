package handler

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/response"
	"CornerstoneClient/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat service.ChatService
}

func NewChatHandler(chat service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Join 加入聊天室
func (s *ChatHandler) Join(c *gin.Context) {
	var req dto.JoinRoomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chat.JoinRoom(c.Request.Context(), req.RoomID, req.PeerID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Send 发送聊天消息
func (s *ChatHandler) Send(c *gin.Context) {
	var req dto.SendChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	if err := s.chat.SendChatMessage(c.Request.Context(), req.RoomID, req.Content); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Leave 离开聊天室
func (s *ChatHandler) Leave(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	s.chat.LeaveRoom(roomID)
	response.Success(c, nil)
}
