package service

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/consts"
	"CornerstoneClient/internal/pkg/security"
	"CornerstoneClient/internal/pkg/ws"
	"context"
	log "log/slog"
	"sync"
	"time"
)

// ChatService 聊天室通道管理。每个已加入的聊天室持有一条独立连接，
// 入站帧原样转发给界面协作方，出站消息由本服务补齐双方用户标识。
type ChatService interface {
	JoinRoom(ctx context.Context, roomID string, peerID uint64) error
	LeaveRoom(roomID string)
	SendChatMessage(ctx context.Context, roomID string, content string) error
	RoomFrames(roomID string) (<-chan []byte, bool)
	Close()
}

type chatRoom struct {
	conn    *ws.Conn
	peerID  uint64
	inbound chan []byte
	stop    chan struct{}
}

type chatServiceImpl struct {
	endpoint func(roomID string) string
	tokens   security.TokenStore

	mu    sync.Mutex
	rooms map[string]*chatRoom
	wg    sync.WaitGroup
}

// NewChatService 构造函数。endpoint 由房间号生成该房间的 WebSocket 地址。
func NewChatService(endpoint func(roomID string) string, tokens security.TokenStore) ChatService {
	return &chatServiceImpl{
		endpoint: endpoint,
		tokens:   tokens,
		rooms:    make(map[string]*chatRoom),
	}
}

// JoinRoom 加入聊天室并建立该房间的连接。重复加入是幂等的。
func (s *chatServiceImpl) JoinRoom(ctx context.Context, roomID string, peerID uint64) error {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return nil
	}

	room := &chatRoom{
		conn:    ws.NewConn(s.endpoint(roomID), s.tokens),
		peerID:  peerID,
		inbound: make(chan []byte, 64),
		stop:    make(chan struct{}),
	}
	s.rooms[roomID] = room
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pump(roomID, room)
	room.conn.Connect(ctx)

	log.Info("已加入聊天室", "room", roomID, "peer", peerID)
	return nil
}

// pump 单消费者转发循环：把该房间的消息帧转给界面协作方
func (s *chatServiceImpl) pump(roomID string, room *chatRoom) {
	defer s.wg.Done()
	defer close(room.inbound)

	for {
		select {
		case <-room.stop:
			return
		case ev := <-room.conn.Events():
			switch ev.Kind {
			case ws.EventMessage:
				select {
				case room.inbound <- ev.Data:
				default:
					log.Warn("聊天室入站缓冲已满，帧被丢弃", "room", roomID)
				}
			case ws.EventClose:
				log.Info("聊天室通道断开", "room", roomID, "code", ev.Code)
			case ws.EventError:
				log.Warn("聊天室通道错误", "room", roomID, "err", ev.Err)
			}
		}
	}
}

// LeaveRoom 离开聊天室并关闭其连接。幂等。
func (s *chatServiceImpl) LeaveRoom(roomID string) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if ok {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	close(room.stop)
	room.conn.Disconnect()
	log.Info("已离开聊天室", "room", roomID)
}

// SendChatMessage 发送聊天消息。user1 取自本地凭据中的用户标识。
func (s *chatServiceImpl) SendChatMessage(ctx context.Context, roomID string, content string) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return ErrRoomNotJoined
	}
	if !room.conn.IsConnected() {
		return ErrNotConnected
	}

	token, err := s.tokens.Token(ctx)
	if err != nil || token == "" {
		return ErrTokenMissing
	}
	userID, err := security.ParseUserID(token)
	if err != nil {
		return ErrTokenMissing
	}

	room.conn.SendMessage(dto.ChatFrame{
		Type:      consts.FrameTypeChatMessage,
		Message:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		User1:     userID,
		User2:     room.peerID,
	})
	return nil
}

// RoomFrames 该房间的入站帧通道，供界面协作方消费
func (s *chatServiceImpl) RoomFrames(roomID string) (<-chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	return room.inbound, true
}

func (s *chatServiceImpl) Close() {
	s.mu.Lock()
	rooms := s.rooms
	s.rooms = make(map[string]*chatRoom)
	s.mu.Unlock()

	for _, room := range rooms {
		close(room.stop)
		room.conn.Disconnect()
	}
	s.wg.Wait()
	log.Info("ChatService shut down gracefully")
}
