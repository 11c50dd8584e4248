package service

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/consts"
	"CornerstoneClient/internal/pkg/ws"
	"context"
	log "log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
)

const (
	keepaliveInterval = 15 * time.Second
	livenessTimeout   = 30 * time.Second
)

// NotificationService 通知聚合服务接口定义。
// 消费通知通道的入站帧，维护未读索引与在线状态索引，
// 并在合适的时机触发本地提醒。
type NotificationService interface {
	Connect(ctx context.Context)
	Disconnect()
	RefreshNotifications()
	SetForeground(foreground bool)
	UnreadCount() int
	Messages() []*dto.SenderAggregate
	SenderCounts() map[uint64]uint64
	UserStatuses() map[uint64]string
	ConnStatus() *dto.ConnStatusDTO
	Close()
}

type notificationServiceImpl struct {
	conn       *ws.Conn
	alerts     AlertService
	foreground atomic.Bool

	mu            sync.RWMutex
	aggregates    map[uint64]*dto.SenderAggregate
	uniqueSenders int
	statuses      map[uint64]string
	lastInbound   time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewNotificationService 构造函数：启动单消费者事件循环，
// 保证同一连接上的帧按到达顺序逐个处理。
func NewNotificationService(conn *ws.Conn, alerts AlertService) NotificationService {
	s := &notificationServiceImpl{
		conn:       conn,
		alerts:     alerts,
		aggregates: make(map[uint64]*dto.SenderAggregate),
		statuses:   make(map[uint64]string),
		stopChan:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *notificationServiceImpl) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case ev := <-s.conn.Events():
			s.handleEvent(ev)
		case <-ticker.C:
			s.keepalive()
		}
	}
}

func (s *notificationServiceImpl) handleEvent(ev ws.Event) {
	switch ev.Kind {
	case ws.EventOpen:
		s.mu.Lock()
		s.lastInbound = time.Now()
		s.mu.Unlock()
		// 连接建立后立即索取全量快照
		s.conn.SendMessage(dto.SnapshotRequest{Type: consts.FrameTypeGetInitialData})
	case ws.EventMessage:
		s.mu.Lock()
		s.lastInbound = time.Now()
		s.mu.Unlock()
		s.handleFrame(ev.Data)
	case ws.EventClose:
		log.Info("通知通道断开", "code", ev.Code)
	case ws.EventError:
		log.Warn("通知通道错误", "err", ev.Err)
	}
}

// keepalive 每 15 秒发送一次心跳；若超过 30 秒未见任何入站流量
// 但连接仍自认为在线，判定为假活连接并强制重连。
func (s *notificationServiceImpl) keepalive() {
	if !s.conn.IsConnected() {
		return
	}

	s.conn.SendMessage(dto.PingFrame{Type: consts.FrameTypePing})

	s.mu.RLock()
	stale := !s.lastInbound.IsZero() && time.Since(s.lastInbound) > livenessTimeout
	s.mu.RUnlock()

	if stale {
		log.Warn("通知通道疑似假活，强制重连", "since_last_inbound", time.Since(s.LastInbound()))
		s.conn.Reconnect()
	}
}

// handleFrame 按 type 判别字段分类处理一帧。
// 格式非法或类型未知的帧直接吞掉，绝不让协议错误击穿聚合管线。
func (s *notificationServiceImpl) handleFrame(data []byte) {
	var frame dto.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn("无法解析的通知帧，已忽略", "err", err)
		return
	}

	switch frame.Type {
	case consts.FrameTypePong:
		// 活性时间戳已在事件入口更新

	case consts.FrameTypeUserStatus:
		s.mu.Lock()
		s.statuses[frame.UserID] = frame.Status
		s.mu.Unlock()

	case consts.FrameTypeInitial, consts.FrameTypeBySenderUpdate,
		consts.FrameTypeUpdate, consts.FrameTypeNewMessage:
		aggs, err := dto.NormalizeAggregates(frame.Messages)
		if err != nil {
			log.Warn("消息聚合数组解析失败，帧已忽略", "type", frame.Type, "err", err)
			return
		}
		s.applySnapshot(frame.Type, aggs, frame.UniqueSenderCount)

	case consts.FrameTypeIndividual:
		if frame.Message == nil {
			return
		}
		s.applyIndividual(&frame)

	default:
		// 未识别的类型静默忽略
	}
}

// applySnapshot 用快照整体替换未读索引。
// unique_sender_count 以服务端为准，缺失时退化为本地计数。
func (s *notificationServiceImpl) applySnapshot(frameType string, aggs []*dto.SenderAggregate, serverCount *int) {
	next := make(map[uint64]*dto.SenderAggregate, len(aggs))
	for _, a := range aggs {
		if a.Count == 0 {
			continue
		}
		next[a.SenderID] = a
	}

	s.mu.Lock()
	grew := false
	if frameType != consts.FrameTypeInitial && !s.foreground.Load() {
		for id, a := range next {
			old, ok := s.aggregates[id]
			if !ok || a.Count > old.Count {
				grew = true
				break
			}
		}
	}

	s.aggregates = next
	if serverCount != nil {
		s.uniqueSenders = *serverCount
	} else {
		s.uniqueSenders = len(next)
	}
	s.mu.Unlock()

	if grew {
		s.alerts.Notify(context.Background(), aggs)
	}
}

// applyIndividual 单发送者增量更新，并无条件交给派发器（权限由其把关）
func (s *notificationServiceImpl) applyIndividual(frame *dto.Frame) {
	m := frame.Message

	s.mu.Lock()
	if m.Count == 0 {
		delete(s.aggregates, m.SenderID)
	} else {
		s.aggregates[m.SenderID] = m
	}
	if frame.UniqueSenderCount != nil {
		s.uniqueSenders = *frame.UniqueSenderCount
	} else {
		s.uniqueSenders = len(s.aggregates)
	}
	s.mu.Unlock()

	s.alerts.Notify(context.Background(), []*dto.SenderAggregate{m})
}

func (s *notificationServiceImpl) Connect(ctx context.Context) {
	s.conn.Connect(ctx)
}

func (s *notificationServiceImpl) Disconnect() {
	s.conn.Disconnect()
}

// RefreshNotifications 在线则索取新快照，否则强制重连
func (s *notificationServiceImpl) RefreshNotifications() {
	if s.conn.IsConnected() {
		s.conn.SendMessage(dto.SnapshotRequest{Type: consts.FrameTypeGetInitialData})
		return
	}
	s.conn.Reconnect()
}

// SetForeground 前台期间不弹快照类提醒，由界面自行呈现
func (s *notificationServiceImpl) SetForeground(foreground bool) {
	s.foreground.Store(foreground)
}

// UnreadCount 当前有未读消息的发送者总数
func (s *notificationServiceImpl) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uniqueSenders
}

// Messages 未读聚合列表，按时间倒序；返回深拷贝，调用方可随意持有
func (s *notificationServiceImpl) Messages() []*dto.SenderAggregate {
	s.mu.RLock()
	list := make([]*dto.SenderAggregate, 0, len(s.aggregates))
	for _, a := range s.aggregates {
		list = append(list, a)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		return list[i].SenderID < list[j].SenderID
	})

	var out []*dto.SenderAggregate
	if err := copier.Copy(&out, &list); err != nil {
		return nil
	}
	return out
}

// SenderCounts 发送者到未读数的映射
func (s *notificationServiceImpl) SenderCounts() map[uint64]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint64]uint64, len(s.aggregates))
	for id, a := range s.aggregates {
		out[id] = a.Count
	}
	return out
}

// UserStatuses 用户在线状态映射，后写覆盖
func (s *notificationServiceImpl) UserStatuses() map[uint64]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint64]string, len(s.statuses))
	for id, st := range s.statuses {
		out[id] = st
	}
	return out
}

func (s *notificationServiceImpl) ConnStatus() *dto.ConnStatusDTO {
	return &dto.ConnStatusDTO{
		State:             s.conn.State().String(),
		Connected:         s.conn.IsConnected(),
		ReconnectAttempts: s.conn.Attempts(),
	}
}

// LastInbound 最近一次入站流量时间，用于诊断
func (s *notificationServiceImpl) LastInbound() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastInbound
}

func (s *notificationServiceImpl) Close() {
	close(s.stopChan)
	s.wg.Wait()
	s.conn.Disconnect()
	log.Info("NotificationService shut down gracefully")
}
