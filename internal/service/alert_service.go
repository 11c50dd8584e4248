package service

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/notify"
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

const (
	alertDedupWindow = 10 * time.Minute
	alertDedupCap    = 50
	alertMinSpacing  = 500 * time.Millisecond
	alertBodyLimit   = 50
)

// AlertService 本地提醒派发。同一真实事件可能因重连回放等原因被
// 多次送达，派发保证每个事件至多弹出一次设备级提醒。
type AlertService interface {
	Notify(ctx context.Context, aggs []*dto.SenderAggregate)
}

type alertServiceImpl struct {
	notifier          notify.Notifier
	permitted         func() bool
	requestPermission func()
	now               func() time.Time

	mu           sync.Mutex
	seen         map[string]time.Time
	order        []string
	lastDispatch time.Time
}

// NewAlertService 构造提醒派发器。permitted 返回当前是否允许弹出提醒；
// requestPermission 在未授权时触发外部的权限申请流程。
func NewAlertService(notifier notify.Notifier, permitted func() bool, requestPermission func()) AlertService {
	if permitted == nil {
		permitted = func() bool { return true }
	}
	if requestPermission == nil {
		requestPermission = func() {}
	}
	return &alertServiceImpl{
		notifier:          notifier,
		permitted:         permitted,
		requestPermission: requestPermission,
		now:               time.Now,
		seen:              make(map[string]time.Time),
	}
}

func (s *alertServiceImpl) Notify(ctx context.Context, aggs []*dto.SenderAggregate) {
	if len(aggs) == 0 {
		return
	}

	// 未授权则转入权限申请流程，本次派发放弃，不做重试排队
	if !s.permitted() {
		s.requestPermission()
		return
	}

	rep := mostActiveSender(aggs)
	key := fmt.Sprintf("%d:%s:%d", rep.SenderID, rep.MessageID, rep.Count)

	now := s.now()

	s.mu.Lock()
	s.purgeExpiredLocked(now)

	if ts, ok := s.seen[key]; ok && now.Sub(ts) < alertDedupWindow {
		s.mu.Unlock()
		return
	}

	if !s.lastDispatch.IsZero() && now.Sub(s.lastDispatch) < alertMinSpacing {
		// 与上一次提醒间隔过近，直接丢弃
		s.mu.Unlock()
		return
	}

	s.lastDispatch = now
	s.seen[key] = now
	s.order = append(s.order, key)
	for len(s.order) > alertDedupCap {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	s.mu.Unlock()

	title, body := composeAlert(rep, aggs)
	if err := s.notifier.Push(ctx, title, body); err != nil {
		log.Warn("本地提醒派发失败", "err", err)
	}
}

// purgeExpiredLocked 淘汰超出保留窗口的去重记录，调用方需持锁
func (s *alertServiceImpl) purgeExpiredLocked(now time.Time) {
	for len(s.order) > 0 {
		oldest := s.order[0]
		if now.Sub(s.seen[oldest]) < alertDedupWindow {
			break
		}
		delete(s.seen, oldest)
		s.order = s.order[1:]
	}
}

// mostActiveSender 取未读数最高的发送者作为本批的代表
func mostActiveSender(aggs []*dto.SenderAggregate) *dto.SenderAggregate {
	rep := aggs[0]
	for _, a := range aggs[1:] {
		if a.Count > rep.Count {
			rep = a
		}
	}
	return rep
}

func composeAlert(rep *dto.SenderAggregate, aggs []*dto.SenderAggregate) (string, string) {
	title := rep.SenderName
	if title == "" {
		title = fmt.Sprintf("用户 %d", rep.SenderID)
	}

	body := truncateBody(rep.LastMessage)

	extra := len(aggs) - 1
	if extra == 0 && rep.Count > 1 {
		extra = int(rep.Count) - 1
	}
	if extra > 0 {
		body = fmt.Sprintf("%s（另有 %d 条）", body, extra)
	}
	return title, body
}

func truncateBody(text string) string {
	runes := []rune(text)
	if len(runes) <= alertBodyLimit {
		return text
	}
	return string(runes[:alertBodyLimit]) + "…"
}
