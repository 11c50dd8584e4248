package dto

import (
	"bytes"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Frame 通知通道入站帧。Type 为判别字段，其余字段按类型选用。
type Frame struct {
	Type              string           `json:"type"`
	UniqueSenderCount *int             `json:"unique_sender_count,omitempty"`
	Messages          json.RawMessage  `json:"messages,omitempty"`
	Message           *SenderAggregate `json:"message,omitempty"`
	UserID            uint64           `json:"user_id,omitempty"`
	Status            string           `json:"status,omitempty"`
}

// SenderAggregate 按发送者聚合的未读消息摘要
type SenderAggregate struct {
	SenderID    uint64    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Count       uint64    `json:"count"`
	LastMessage string    `json:"last_message,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// PingFrame 出站心跳
type PingFrame struct {
	Type string `json:"type"`
}

// SnapshotRequest 请求服务端全量快照
type SnapshotRequest struct {
	Type string `json:"type"`
}

// ChatFrame 出站聊天消息
type ChatFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	User1     uint64 `json:"user1"`
	User2     uint64 `json:"user2"`
}

// ErrNoAggregates messages 字段缺失或无法识别
var ErrNoAggregates = errors.New("帧中不包含消息聚合数组")

// NormalizeAggregates 把 messages 字段归一化为聚合数组。
// 服务端存在两种线上形态：直接的数组 [{...},{...}]，
// 或裹了一层用户信息的二元组 [userInfo, [{...},{...}]]。
// 两种形态都必须接受，归一化之后业务逻辑只见到一种形状。
func NormalizeAggregates(raw json.RawMessage) ([]*SenderAggregate, error) {
	if len(raw) == 0 {
		return nil, ErrNoAggregates
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}

	// 二元组形态：取其中的数组元素
	for _, e := range elems {
		trimmed := bytes.TrimSpace(e)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var aggs []*SenderAggregate
			if err := json.Unmarshal(trimmed, &aggs); err != nil {
				return nil, err
			}
			return aggs, nil
		}
	}

	// 直接数组形态
	aggs := make([]*SenderAggregate, 0, len(elems))
	for _, e := range elems {
		var agg SenderAggregate
		if err := json.Unmarshal(e, &agg); err != nil {
			return nil, err
		}
		aggs = append(aggs, &agg)
	}
	return aggs, nil
}
