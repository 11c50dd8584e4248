package dto

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAggregatesDirectArray(t *testing.T) {
	raw := json.RawMessage(`[
		{"sender_id":7,"count":3,"last_message":"hi","timestamp":"2024-01-01T00:00:00Z"},
		{"sender_id":9,"count":1,"last_message":"yo","timestamp":"2024-01-01T00:01:00Z"}
	]`)

	aggs, err := NormalizeAggregates(raw)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, uint64(7), aggs[0].SenderID)
	assert.Equal(t, uint64(3), aggs[0].Count)
	assert.Equal(t, "hi", aggs[0].LastMessage)
	assert.Equal(t, uint64(9), aggs[1].SenderID)
}

func TestNormalizeAggregatesTupleShape(t *testing.T) {
	// 服务端偶尔会把数组裹在 [userInfo, [...]] 二元组里
	raw := json.RawMessage(`[
		{"user_id":1,"username":"raqtpie"},
		[{"sender_id":7,"count":3,"last_message":"hi","timestamp":"2024-01-01T00:00:00Z"}]
	]`)

	aggs, err := NormalizeAggregates(raw)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, uint64(7), aggs[0].SenderID)
	assert.Equal(t, uint64(3), aggs[0].Count)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), aggs[0].Timestamp)
}

func TestNormalizeAggregatesEmpty(t *testing.T) {
	_, err := NormalizeAggregates(nil)
	assert.ErrorIs(t, err, ErrNoAggregates)

	aggs, err := NormalizeAggregates(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

func TestNormalizeAggregatesMalformed(t *testing.T) {
	_, err := NormalizeAggregates(json.RawMessage(`{"not":"an array"}`))
	assert.Error(t, err)

	_, err = NormalizeAggregates(json.RawMessage(`[{"user":1},["oops"]]`))
	assert.Error(t, err)
}

func TestFrameDecodeInitialNotification(t *testing.T) {
	data := []byte(`{"type":"initial_notification","unique_sender_count":2,"messages":[{},[
		{"sender_id":7,"count":3,"last_message":"hi","timestamp":"2024-01-01T00:00:00Z"},
		{"sender_id":9,"count":1,"last_message":"yo","timestamp":"2024-01-01T00:01:00Z"}]]}`)

	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "initial_notification", frame.Type)
	require.NotNil(t, frame.UniqueSenderCount)
	assert.Equal(t, 2, *frame.UniqueSenderCount)

	aggs, err := NormalizeAggregates(frame.Messages)
	require.NoError(t, err)
	assert.Len(t, aggs, 2)
}

func TestFrameDecodeIndividualMessage(t *testing.T) {
	data := []byte(`{"type":"individual_message","message":{"sender_id":5,"count":2,"last_message":"hey"},"unique_sender_count":4}`)

	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	require.NotNil(t, frame.Message)
	assert.Equal(t, uint64(5), frame.Message.SenderID)
	assert.Equal(t, uint64(2), frame.Message.Count)
	require.NotNil(t, frame.UniqueSenderCount)
	assert.Equal(t, 4, *frame.UniqueSenderCount)
}
