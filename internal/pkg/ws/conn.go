package ws

import (
	"CornerstoneClient/internal/pkg/security"
	"context"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// State 连接生命周期状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// EventKind 事件类别
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
	EventError
)

// Event 连接产生的类型化事件。同一连接上的事件按网络到达顺序投递。
type Event struct {
	Kind EventKind
	Data []byte
	Code int
	Err  error
}

const (
	baseReconnectDelay   = 3 * time.Second
	maxReconnectDelay    = 30 * time.Second
	forcedReconnectDelay = time.Second
	handshakeTimeout     = 10 * time.Second
	writeTimeout         = 10 * time.Second
	tokenLookupTimeout   = 5 * time.Second
	eventBuffer          = 256
)

// Conn 单条逻辑通道上的自动重连 WebSocket 连接。
// 任一时刻至多持有一个活跃 socket；断线重连对调用方不可见。
type Conn struct {
	endpoint string
	tokens   security.TokenStore
	dialer   *websocket.Dialer
	events   chan Event

	// 供测试替换退避曲线
	backoffFn func(attempt int) time.Duration

	mu             sync.Mutex
	state          State
	sock           *websocket.Conn
	attempts       int
	reconnectTimer *time.Timer
	lastActivity   time.Time
	gen            uint64

	writeMu sync.Mutex
}

func NewConn(endpoint string, tokens security.TokenStore) *Conn {
	return &Conn{
		endpoint:  endpoint,
		tokens:    tokens,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		events:    make(chan Event, eventBuffer),
		backoffFn: backoffDelay,
		state:     StateIdle,
	}
}

// Events 返回事件通道。应由单个消费者顺序读取。
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Connect 发起连接。幂等：已有拨号在途时直接返回；
// 已存在的连接会先被关闭替换，保证只有一个活跃 socket。
func (c *Conn) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.teardownLocked()
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	go c.dial(ctx, gen)
}

func (c *Conn) dial(ctx context.Context, gen uint64) {
	endpoint := c.buildURL(ctx)

	sock, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// 拨号期间连接已被替换或主动断开
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		return
	}

	if err != nil {
		c.state = StateClosed
		c.mu.Unlock()
		log.Warn("WS 连接失败", "endpoint", c.endpoint, "err", err)
		c.emit(Event{Kind: EventError, Err: err})
		c.scheduleReconnect()
		return
	}

	c.sock = sock
	c.state = StateOpen
	c.attempts = 0
	c.lastActivity = time.Now()
	c.gen++
	readGen := c.gen
	c.mu.Unlock()

	log.Info("WS 连接已建立", "endpoint", c.endpoint)
	c.emit(Event{Kind: EventOpen})

	go c.readLoop(sock, readGen)
}

// buildURL 取出凭据拼接连接地址；凭据缺失时按匿名方式连接
func (c *Conn) buildURL(ctx context.Context) string {
	lookupCtx, cancel := context.WithTimeout(ctx, tokenLookupTimeout)
	defer cancel()

	token, err := c.tokens.Token(lookupCtx)
	if err != nil {
		log.Warn("读取凭据失败，尝试匿名连接", "err", err)
		token = ""
	}
	if token == "" {
		return c.endpoint
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return c.endpoint
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Conn) readLoop(sock *websocket.Conn, gen uint64) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.lastActivity = time.Now()
		c.mu.Unlock()

		// 消息帧阻塞投递：缓冲满时读循环停在这里，背压顺着
		// TCP 传导回服务端，入站帧一条不丢
		c.events <- Event{Kind: EventMessage, Data: data}
	}
}

func (c *Conn) handleReadError(gen uint64, err error) {
	code := websocket.CloseAbnormalClosure
	if ce, ok := err.(*websocket.CloseError); ok {
		code = ce.Code
	}

	c.mu.Lock()
	if c.gen != gen {
		// 连接已被新的 socket 替换或主动断开，旧读循环静默退出
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.gen++
	c.state = StateClosed
	c.mu.Unlock()

	c.emit(Event{Kind: EventClose, Code: code, Err: err})

	if code != websocket.CloseNormalClosure && code != websocket.CloseGoingAway {
		log.Warn("WS 异常断开", "endpoint", c.endpoint, "code", code, "err", err)
		c.scheduleReconnect()
	}
}

// Disconnect 取消待执行的重连并以正常关闭码关闭连接。幂等。
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	hadSock := c.sock != nil
	c.state = StateClosing
	c.teardownLocked()
	c.state = StateClosed
	c.mu.Unlock()

	if hadSock {
		c.emit(Event{Kind: EventClose, Code: websocket.CloseNormalClosure})
	}
}

// Reconnect 强制重建连接：立刻拆除现有连接，固定 1 秒后重新拨号，
// 不走自动重连的退避曲线。
func (c *Conn) Reconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.teardownLocked()
	c.state = StateClosed
	c.reconnectTimer = time.AfterFunc(forcedReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect(context.Background())
	})
	c.mu.Unlock()
}

// SendMessage 把 payload 序列化为文本帧发出。连接未打开时静默丢弃。
func (c *Conn) SendMessage(payload interface{}) {
	c.mu.Lock()
	sock := c.sock
	open := c.state == StateOpen && sock != nil
	c.mu.Unlock()
	if !open {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("WS 消息序列化失败", "err", err)
		return
	}

	// gorilla 连接不允许并发写
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = sock.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn("WS 发送失败", "err", err)
	}
}

// IsConnected 双重校验：状态标记与底层 socket 同时有效才算已连接
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen && c.sock != nil
}

// State 当前生命周期状态
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts 自上次成功打开以来的重连次数，用于诊断
func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastActivity 最近一次收到入站数据的时间
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		return
	}

	delay := c.backoffFn(c.attempts)
	c.attempts++
	log.Info("WS 重连已排期", "endpoint", c.endpoint, "delay", delay, "attempt", c.attempts)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect(context.Background())
	})
}

func (c *Conn) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// teardownLocked 关闭当前 socket 并使旧读循环失效，调用方需持锁
func (c *Conn) teardownLocked() {
	if c.sock != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.sock.Close()
		c.sock = nil
	}
	c.gen++
}

// backoffDelay 指数退避：3s、6s、12s、24s，封顶 30s
func backoffDelay(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	delay := baseReconnectDelay << uint(attempt)
	if delay > maxReconnectDelay || delay <= 0 {
		return maxReconnectDelay
	}
	return delay
}

// emit 非阻塞投递生命周期事件（open/close/error）。这类事件可能在
// 消费者已经停止后产生，不能让关闭路径卡在通道上。
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn("WS 事件缓冲已满，事件被丢弃", "kind", int(ev.Kind))
	}
}
