package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/pkg/utils"
)

// WSReconnectConfig конфигурация переподключения WebSocket
type WSReconnectConfig struct {
	InitialDelay   time.Duration // первая задержка переподключения
	MaxDelay       time.Duration // предел exponential backoff
	MaxRetries     int           // 0 = бесконечно
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultWSReconnectConfig: 2s, 4s, 8s, 16s, далее 16s без ограничения попыток.
// Поток цен нужен монитору всё время работы процесса.
func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// WSConnectionState состояние WebSocket соединения
type WSConnectionState int32

const (
	WSStateDisconnected WSConnectionState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateClosed
)

func (s WSConnectionState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrManagerClosed - менеджер закрыт и не принимает подключения
var ErrManagerClosed = errors.New("websocket manager is closed")

// WSReconnectManager держит одно WebSocket соединение с потоком биржи
// и переподключается с exponential backoff при разрыве. Каждое входящее
// сообщение передаётся в onMessage из горутины чтения.
type WSReconnectManager struct {
	name   string
	wsURL  string
	config WSReconnectConfig

	conn   *websocket.Conn
	connMu sync.Mutex

	state      int32 // atomic WSConnectionState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func([]byte)
	onDisconnect func(error)

	log *utils.Logger
}

// NewWSReconnectManager создаёт менеджер; onMessage обязателен
func NewWSReconnectManager(name, wsURL string, config WSReconnectConfig, onMessage func([]byte)) *WSReconnectManager {
	return &WSReconnectManager{
		name:      name,
		wsURL:     wsURL,
		config:    config,
		closeChan: make(chan struct{}),
		onMessage: onMessage,
		log:       utils.L().WithComponent("ws").With(zap.String("stream", name)),
	}
}

// SetOnDisconnect устанавливает callback разрыва; вызывать до Connect
func (m *WSReconnectManager) SetOnDisconnect(handler func(error)) {
	m.onDisconnect = handler
}

// GetState возвращает текущее состояние соединения
func (m *WSReconnectManager) GetState() WSConnectionState {
	return WSConnectionState(atomic.LoadInt32(&m.state))
}

// IsConnected проверяет, установлено ли соединение
func (m *WSReconnectManager) IsConnected() bool {
	return m.GetState() == WSStateConnected
}

// GetRetryCount возвращает текущее количество попыток переподключения
func (m *WSReconnectManager) GetRetryCount() int {
	return int(atomic.LoadInt32(&m.retryCount))
}

// Connect устанавливает соединение и запускает чтение
func (m *WSReconnectManager) Connect(ctx context.Context) error {
	select {
	case <-m.closeChan:
		return ErrManagerClosed
	default:
	}

	atomic.StoreInt32(&m.state, int32(WSStateConnecting))
	conn, err := m.dial(ctx)
	if err != nil {
		atomic.StoreInt32(&m.state, int32(WSStateDisconnected))
		return err
	}
	m.start(conn)
	m.log.Info("websocket connected", zap.String("url", m.wsURL))
	return nil
}

func (m *WSReconnectManager) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.name, err)
	}
	return conn, nil
}

// start публикует соединение и запускает насосы чтения и ping
func (m *WSReconnectManager) start(conn *websocket.Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))

	atomic.StoreInt32(&m.state, int32(WSStateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	done := make(chan struct{})
	go m.readPump(conn, done)
	go m.pingPump(conn, done)
}

func (m *WSReconnectManager) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn, err)
			return
		}
		// Биржа шлёт данные чаще ping: любое сообщение продлевает дедлайн
		_ = conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
		m.onMessage(message)
	}
}

func (m *WSReconnectManager) pingPump(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-done:
			return
		case <-ticker.C:
			m.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.config.PongTimeout))
			m.connMu.Unlock()
			if err != nil {
				m.log.Warn("ping failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// handleDisconnect закрывает упавшее соединение и запускает переподключение
func (m *WSReconnectManager) handleDisconnect(conn *websocket.Conn, err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	m.connMu.Lock()
	if m.conn != conn {
		m.connMu.Unlock()
		return
	}
	m.conn = nil
	m.connMu.Unlock()
	_ = conn.Close()

	atomic.StoreInt32(&m.state, int32(WSStateReconnecting))
	m.log.Warn("websocket disconnected", zap.Error(err))
	if m.onDisconnect != nil {
		m.onDisconnect(err)
	}

	go m.reconnectLoop()
}

// reconnectLoop выполняет переподключение с exponential backoff
func (m *WSReconnectManager) reconnectLoop() {
	delay := m.config.InitialDelay

	for {
		retry := atomic.AddInt32(&m.retryCount, 1)
		if m.config.MaxRetries > 0 && int(retry) > m.config.MaxRetries {
			m.log.Error("max reconnect attempts reached", zap.Int("max_retries", m.config.MaxRetries))
			atomic.StoreInt32(&m.state, int32(WSStateDisconnected))
			return
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		conn, err := m.dial(context.Background())
		if err != nil {
			m.log.Warn("reconnect failed",
				zap.Int32("attempt", retry),
				zap.Duration("delay", delay),
				zap.Error(err))
			delay *= 2
			if delay > m.config.MaxDelay {
				delay = m.config.MaxDelay
			}
			continue
		}

		select {
		case <-m.closeChan:
			_ = conn.Close()
			return
		default:
		}

		m.start(conn)
		m.log.Info("websocket reconnected", zap.Int32("attempts", retry))
		return
	}
}

// Close закрывает соединение и останавливает переподключение
func (m *WSReconnectManager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.closeChan)
		atomic.StoreInt32(&m.state, int32(WSStateClosed))

		m.connMu.Lock()
		defer m.connMu.Unlock()
		if m.conn != nil {
			_ = m.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = m.conn.Close()
			m.conn = nil
		}
	})
	return err
}
