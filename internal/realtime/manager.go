package realtime

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/events"
	"github.com/five82/reel/internal/logging"
)

// State is the connection manager's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePolling      State = "polling-fallback"
)

// Provenance markers carried on every Message.
const (
	SourceWebSocket = "websocket"
	SourcePolling   = "polling"
	SourceManager   = "manager"
)

// Event names emitted by the manager. Frames from the server are emitted
// under their own type, so this list is not exhaustive.
const (
	EventConnectionState  = "connection_state"
	EventJobStatus        = "job_status"
	EventJobProgress      = "job_progress_update"
	EventWorkerStatus     = "worker_status_update"
	EventQueueStats       = "queue_stats"
	EventQueueStatsUpdate = "queue_stats_update"
	EventPong             = "pong"
)

// Client to server message types.
const (
	msgSubscribeJob      = "subscribe_job"
	msgUnsubscribeJob    = "unsubscribe_job"
	msgRequestJobStatus  = "request_job_status"
	msgRequestQueueStats = "request_queue_stats"
	msgPing              = "ping"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultMaxAttempts    = 5
	defaultPollInterval   = 2 * time.Second
	defaultPingInterval   = 30 * time.Second
	writeWait             = 10 * time.Second
)

// Message is the payload of every emitted event.
type Message struct {
	Type   string
	Source string
	JobID  string
	State  State
	Data   json.RawMessage
}

// Decode unmarshals the raw payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return errors.New("message has no payload")
	}
	return json.Unmarshal(m.Data, v)
}

// Options configure a Manager. Zero values use defaults.
type Options struct {
	URL                  string
	ConnectTimeout       time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	PollInterval         time.Duration
	PingInterval         time.Duration
	// Source serves the polling fallback. Without it the fallback state is
	// still entered but nothing is fetched.
	Source api.JobAPI
	Header http.Header
	Logger *log.Logger
}

// Manager owns one real-time connection to the backend and degrades to
// HTTP polling while that connection is unavailable.
type Manager struct {
	opts    Options
	dialer  *websocket.Dialer
	emitter *events.Emitter[Message]
	logger  *log.Logger

	life       context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup
	writeMu    sync.Mutex

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connGen        uint64
	connCancel     context.CancelFunc
	pollCancel     context.CancelFunc
	reconnectTimer *time.Timer
	attempts       int
	intentional    bool
	subscriptions  map[string]struct{}
}

// NewManager creates a disconnected Manager.
func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = defaultMaxAttempts
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = defaultBaseDelay
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = maxBackoff
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	life, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
		},
		emitter:       events.NewEmitter[Message](opts.Logger),
		logger:        logging.Component(opts.Logger, "realtime"),
		life:          life,
		lifeCancel:    cancel,
		state:         StateDisconnected,
		subscriptions: make(map[string]struct{}),
	}
}

// On registers a listener for a named event.
func (m *Manager) On(event string, fn events.Listener[Message]) events.Registration {
	return m.emitter.On(event, fn)
}

// Once registers a listener that runs at most once.
func (m *Manager) Once(event string, fn events.Listener[Message]) events.Registration {
	return m.emitter.Once(event, fn)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscriptions returns the subscribed job ids in sorted order.
func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptionIDsLocked()
}

func (m *Manager) subscriptionIDsLocked() []string {
	ids := make([]string, 0, len(m.subscriptions))
	for id := range m.subscriptions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connect opens the live channel. It returns true when connected and false
// when the manager fell back to polling instead; it never fails otherwise.
func (m *Manager) Connect(ctx context.Context) bool {
	m.mu.Lock()
	if m.life.Err() != nil {
		m.mu.Unlock()
		return false
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return true
	}
	m.intentional = false
	m.stopReconnectLocked()
	prev := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.emitState(prev, StateConnecting)

	conn, err := m.dial(ctx)
	if err != nil {
		m.logger.Warn("connect failed, falling back to polling", "url", m.opts.URL, "err", err)
		m.enterPolling()
		return false
	}
	return m.establish(conn)
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(dctx, m.opts.URL, m.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, &DialError{Status: resp.StatusCode, Err: err}
		}
		return nil, &DialError{Err: err}
	}
	return conn, nil
}

// establish installs conn as the live connection, stops polling and replays
// subscriptions. It returns false when a Disconnect raced the dial.
func (m *Manager) establish(conn *websocket.Conn) bool {
	m.mu.Lock()
	if m.intentional || m.life.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return false
	}
	if m.state == StateConnected {
		// A concurrent attempt won the race.
		m.mu.Unlock()
		_ = conn.Close()
		return true
	}
	prev := m.state
	m.connGen++
	gen := m.connGen
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	stopPolling := m.pollCancel
	m.pollCancel = nil
	connCtx, cancel := context.WithCancel(m.life)
	m.connCancel = cancel
	replay := m.subscriptionIDsLocked()
	// Added under mu so Close cannot be waiting already.
	m.wg.Add(2)
	m.mu.Unlock()

	if stopPolling != nil {
		stopPolling()
	}
	m.logger.Info("connected", "url", m.opts.URL, "subscriptions", len(replay))
	m.emitState(prev, StateConnected)

	for _, id := range replay {
		m.write(conn, outbound{Type: msgSubscribeJob, JobID: id})
	}

	go m.readLoop(connCtx, conn, gen)
	go m.pingLoop(connCtx, conn)
	return true
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	defer m.wg.Done()

	deadline := 2 * m.opts.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.handleClose(gen, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	var env struct {
		Type  string `json:"type"`
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		m.logger.Warn("dropping malformed frame", "err", err)
		return
	}
	if env.Type == "" {
		m.logger.Warn("dropping frame without type")
		return
	}
	m.emitter.Emit(env.Type, Message{
		Type:   env.Type,
		Source: SourceWebSocket,
		JobID:  env.JobID,
		Data:   json.RawMessage(data),
	})
}

func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Debug("ping failed", "err", err)
				continue
			}
			m.write(conn, outbound{Type: msgPing})
		}
	}
}

func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.connGen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	intentional := m.intentional
	prev := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	_ = conn.Close()
	m.emitState(prev, StateDisconnected)

	if intentional || websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		m.logger.Info("connection closed normally")
		return
	}
	m.logger.Warn("connection lost", "err", cause)
	m.scheduleReconnect()
}

// scheduleReconnect arms the next reconnect attempt, or enters the polling
// fallback once the attempt budget is spent.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.intentional || m.life.Err() != nil {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.opts.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Warn("reconnect attempts exhausted", "attempts", attempts)
		m.enterPolling()
		return
	}
	delay := Backoff(m.attempts, m.opts.ReconnectBaseDelay, m.opts.ReconnectMaxDelay)
	m.attempts++
	attempt := m.attempts
	m.stopReconnectLocked()
	m.reconnectTimer = time.AfterFunc(delay, func() { m.reconnect(attempt) })
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (m *Manager) reconnect(attempt int) {
	m.mu.Lock()
	if m.intentional || m.life.Err() != nil || m.state != StateDisconnected || m.attempts != attempt {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.state = StateConnecting
	m.mu.Unlock()
	m.emitState(StateDisconnected, StateConnecting)

	conn, err := m.dial(m.life)
	if err != nil {
		m.logger.Warn("reconnect failed", "attempt", attempt, "err", err)
		m.mu.Lock()
		if m.state != StateConnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateDisconnected
		m.mu.Unlock()
		m.emitState(StateConnecting, StateDisconnected)
		m.scheduleReconnect()
		return
	}
	m.establish(conn)
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) enterPolling() {
	m.mu.Lock()
	if m.intentional || m.life.Err() != nil || m.state == StatePolling {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = StatePolling
	m.stopReconnectLocked()
	if m.pollCancel != nil {
		// Still polling from before a failed explicit Connect.
		m.mu.Unlock()
		m.emitState(prev, StatePolling)
		return
	}
	ctx, cancel := context.WithCancel(m.life)
	m.pollCancel = cancel
	poll := m.opts.Source != nil
	if poll {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.emitState(prev, StatePolling)
	if poll {
		go m.pollLoop(ctx)
	}
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		m.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	for _, id := range m.Subscriptions() {
		if ctx.Err() != nil {
			return
		}
		status, err := m.opts.Source.FetchJobStatus(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.logger.Debug("job poll failed", "job", id, "err", err)
			continue
		}
		m.emitPolled(EventJobStatus, id, status)
	}

	if ctx.Err() != nil {
		return
	}
	stats, err := m.opts.Source.FetchQueueStats(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("queue stats poll failed", "err", err)
		return
	}
	m.emitPolled(EventQueueStats, "", stats)
}

func (m *Manager) emitPolled(event, jobID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("encode polled payload", "event", event, "err", err)
		return
	}
	m.emitter.Emit(event, Message{Type: event, Source: SourcePolling, JobID: jobID, Data: data})
}

// Disconnect closes the live channel with a normal closure, stops polling
// and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.stopReconnectLocked()
	conn := m.conn
	m.conn = nil
	m.connGen++
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	prev := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	m.emitState(prev, StateDisconnected)
}

// Close disconnects and waits for background goroutines to exit. The
// manager cannot be reused afterwards.
func (m *Manager) Close() {
	m.Disconnect()
	m.mu.Lock()
	m.lifeCancel()
	m.mu.Unlock()
	m.wg.Wait()
}

// SubscribeToJob records interest in job updates, sending the subscription
// immediately when connected. Subscriptions survive reconnects.
func (m *Manager) SubscribeToJob(jobID string) {
	if jobID == "" {
		return
	}
	m.mu.Lock()
	_, exists := m.subscriptions[jobID]
	m.subscriptions[jobID] = struct{}{}
	conn := m.liveConnLocked()
	m.mu.Unlock()

	if !exists && conn != nil {
		m.write(conn, outbound{Type: msgSubscribeJob, JobID: jobID})
	}
}

// UnsubscribeFromJob drops interest in a job.
func (m *Manager) UnsubscribeFromJob(jobID string) {
	m.mu.Lock()
	_, exists := m.subscriptions[jobID]
	delete(m.subscriptions, jobID)
	conn := m.liveConnLocked()
	m.mu.Unlock()

	if exists && conn != nil {
		m.write(conn, outbound{Type: msgUnsubscribeJob, JobID: jobID})
	}
}

// RequestJobStatus asks the server to push the current status of a job.
func (m *Manager) RequestJobStatus(jobID string) bool {
	return m.Send(outbound{Type: msgRequestJobStatus, JobID: jobID})
}

// RequestQueueStats asks the server to push queue statistics.
func (m *Manager) RequestQueueStats() bool {
	return m.Send(outbound{Type: msgRequestQueueStats})
}

// Ping sends an application level ping.
func (m *Manager) Ping() bool {
	return m.Send(outbound{Type: msgPing})
}

// Send delivers msg when connected. Messages sent while disconnected are
// dropped and Send returns false.
func (m *Manager) Send(msg any) bool {
	m.mu.Lock()
	conn := m.liveConnLocked()
	m.mu.Unlock()
	if conn == nil {
		return false
	}
	return m.write(conn, msg)
}

func (m *Manager) liveConnLocked() *websocket.Conn {
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

type outbound struct {
	Type  string `json:"type"`
	JobID string `json:"job_id,omitempty"`
}

func (m *Manager) write(conn *websocket.Conn, msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("encode message", "err", err)
		return false
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Debug("write failed", "err", err)
		return false
	}
	return true
}

func (m *Manager) emitState(prev, next State) {
	if prev == next {
		return
	}
	m.logger.Debug("state change", "from", prev, "to", next)
	m.emitter.Emit(EventConnectionState, Message{
		Type:   EventConnectionState,
		Source: SourceManager,
		State:  next,
	})
}
