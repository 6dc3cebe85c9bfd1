package mqttbridge

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// retryInterval is the reconnect retry cadence.
	retryInterval = 5 * time.Second

	// maxRetryInterval caps reconnect backoff.
	maxRetryInterval = 60 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Sentinel errors for the MQTT mirror.
var (
	ErrDisabled         = errors.New("mqttbridge: disabled in configuration")
	ErrConnectionFailed = errors.New("mqttbridge: connection failed")
	ErrNotConnected     = errors.New("mqttbridge: client not connected")
	ErrPublishFailed    = errors.New("mqttbridge: publish failed")
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mirror publishes entity state to retained MQTT topics so other
// consumers on the broker always see the bridge's current view:
//
//	<prefix>/entity/<entity_id>/state   full attribute JSON, retained
//	<prefix>/bridge/status              online/offline, retained + LWT
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Mirror struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger Logger

	connected bool
	mu        sync.RWMutex
}

// statePayload is the JSON shape published to entity state topics.
type statePayload struct {
	EntityID   string         `json:"entity_id"`
	Kind       string         `json:"kind"`
	Name       string         `json:"name"`
	Area       string         `json:"area,omitempty"`
	Class      string         `json:"class,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Connect establishes the broker connection and publishes online
// status. Returns ErrDisabled when the mirror is off in configuration.
func Connect(cfg config.MQTTConfig, logger Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	m := &Mirror{cfg: cfg, logger: logger}

	opts := buildClientOptions(cfg)
	opts.SetWill(m.statusTopic(), m.statusJSON("offline", "unexpected_disconnect"), 1, true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()
		m.publishStatus("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		logger.Warn("mqtt connection lost", "error", err)
	})

	m.client = pahomqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected now so
	// IsConnected is accurate immediately after a successful Connect.
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()

	return m, nil
}

// buildClientOptions creates paho MQTT options from configuration.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetMaxReconnectInterval(maxRetryInterval)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// PublishEntity publishes an entity's full state to its retained topic.
// Called on every entity-change event; retained delivery means new
// subscribers see current state without waiting for a change.
func (m *Mirror) PublishEntity(e *entity.Entity) error {
	if e == nil {
		return nil
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(statePayload{
		EntityID:   e.ID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		Area:       e.Area,
		Class:      e.DeviceClass,
		Unit:       e.Unit,
		Attributes: e.Attributes,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding entity state: %w", err)
	}

	topic := fmt.Sprintf("%s/entity/%s/state", m.cfg.TopicPrefix, e.ID)
	return m.publish(topic, payload, true)
}

// PublishEvent mirrors one session event. Entity changes publish the
// entity's state; state transitions update the bridge status topic.
func (m *Mirror) PublishEvent(ev session.Event, e *entity.Entity) {
	switch ev.Type {
	case session.EventEntityChange:
		if err := m.PublishEntity(e); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Warn("entity state publish failed",
				"entity_id", ev.EntityID, "error", err)
		}
	case session.EventSessionState:
		m.publishStatus("online", string(ev.State))
	}
}

// publishStatus publishes the retained bridge status.
func (m *Mirror) publishStatus(status, sessionState string) {
	if err := m.publish(m.statusTopic(), []byte(m.statusJSON(status, sessionState)), true); err != nil {
		m.logger.Warn("status publish failed", "error", err)
	}
}

func (m *Mirror) statusTopic() string {
	return m.cfg.TopicPrefix + "/bridge/status"
}

func (m *Mirror) statusJSON(status, detail string) string {
	payload := map[string]string{
		"status":    status,
		"client_id": m.cfg.Broker.ClientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if detail != "" {
		payload["session"] = detail
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func (m *Mirror) publish(topic string, payload []byte, retained bool) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	token := m.client.Publish(topic, byte(m.cfg.QoS), retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// IsConnected returns the last known connection state.
func (m *Mirror) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.client.IsConnected()
}

// Close publishes a graceful offline status and disconnects.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}

	if m.IsConnected() {
		m.publishStatus("offline", "graceful_shutdown")
	}

	m.client.Disconnect(defaultDisconnectQuiesce)

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	return nil
}
