package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	corelogger "github.com/kilianp07/resqroute/core/logger"
	coremon "github.com/kilianp07/resqroute/core/monitoring"
	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
	"github.com/kilianp07/resqroute/infra/logger"
)

// Offline policies.
const (
	PolicyQueue = "queue"
	PolicyDrop  = "drop"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	// OfflinePolicy is queue or drop.
	OfflinePolicy string      `json:"offline_policy"`
	QueueSize     int         `json:"queue_size"`
	TLSConfig     *tls.Config `json:"-"`
}

func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "resqroute"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.OfflinePolicy == "" {
		c.OfflinePolicy = PolicyQueue
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.LWTTopic == "" {
		c.LWTTopic = coremqtt.TopicNetworkStatus
		c.LWTPayload = `{"controller":"offline"}`
		c.LWTQoS = 1
	}
}

func (c Config) Validate() error {
	if c.OfflinePolicy != PolicyQueue && c.OfflinePolicy != PolicyDrop {
		return fmt.Errorf("mqtt: unknown offline_policy %q", c.OfflinePolicy)
	}
	if c.UseTLS && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") && c.TLSConfig == nil {
		return fmt.Errorf("mqtt: tls requires client_cert, client_key and ca_bundle")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// connectWait bounds how long startup blocks on the first connection. Paho
// keeps retrying in the background afterwards.
const connectWait = 5 * time.Second

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type queued struct {
	topic   string
	payload []byte
}

// PahoBus implements core/mqtt.Bus on Eclipse Paho. While disconnected,
// publishes are queued or dropped according to the offline policy.
type PahoBus struct {
	cli     pahoClient
	qos     map[string]byte
	policy  string
	limit   int
	retries int
	backoff time.Duration
	logger  corelogger.Logger

	mu          sync.Mutex
	subs        map[string]coremqtt.Handler
	queue       []queued
	dropped     int
	onReconnect []func()
}

// NewPahoBus connects to the broker. Subscriptions registered later are
// replayed on every reconnect.
func NewPahoBus(cfg Config) (*PahoBus, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	b := newBus(cfg, logger.New("mqtt"))
	opts.OnConnect = func(c paho.Client) { b.onConnect(c) }
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		b.logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		b.logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	b.cli = c
	token := c.Connect()
	if !token.WaitTimeout(connectWait) {
		b.logger.Warnf("broker %s not reachable yet, running offline", cfg.Broker)
		return b, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", coremqtt.ErrMessagingUnavailable, err)
	}
	return b, nil
}

func newBus(cfg Config, l corelogger.Logger) *PahoBus {
	return &PahoBus{
		qos:     cfg.QoS,
		policy:  cfg.OfflinePolicy,
		limit:   cfg.QueueSize,
		retries: cfg.MaxRetries,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:  l,
		subs:    map[string]coremqtt.Handler{},
	}
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.ConnectRetry = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (b *PahoBus) qosFor(kind string) byte {
	if q, ok := b.qos[kind]; ok {
		return q
	}
	return 1
}

func (b *PahoBus) onConnect(c paho.Client) {
	b.logger.Infof("MQTT connected")
	b.mu.Lock()
	subs := make(map[string]coremqtt.Handler, len(b.subs))
	for f, h := range b.subs {
		subs[f] = h
	}
	hooks := append([]func(){}, b.onReconnect...)
	b.mu.Unlock()
	for f, h := range subs {
		b.subscribe(c, f, h)
	}
	if n := b.Flush(context.Background()); n > 0 {
		b.logger.Infof("flushed %d queued message(s)", n)
	}
	for _, fn := range hooks {
		fn()
	}
}

func (b *PahoBus) subscribe(c pahoClient, filter string, h coremqtt.Handler) {
	cb := func(_ paho.Client, m paho.Message) { b.dispatch(h, m) }
	if token := c.Subscribe(filter, b.qosFor("subscribe"), cb); token.Wait() && token.Error() != nil {
		b.logger.Errorf("subscribe %s: %v", filter, token.Error())
	}
}

// dispatch runs a handler without letting it take the client down.
func (b *PahoBus) dispatch(h coremqtt.Handler, m paho.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("handler for %s panicked: %v", m.Topic(), r)
			coremon.CapturePanic(r, map[string]string{"module": "mqtt", "topic": m.Topic()})
		}
	}()
	h(m.Topic(), m.Payload())
}

// Subscribe registers h for filter, now if connected and on every reconnect.
func (b *PahoBus) Subscribe(filter string, h coremqtt.Handler) error {
	b.mu.Lock()
	b.subs[filter] = h
	b.mu.Unlock()
	if b.cli != nil && b.cli.IsConnected() {
		b.subscribe(b.cli, filter, h)
	}
	return nil
}

// OnReconnect registers fn to run after every (re)connection.
func (b *PahoBus) OnReconnect(fn func()) {
	b.mu.Lock()
	b.onReconnect = append(b.onReconnect, fn)
	b.mu.Unlock()
}

// Connected reports the broker link state.
func (b *PahoBus) Connected() bool { return b.cli != nil && b.cli.IsConnected() }

// Publish sends payload with retries. While offline the message is queued,
// or rejected with ErrMessagingUnavailable under the drop policy.
func (b *PahoBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if !b.Connected() {
		return b.offline(topic, payload)
	}
	qos := b.qosFor("command")
	var err error
	for attempt := 0; attempt <= b.retries; attempt++ {
		token := b.cli.Publish(topic, qos, false, payload)
		if err = waitToken(ctx, token); err == nil {
			return nil
		}
		b.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, err)
		if attempt == b.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.backoff * time.Duration(1<<attempt)):
		}
	}
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	if !b.Connected() {
		return b.offline(topic, payload)
	}
	return fmt.Errorf("%w: %v", coremqtt.ErrMessagingUnavailable, err)
}

func (b *PahoBus) offline(topic string, payload []byte) error {
	if b.policy == PolicyDrop {
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		return fmt.Errorf("%w: dropped %s", coremqtt.ErrMessagingUnavailable, topic)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.limit {
		b.queue = b.queue[1:]
		b.dropped++
		b.logger.Warnf("offline queue full, oldest message dropped")
	}
	b.queue = append(b.queue, queued{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

// Flush publishes queued messages in order and returns how many were sent.
// Messages that fail again stay queued.
func (b *PahoBus) Flush(ctx context.Context) int {
	b.mu.Lock()
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()
	sent := 0
	for i, q := range pending {
		if err := waitToken(ctx, b.cli.Publish(q.topic, b.qosFor("command"), false, q.payload)); err != nil {
			b.logger.Errorf("flush %s: %v", q.topic, err)
			b.mu.Lock()
			b.queue = append(append([]queued(nil), pending[i:]...), b.queue...)
			b.mu.Unlock()
			return sent
		}
		sent++
	}
	return sent
}

// Pending is the number of queued messages.
func (b *PahoBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped is the number of messages lost while offline.
func (b *PahoBus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Disconnect gracefully closes the MQTT connection.
func (b *PahoBus) Disconnect() {
	if b.cli != nil && b.cli.IsConnected() {
		b.cli.Disconnect(250)
	}
}

func waitToken(ctx context.Context, t paho.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
