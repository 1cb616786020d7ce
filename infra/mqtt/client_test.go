package mqtt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/resqroute/core/monitoring"
	coremqtt "github.com/kilianp07/resqroute/core/mqtt"
)

// generateCert writes a self-signed cert, key and CA bundle.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))
	return
}

// mockClient implements paho.Client for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	connected   bool
	handlers    map[string]paho.MessageHandler
	published   []published
	publishErrs []error
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

func newMock() *mockClient {
	return &mockClient{connected: true, handlers: map[string]paho.MessageHandler{}}
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil && m.IsConnected() {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}

func (m *mockClient) Disconnect(uint) { m.setConnected(false) }

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic, qos, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	m.handlers[topic] = cb
	m.mu.Unlock()
	return &dummyToken{}
}

func (m *mockClient) deliver(filter, topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[filter]
	m.mu.Unlock()
	h(m, fakeMessage{topic: topic, payload: payload})
}

func (m *mockClient) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return m.IsConnected() }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

type recordMonitor struct {
	mu   sync.Mutex
	errs []error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.tags = tags
	r.mu.Unlock()
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, coremqtt.TopicNetworkStatus, opts.WillTopic)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{OfflinePolicy: "shrug"}
	assert.Error(t, cfg.Validate())
	cfg = Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, PolicyQueue, cfg.OfflinePolicy)
}

func TestPublishQoSAndRetry(t *testing.T) {
	mc := newMock()
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}
	withMock(t, mc)
	bus, err := NewPahoBus(Config{QoS: map[string]byte{"command": 2}, MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), coremqtt.SignalCommandTopic("S1"), []byte(`{}`)))
	require.Equal(t, 2, mc.count())
	assert.Equal(t, byte(2), mc.published[1].qos)
	assert.Equal(t, "traffic/signals/S1/command", mc.published[1].topic)
}

func TestPublishFailureCaptured(t *testing.T) {
	mc := newMock()
	mc.publishErrs = []error{errors.New("a"), errors.New("b"), errors.New("c")}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(coremon.NopMonitor{}) })

	bus, err := NewPahoBus(Config{MaxRetries: 2, BackoffMS: 1})
	require.NoError(t, err)
	err = bus.Publish(context.Background(), "traffic/signals/S1/command", []byte(`{}`))
	assert.ErrorIs(t, err, coremqtt.ErrMessagingUnavailable)
	require.Len(t, mon.errs, 1)
	assert.Equal(t, "mqtt", mon.tags["module"])
}

func TestOfflineQueueFlushedOnReconnect(t *testing.T) {
	mc := newMock()
	withMock(t, mc)
	bus, err := NewPahoBus(Config{QueueSize: 2})
	require.NoError(t, err)
	reconnected := 0
	bus.OnReconnect(func() { reconnected++ })

	mc.setConnected(false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, fmt.Sprintf("t/%d", i), []byte("x")))
	}
	assert.Equal(t, 2, bus.Pending())
	assert.Equal(t, 1, bus.Dropped())
	assert.Zero(t, mc.count())

	mc.setConnected(true)
	mc.Connect()
	assert.Equal(t, 0, bus.Pending())
	require.Equal(t, 2, mc.count())
	assert.Equal(t, "t/1", mc.published[0].topic)
	assert.Equal(t, 1, reconnected)
}

func TestOfflineDropPolicy(t *testing.T) {
	mc := newMock()
	withMock(t, mc)
	bus, err := NewPahoBus(Config{OfflinePolicy: PolicyDrop})
	require.NoError(t, err)
	mc.setConnected(false)
	err = bus.Publish(context.Background(), "t", []byte("x"))
	assert.ErrorIs(t, err, coremqtt.ErrMessagingUnavailable)
	assert.Equal(t, 1, bus.Dropped())
	assert.Zero(t, bus.Pending())
}

func TestSubscribeReplayedAndHandlerIsolated(t *testing.T) {
	mc := newMock()
	withMock(t, mc)
	bus, err := NewPahoBus(Config{})
	require.NoError(t, err)

	var got []string
	require.NoError(t, bus.Subscribe(coremqtt.TopicSignalStatus, func(topic string, payload []byte) {
		got = append(got, topic+" "+string(payload))
	}))
	require.NoError(t, bus.Subscribe(coremqtt.TopicCorridorRequest, func(string, []byte) { panic("bad payload") }))

	mc.deliver(coremqtt.TopicSignalStatus, "traffic/signals/S1/status", []byte(`{"state":"GREEN"}`))
	assert.Equal(t, []string{`traffic/signals/S1/status {"state":"GREEN"}`}, got)
	assert.NotPanics(t, func() {
		mc.deliver(coremqtt.TopicCorridorRequest, "emergency/corridor/x/request", []byte(`{}`))
	})

	// reconnect resubscribes from the registry
	mc.handlers = map[string]paho.MessageHandler{}
	mc.Connect()
	assert.Len(t, mc.handlers, 2)
	bus.Disconnect()
	assert.False(t, bus.Connected())
}

func TestMemoryBus(t *testing.T) {
	b := NewMemoryBus()
	var n int
	require.NoError(t, b.Subscribe("emergency/vehicles/+/location", func(string, []byte) { n++ }))
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "emergency/vehicles/A1/location", []byte(`{}`)))
	require.NoError(t, b.Publish(ctx, "traffic/signals/S1/command", []byte(`{}`)))
	assert.Equal(t, 1, n)
	assert.Len(t, b.Messages("traffic/signals/+/command"), 1)

	b.SetOffline(true)
	assert.ErrorIs(t, b.Publish(ctx, "x", nil), coremqtt.ErrMessagingUnavailable)
	assert.False(t, b.Connected())
}
