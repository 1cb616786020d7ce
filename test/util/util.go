// Package util holds helpers for tests that need real infrastructure or
// have to wait on asynchronous dispatch and corridor work.
package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// BrokerReadyTimeout bounds how long StartMosquitto waits for a CONNACK.
	BrokerReadyTimeout = 5 * time.Second

	pollInterval  = 50 * time.Millisecond
	mosquittoConf = "listener 1883\nallow_anonymous true\npersistence false\nlog_dest stdout\n"
)

// WaitFor polls cond until it returns true or ctx is done.
func WaitFor(ctx context.Context, cond func() bool) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// StartMosquitto runs a throwaway eclipse-mosquitto container and returns
// its tcp:// URL once a client can connect. The returned func terminates it.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConf),
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return "", nil, fmt.Errorf("start mosquitto: %w", err)
	}
	stop := func() { _ = cont.Terminate(context.Background()) }

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("mosquitto endpoint: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, BrokerReadyTimeout)
	defer cancel()
	if err := WaitFor(readyCtx, func() bool { return probe(endpoint) }); err != nil {
		stop()
		return "", nil, fmt.Errorf("mosquitto not ready at %s: %w", endpoint, err)
	}
	return endpoint, stop, nil
}

func probe(broker string) bool {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("probe-%d", time.Now().UnixNano())).
		SetConnectTimeout(time.Second)
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	if !tok.WaitTimeout(2*time.Second) || tok.Error() != nil {
		return false
	}
	cli.Disconnect(50)
	return true
}
