//go:build integration

package containers

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	mosquittoImage   = "eclipse-mosquitto:2.0"
	mosquittoPort    = "1883"
	mosquittoTimeout = 30 * time.Second
)

// MosquittoBroker is a throwaway anonymous-access MQTT broker for tests.
// Brokers are created fresh per test run; reuse is not attempted.
type MosquittoBroker struct {
	container  testcontainers.Container
	brokerURL  string
	configFile string
}

// StartMosquitto starts an Eclipse Mosquitto container and waits until the
// broker accepts connections.
func StartMosquitto(ctx context.Context) (*MosquittoBroker, error) {
	configFile, err := writeAnonymousConfig()
	if err != nil {
		return nil, fmt.Errorf("writing mosquitto config: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        mosquittoImage,
		ExposedPorts: []string{mosquittoPort + "/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-test.conf"},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      configFile,
				ContainerFilePath: "/mosquitto-test.conf",
				FileMode:          0o644,
			},
		},
		WaitingFor: wait.ForLog("mosquitto version").WithStartupTimeout(mosquittoTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		_ = os.Remove(configFile)
		return nil, fmt.Errorf("starting mosquitto container: %w", err)
	}

	b := &MosquittoBroker{container: container, configFile: configFile}
	host, err := container.Host(ctx)
	if err != nil {
		_ = b.Terminate()
		return nil, fmt.Errorf("resolving container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, mosquittoPort)
	if err != nil {
		_ = b.Terminate()
		return nil, fmt.Errorf("resolving mapped port: %w", err)
	}
	b.brokerURL = "tcp://" + net.JoinHostPort(host, strconv.Itoa(mapped.Int()))

	if err := b.healthCheck(); err != nil {
		_ = b.Terminate()
		return nil, err
	}
	return b, nil
}

// URL returns the broker URL, e.g. "tcp://localhost:32768".
func (b *MosquittoBroker) URL() string {
	return b.brokerURL
}

// Publish sends one payload to topic at QoS 1 and waits for the ack.
func (b *MosquittoBroker) Publish(topic string, payload []byte) error {
	client, err := b.connect("test-publisher")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Terminate stops the container and removes the temp config file.
func (b *MosquittoBroker) Terminate() error {
	var err error
	if b.container != nil {
		err = b.container.Terminate(context.Background())
	}
	if b.configFile != "" {
		if rmErr := os.Remove(b.configFile); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

// healthCheck connects and disconnects once to prove the broker is usable.
func (b *MosquittoBroker) healthCheck() error {
	client, err := b.connect("healthcheck")
	if err != nil {
		return fmt.Errorf("broker health check: %w", err)
	}
	client.Disconnect(250)
	return nil
}

func (b *MosquittoBroker) connect(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.brokerURL)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("connect as %s timed out", clientID)
	}
	if token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

func writeAnonymousConfig() (string, error) {
	f, err := os.CreateTemp("", "mosquitto-*.conf")
	if err != nil {
		return "", err
	}
	config := "listener 1883\nallow_anonymous true\n"
	if _, err := f.WriteString(config); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
