// Package mqtt implements the optional MQTT push source: payloads published
// to the configured topic are handed to the agent as push events, exactly as
// if they had arrived on the HTTP push endpoint.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dailytracker/offline-agent/internal/conf"
	"github.com/dailytracker/offline-agent/internal/logger"
)

const (
	// subscribeQoS delivers each push at least once.
	subscribeQoS byte = 1
	// disconnectQuiesce is how long Disconnect waits for in-flight work.
	disconnectQuiesce = 250 * time.Millisecond
	defaultTimeout    = 10 * time.Second
)

// PushHandler receives the raw payload of each published push message.
type PushHandler func(payload []byte)

// Source subscribes to a broker topic and forwards payloads to the handler.
type Source struct {
	client   paho.Client
	settings conf.MQTTSettings
	handler  PushHandler
	log      logger.Logger
}

// NewSource creates an MQTT push source. The handler is invoked from paho's
// receive routine, one message at a time per connection.
func NewSource(settings conf.MQTTSettings, handler PushHandler, log logger.Logger) (*Source, error) {
	if settings.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	s := &Source{settings: settings, handler: handler, log: log}

	opts := paho.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetConnectTimeout(s.timeout())
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(client paho.Client) {
		// Re-subscribe on every (re)connect; subscriptions do not survive a
		// clean-session reconnect.
		token := client.Subscribe(settings.Topic, subscribeQoS, s.onMessage)
		if token.WaitTimeout(s.timeout()) && token.Error() == nil {
			s.log.Info("subscribed to push topic", logger.String("topic", settings.Topic))
			return
		}
		s.log.Error("failed to subscribe to push topic",
			logger.String("topic", settings.Topic),
			logger.Error(token.Error()))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn("mqtt connection lost", logger.Error(err))
	})

	s.client = paho.NewClient(opts)
	return s, nil
}

// Connect establishes the broker connection and the topic subscription.
func (s *Source) Connect(ctx context.Context) error {
	token := s.client.Connect()
	deadline := s.timeout()
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("mqtt connect to %s timed out", s.settings.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.settings.Broker, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (s *Source) IsConnected() bool {
	return s.client.IsConnected()
}

// Disconnect closes the broker connection.
func (s *Source) Disconnect() {
	s.client.Disconnect(uint(disconnectQuiesce.Milliseconds()))
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	s.log.Debug("push payload received via mqtt",
		logger.String("topic", msg.Topic()),
		logger.Int("bytes", len(msg.Payload())))
	s.handler(msg.Payload())
}

func (s *Source) timeout() time.Duration {
	if t := s.settings.ConnectTimeout.Std(); t > 0 {
		return t
	}
	return defaultTimeout
}
