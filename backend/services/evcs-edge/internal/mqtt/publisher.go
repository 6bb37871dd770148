// Package mqtt publishes charger state and accepts limit commands over MQTT.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

// Client is the part of the paho client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// Chargers resolves configured components.
type Chargers interface {
	Components() []*evcs.Component
	Component(id string) (*evcs.Component, bool)
}

// ClientOptions configures the broker connection.
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker. Reconnects are handled by paho.
func Connect(opts ClientOptions, logger *zap.Logger) (paho.Client, error) {
	o := paho.NewClientOptions()
	o.AddBroker(opts.Broker)
	o.SetClientID(opts.ClientID)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetMaxReconnectInterval(time.Minute)
	o.SetOnConnectHandler(func(paho.Client) {
		logger.Info("mqtt connected", zap.String("broker", opts.Broker))
	})
	o.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := paho.NewClient(o)
	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", opts.Broker, token.Error())
	}
	return client, nil
}

// State is the JSON document published per charger.
type State struct {
	ID                  string             `json:"id"`
	Alias               string             `json:"alias,omitempty"`
	Status              string             `json:"status"`
	CommunicationFailed bool               `json:"communicationFailed"`
	Channels            map[string]float64 `json:"channels"`
	Debug               string             `json:"debug"`
	Timestamp           time.Time          `json:"timestamp"`
}

// LimitCommand is accepted on <prefix>/chargers/<id>/limit. A bare number is
// read as chargePowerLimit in W.
type LimitCommand struct {
	ChargePowerLimit *float64 `json:"chargePowerLimit"`
	EnergyLimit      *float64 `json:"energyLimit"`
}

// Publisher is a cycle handler publishing every charger after the write phase.
type Publisher struct {
	client   Client
	chargers Chargers
	prefix   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewPublisher returns publisher.
func NewPublisher(client Client, chargers Chargers, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "evcs"
	}
	return &Publisher{client: client, chargers: chargers, prefix: prefix, logger: logger, now: time.Now}
}

// OnAfterProcessImage implements cycle.Handler.
func (p *Publisher) OnAfterProcessImage(context.Context) {}

// OnExecuteWrite publishes the charger states without waiting for the broker.
func (p *Publisher) OnExecuteWrite(context.Context) {
	at := p.now().UTC()
	for _, c := range p.chargers.Components() {
		state := State{
			ID:                  c.ID(),
			Alias:               c.Config().Alias,
			Status:              c.Channels().Status().String(),
			CommunicationFailed: c.Channels().CommunicationFailed(),
			Channels:            make(map[string]float64),
			Debug:               c.DebugLog(),
			Timestamp:           at,
		}
		for id, v := range c.Channels().Snapshot() {
			state.Channels[string(id)] = v
		}
		payload, err := json.Marshal(state)
		if err != nil {
			p.logger.Error("marshal charger state", zap.String("component_id", c.ID()), zap.Error(err))
			continue
		}
		p.publish(p.topic(c.ID(), "state"), payload)
	}
}

func (p *Publisher) topic(componentID, leaf string) string {
	return fmt.Sprintf("%s/chargers/%s/%s", p.prefix, componentID, leaf)
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, 0, true, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		}
	}()
}

// SubscribeLimits accepts limit commands for managed chargers.
func (p *Publisher) SubscribeLimits() error {
	topic := fmt.Sprintf("%s/chargers/+/limit", p.prefix)
	token := p.client.Subscribe(topic, 1, p.handleLimit)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, token.Error())
	}
	p.logger.Info("subscribed to limit commands", zap.String("topic", topic))
	return nil
}

func (p *Publisher) handleLimit(_ paho.Client, msg paho.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 3 || parts[len(parts)-1] != "limit" {
		p.logger.Warn("invalid limit topic", zap.String("topic", msg.Topic()))
		return
	}
	id := parts[len(parts)-2]
	c, ok := p.chargers.Component(id)
	if !ok || !c.Config().Managed {
		p.logger.Warn("limit for unknown or unmanaged charger", zap.String("component_id", id))
		return
	}

	cmd, err := parseLimit(msg.Payload())
	if err != nil {
		p.logger.Warn("invalid limit payload", zap.String("component_id", id), zap.Error(err))
		return
	}
	if cmd.ChargePowerLimit != nil {
		c.Channels().Set(evcs.SetChargePowerLimit, *cmd.ChargePowerLimit)
	}
	if cmd.EnergyLimit != nil {
		c.Channels().Set(evcs.SetEnergyLimit, *cmd.EnergyLimit)
	}
	p.logger.Info("limit set over mqtt", zap.String("component_id", id))
}

func parseLimit(payload []byte) (LimitCommand, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return LimitCommand{}, fmt.Errorf("mqtt: empty payload")
	}
	var cmd LimitCommand
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		cmd.ChargePowerLimit = &v
	} else if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return LimitCommand{}, fmt.Errorf("mqtt: decode limit: %w", err)
	}
	if cmd.ChargePowerLimit == nil && cmd.EnergyLimit == nil {
		return LimitCommand{}, fmt.Errorf("mqtt: no limit given")
	}
	for _, v := range []*float64{cmd.ChargePowerLimit, cmd.EnergyLimit} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return LimitCommand{}, fmt.Errorf("mqtt: limit not finite")
		}
		if *v < 0 {
			return LimitCommand{}, fmt.Errorf("mqtt: negative limit")
		}
	}
	return cmd, nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
