package report

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/logging"
	"github.com/Iron-Ham/atkrun/internal/model"
)

// Default MQTT settings.
const (
	DefaultTopicPrefix = "atkrun"
	DefaultMQTTTimeout = 5 * time.Second

	disconnectQuiesceMs = 250
)

// Publisher is the part of a paho client the MQTT sink uses.
// pahomqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTOptions configures an MQTT sink.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
	RunID       string
	Logger      *logging.Logger
}

// MQTT publishes each result to "<prefix>/<run_id>/result" and the summary
// to "<prefix>/<run_id>/summary" as JSON.
type MQTT struct {
	client  Publisher
	prefix  string
	runID   string
	qos     byte
	timeout time.Duration
	logger  *logging.Logger
}

// DialMQTT connects to the broker and returns a sink publishing through it.
func DialMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Broker == "" {
		return nil, errors.NewValidationError("mqtt broker is required").WithField("report.mqtt.broker")
	}
	opts = opts.withDefaults()

	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(false)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := pahomqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, errors.NewTimeoutError("mqtt connect", opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", opts.Broker, err)
	}

	opts.Logger.Info("connected to mqtt broker", "broker", opts.Broker, "client_id", opts.ClientID)
	return NewMQTT(client, opts), nil
}

// NewMQTT creates a sink over an already connected client.
func NewMQTT(client Publisher, opts MQTTOptions) *MQTT {
	opts = opts.withDefaults()
	return &MQTT{
		client:  client,
		prefix:  opts.TopicPrefix,
		runID:   opts.RunID,
		qos:     opts.QoS,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

func (o MQTTOptions) withDefaults() MQTTOptions {
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultMQTTTimeout
	}
	if o.ClientID == "" {
		o.ClientID = fmt.Sprintf("atkrun-%d", time.Now().UnixNano())
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Topic returns the topic for a record kind ("result" or "summary").
func (m *MQTT) Topic(kind string) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, m.runID, kind)
}

// Result publishes res.
func (m *MQTT) Result(res model.ExecutionResult) error {
	return m.publish(RecordResult, newResultRecord(m.runID, res))
}

// Summary publishes the batch summary. When the sink was created without a
// run ID, the batch's run ID is adopted.
func (m *MQTT) Summary(batch model.BatchResult) error {
	if m.runID == "" {
		m.runID = batch.RunID
	}
	return m.publish(RecordSummary, newSummaryRecord(batch))
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(disconnectQuiesceMs)
	return nil
}

func (m *MQTT) publish(kind string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return sinkError("mqtt", kind, err)
	}

	topic := m.Topic(kind)
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return sinkError("mqtt", kind, errors.NewTimeoutError("mqtt publish", m.timeout))
	}
	if err := token.Error(); err != nil {
		return sinkError("mqtt", kind, err)
	}

	m.logger.Debug("published report record", "topic", topic, "bytes", len(payload))
	return nil
}
