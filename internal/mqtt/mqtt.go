package mqtt

import (
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const timeout = 5 * time.Second

// Target describes where a message is published.
type Target struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string // empty = "appicon-<pid>"
	Topic    string
	QoS      byte
	Retain   bool
	Username string
	Password string
}

// Publish connects to the broker, publishes payload to the target topic,
// and disconnects. Each call uses a fresh connection; generation runs are
// far apart, so there is nothing to keep alive.
func Publish(t Target, payload []byte) error {
	if t.Topic == "" {
		return fmt.Errorf("mqtt: empty topic")
	}
	clientID := t.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("appicon-%d", os.Getpid())
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(t.Broker).
		SetClientID(clientID).
		SetConnectTimeout(timeout)
	if t.Username != "" {
		opts.SetUsername(t.Username)
	}
	if t.Password != "" {
		opts.SetPassword(os.ExpandEnv(t.Password))
	}

	client := pahomqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: connect timeout")
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", tok.Error())
	}
	defer client.Disconnect(250)

	pub := client.Publish(t.Topic, t.QoS, t.Retain, payload)
	if !pub.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: publish timeout")
	}
	if pub.Error() != nil {
		return fmt.Errorf("mqtt: publish: %w", pub.Error())
	}
	return nil
}
