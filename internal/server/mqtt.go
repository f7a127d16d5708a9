package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/decenza/de1core/internal/settings"
)

// mqttTestTimeout bounds a connect/status probe (§5 "Test endpoints...
// 15s timeout; ... a fired flag ensures at-most-one reply per test").
const mqttTestTimeout = 15 * time.Second

// mqttBridge manages the optional connection to a home-automation MQTT
// broker, configured entirely through the settings store (§6.7 mqtt*
// keys).
type mqttBridge struct {
	mu       sync.Mutex
	settings *settings.Store
	client   mqtt.Client
}

func newMQTTBridge(store *settings.Store) *mqttBridge {
	return &mqttBridge{settings: store}
}

func (b *mqttBridge) connect() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil && b.client.IsConnected() {
		return "already connected", true
	}

	host := b.settings.String("mqttHost", "")
	if host == "" {
		return "mqttHost is not configured", false
	}
	port := b.settings.Int("mqttPort", 1883)
	user := b.settings.String("mqttUser", "")
	pass := b.settings.String("mqttPassword", "")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID("decenza-de1")
	opts.SetConnectTimeout(mqttTestTimeout)
	if user != "" {
		opts.SetUsername(user)
		opts.SetPassword(pass)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	fired := false
	var ok bool
	var message string
	if token.WaitTimeout(mqttTestTimeout) {
		fired = true
		if token.Error() != nil {
			message = fmt.Sprintf("connect failed: %v", token.Error())
			ok = false
		} else {
			message = "connected"
			ok = true
			b.client = client
		}
	}
	if !fired {
		message = "connect timed out"
		ok = false
	}
	return message, ok
}

func (b *mqttBridge) disconnect() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil || !b.client.IsConnected() {
		return "not connected", true
	}
	b.client.Disconnect(250)
	b.client = nil
	return "disconnected", true
}

func (b *mqttBridge) status() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil && b.client.IsConnected() {
		return "connected", true
	}
	return "disconnected", false
}

// haDiscoveryPayload is the minimal Home Assistant MQTT discovery document
// for the shot-count sensor (§6.7 "mqtt* ... HA discovery").
type haDiscoveryPayload struct {
	Name        string `json:"name"`
	StateTopic  string `json:"state_topic"`
	UniqueID    string `json:"unique_id"`
	DeviceClass string `json:"device_class,omitempty"`
}

func (b *mqttBridge) publishDiscovery() (string, bool) {
	b.mu.Lock()
	client := b.client
	baseTopic := b.settings.String("mqttBaseTopic", "decenza")
	retain := b.settings.Bool("mqttRetain", true)
	b.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return "not connected", false
	}

	payload := haDiscoveryPayload{
		Name:       "Decenza Last Shot",
		StateTopic: baseTopic + "/last_shot",
		UniqueID:   "decenza_last_shot",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("marshal discovery payload: %v", err), false
	}

	topic := "homeassistant/sensor/decenza_last_shot/config"
	token := client.Publish(topic, 0, retain, data)
	if !token.WaitTimeout(mqttTestTimeout) {
		return "publish timed out", false
	}
	if token.Error() != nil {
		return fmt.Sprintf("publish failed: %v", token.Error()), false
	}
	return "discovery published", true
}
