package mqtt

import (
	"context"
	"strings"
)

// Publisher sends a payload on a topic. Implementations return
// ErrMessagingUnavailable when the broker cannot be reached and the message
// was not accepted for later delivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// Subscriber registers handlers for topic filters.
type Subscriber interface {
	Subscribe(filter string, h Handler) error
}

// Bus is a full duplex connection to the broker.
type Bus interface {
	Publisher
	Subscriber
	Connected() bool
}

const (
	TopicSignalStatus     = "traffic/signals/+/status"
	TopicSignalFeedback   = "traffic/signals/+/feedback"
	TopicVehicleLocation  = "emergency/vehicles/+/location"
	TopicCorridorRequest  = "emergency/corridor/+/request"
	TopicCorridorCreated  = "emergency/corridor/created"
	TopicCorridorCleared  = "emergency/corridor/cleared"
	TopicEmergencyAlert   = "traffic/emergency/alert"
	TopicNetworkStatus    = "traffic/network/status"
	signalPrefix          = "traffic/signals/"
	vehiclePrefix         = "emergency/vehicles/"
	corridorRequestPrefix = "emergency/corridor/"
	notifyPrefix          = "emergency/notify/"
)

// SignalCommandTopic is where commands for one signal are published.
func SignalCommandTopic(signalID string) string { return signalPrefix + signalID + "/command" }

// SignalRequestStatusTopic asks a controller to report its state.
func SignalRequestStatusTopic(signalID string) string {
	return signalPrefix + signalID + "/request-status"
}

// VehicleTrackingTopic carries position updates for one vehicle.
func VehicleTrackingTopic(vehicleID string) string { return vehiclePrefix + vehicleID + "/tracking" }

// NotifyTopic carries notify intents of one kind for external push delivery.
func NotifyTopic(kind string) string { return notifyPrefix + kind }

// Segment returns the id at position 2 of a topic such as
// traffic/signals/{id}/status. ok is false when the topic is too short.
func Segment(topic string) (id string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// Match reports whether topic matches an MQTT filter with + and # wildcards.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
