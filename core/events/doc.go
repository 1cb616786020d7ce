// Package events defines the notify intents emitted on the event bus.
// Delivery to people (push, SMS) is done by whoever subscribes.
//
// Kinds:
//   - incident.assigned, incident.status, incident.no_resource
//   - corridor.created, corridor.cleared, corridor.lane_clear, corridor.signal_evicted
//   - vehicle.tracking
package events
