package corridor

import "strings"

// Vehicle types with a known corridor priority.
const (
	VehicleAmbulance       = "AMBULANCE"
	VehicleFireTruck       = "FIRE_TRUCK"
	VehiclePolice          = "POLICE"
	VehicleVIP             = "VIP"
	VehiclePublicTransport = "PUBLIC_TRANSPORT"
)

var vehiclePriority = map[string]int{
	VehicleAmbulance:       10,
	VehicleFireTruck:       10,
	VehiclePolice:          8,
	VehicleVIP:             5,
	VehiclePublicTransport: 3,
}

// PriorityFor returns custom when positive, otherwise the priority of the
// vehicle type. Unknown types get 1.
func PriorityFor(vehicleType string, custom int) int {
	if custom > 0 {
		return custom
	}
	if p, ok := vehiclePriority[strings.ToUpper(vehicleType)]; ok {
		return p
	}
	return 1
}
