package model

// TruckType is the apparatus kind of a fire truck.
type TruckType string

const (
	TruckPumper   TruckType = "pumper"
	TruckLadder   TruckType = "ladder"
	TruckTanker   TruckType = "tanker"
	TruckRescue   TruckType = "rescue"
	TruckHazmat   TruckType = "hazmat"
	TruckWildland TruckType = "wildland"
)

// FireTruck is a fire response vehicle attached to a station.
type FireTruck struct {
	Base          `yaml:",inline"`
	VehicleNumber string    `json:"vehicle_number" yaml:"vehicle_number"`
	Type          TruckType `json:"truck_type" yaml:"truck_type"`
	StationID     string    `json:"station_id" yaml:"station_id"`
	WaterCapacity int       `json:"water_capacity" yaml:"water_capacity"`
	FuelLevel     float64   `json:"fuel_level" yaml:"fuel_level"`
}

func (FireTruck) Kind() Kind { return KindFireTruck }

// OperationalStatus describes how much of a station is usable.
type OperationalStatus string

const (
	FullyOperational OperationalStatus = "fully_operational"
	Limited          OperationalStatus = "limited"
	Closed           OperationalStatus = "closed"
)

// FireStation groups trucks and tracks concurrent load.
type FireStation struct {
	Base            `yaml:",inline"`
	Name            string            `json:"name" yaml:"name"`
	Operational     OperationalStatus `json:"operational_status" yaml:"operational_status"`
	TotalTrucks     int               `json:"total_trucks" yaml:"total_trucks"`
	ActiveIncidents int               `json:"active_incidents" yaml:"active_incidents"`
}

func (FireStation) Kind() Kind { return KindFireStation }

// Operating reports whether the station can take new incidents.
func (s FireStation) Operating() bool {
	return s.Operational == FullyOperational || s.Operational == Limited
}
