package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/geo"
	"github.com/kilianp07/resqroute/infra/mqtt"
)

var corridorReq struct {
	vehicle  string
	kind     string
	incident string
	route    string
	priority int
	duration time.Duration
}

var corridorCmd = &cobra.Command{
	Use:   "corridor",
	Short: "Green corridor commands",
}

var corridorRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Publish a corridor request on the broker",
	RunE:  runCorridorRequest,
}

func init() {
	f := corridorRequestCmd.Flags()
	f.StringVar(&corridorReq.vehicle, "vehicle", "", "vehicle id")
	f.StringVar(&corridorReq.kind, "type", corridor.VehicleAmbulance, "vehicle type")
	f.StringVar(&corridorReq.incident, "incident", "", "incident id")
	f.StringVar(&corridorReq.route, "route", "", `route as "lat,lng;lat,lng;..."`)
	f.IntVar(&corridorReq.priority, "priority", 0, "priority override (default from vehicle type)")
	f.DurationVar(&corridorReq.duration, "duration", 0, "requested corridor duration")
	_ = corridorRequestCmd.MarkFlagRequired("vehicle")
	_ = corridorRequestCmd.MarkFlagRequired("route")
	corridorCmd.AddCommand(corridorRequestCmd)
	rootCmd.AddCommand(corridorCmd)
}

// parseRoute reads "lat,lng;lat,lng".
func parseRoute(s string) ([]geo.Point, error) {
	var route []geo.Point
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ll := strings.Split(part, ",")
		if len(ll) != 2 {
			return nil, fmt.Errorf("invalid route point %q", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(ll[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", part, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(ll[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", part, err)
		}
		route = append(route, geo.Point{Lat: lat, Lng: lng})
	}
	if len(route) == 0 {
		return nil, fmt.Errorf("route is empty")
	}
	return route, nil
}

func corridorPayload() (string, []byte, error) {
	route, err := parseRoute(corridorReq.route)
	if err != nil {
		return "", nil, err
	}
	var r corridor.CorridorRequest
	r.VehicleID = corridorReq.vehicle
	r.VehicleType = corridorReq.kind
	r.IncidentID = corridorReq.incident
	r.Route.Coordinates = route
	r.Priority = corridorReq.priority
	r.DurationMS = corridorReq.duration.Milliseconds()
	p, err := json.Marshal(r)
	if err != nil {
		return "", nil, err
	}
	return "emergency/corridor/" + r.VehicleID + "/request", p, nil
}

func runCorridorRequest(cmd *cobra.Command, args []string) error {
	topic, payload, err := corridorPayload()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-cli-%d", mqttCfg.ClientID, time.Now().UnixNano())
	mqttCfg.OfflinePolicy = mqtt.PolicyDrop
	bus, err := mqtt.NewPahoBus(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt bus: %w", err)
	}
	defer bus.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, topic, payload); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", topic)
	return nil
}
