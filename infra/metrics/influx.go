package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch and corridor events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDispatch writes one dispatch attempt.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	p := write.NewPointWithMeasurement("dispatch_event").
		AddTag("incident_id", ev.IncidentID).
		AddTag("domain", ev.Domain).
		AddTag("severity", ev.Severity).
		AddTag("outcome", ev.Outcome).
		AddTag("component", "dispatch").
		AddField("units", len(ev.Units)).
		AddField("conflicts", ev.Conflicts).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	if len(ev.Units) > 0 {
		p = p.AddField("unit_ids", strings.Join(ev.Units, ","))
	}
	return s.write(p)
}

// RecordTransition writes an incident status change.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	p := write.NewPointWithMeasurement("incident_transition").
		AddTag("incident_id", ev.IncidentID).
		AddTag("domain", ev.Domain).
		AddTag("to", ev.To).
		AddField("from", ev.From).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCorridor writes a corridor lifecycle step.
func (s *InfluxSink) RecordCorridor(ev coremetrics.CorridorEvent) error {
	p := write.NewPointWithMeasurement("corridor_event").
		AddTag("corridor_id", ev.CorridorID).
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("kind", ev.Kind).
		AddTag("component", "corridor")
	if ev.Reason != "" {
		p = p.AddTag("reason", ev.Reason)
	}
	p = p.AddField("signals", ev.Signals).
		AddField("denied", ev.Denied).
		AddField("lifetime_s", round3(ev.Lifetime.Seconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
