package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/resqroute/app"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/infra/logger"
	"github.com/kilianp07/resqroute/infra/mqtt"
)

var (
	incidentFile  string
	incidentCount int
)

var incidentCmd = &cobra.Command{
	Use:   "incident",
	Short: "Incident related commands",
}

var incidentCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Dispatch an incident against the seeded fleet without a broker",
	RunE:  runIncidentCreate,
}

func init() {
	incidentCreateCmd.Flags().StringVarP(&incidentFile, "file", "f", "", "JSON incident request")
	incidentCreateCmd.Flags().IntVarP(&incidentCount, "count", "n", 1, "ambulances to dispatch (mass casualty when > 1)")
	_ = incidentCreateCmd.MarkFlagRequired("file")
	incidentCmd.AddCommand(incidentCreateCmd)
	rootCmd.AddCommand(incidentCmd)
}

func runIncidentCreate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(incidentFile)
	if err != nil {
		return err
	}
	var req dispatch.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode %s: %w", incidentFile, err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	bus := mqtt.NewMemoryBus()
	svc, err := app.New(ctx, cfg, app.WithBus(bus))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("incident-command").Errorf("service close: %v", err)
		}
	}()

	dispatchFn := svc.Orchestrator.CreateIncident
	if incidentCount > 1 {
		dispatchFn = func(ctx context.Context, req dispatch.Request) (*model.Incident, error) {
			return svc.Orchestrator.DispatchMassCasualty(ctx, req, incidentCount)
		}
	}
	// a failed incident is still returned and printed alongside the error
	inc, derr := dispatchFn(ctx, req)
	if inc == nil {
		return derr
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(inc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d signal command(s) issued\n", len(bus.Messages("traffic/signals/+/command")))
	return derr
}
