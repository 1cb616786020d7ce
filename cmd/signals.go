package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/infra/seed"
)

var signalsFile string

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Signal network commands",
}

var signalsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a seed file and summarise its signal network",
	RunE:  runSignalsCheck,
}

func init() {
	signalsCheckCmd.Flags().StringVarP(&signalsFile, "file", "f", "", "signal seed file (yaml or json)")
	_ = signalsCheckCmd.MarkFlagRequired("file")
	signalsCmd.AddCommand(signalsCheckCmd)
	rootCmd.AddCommand(signalsCmd)
}

func runSignalsCheck(cmd *cobra.Command, args []string) error {
	f, err := seed.LoadFile(signalsFile)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%s is invalid:\n%w", signalsFile, err)
	}
	net := corridor.NewNetwork(model.Cycle{})
	f.ApplySignals(net)
	st := net.Status(time.Now())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d signal(s), %d candidate(s)\n", st.Total, len(f.Candidates()))
	for _, s := range net.Snapshot() {
		fmt.Fprintf(out, "%-12s %.6f,%.6f  green %s yellow %s red %s\n",
			s.ID, s.Location.Lat, s.Location.Lng, s.Cycle.Green, s.Cycle.Yellow, s.Cycle.Red)
	}
	return nil
}
