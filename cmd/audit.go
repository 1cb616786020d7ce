package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/resqroute/core/audit"
)

var (
	auditQuery audit.Query
	auditSince time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log commands",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print audit records as JSON lines",
	RunE:  runAuditQuery,
}

func init() {
	f := auditQueryCmd.Flags()
	f.StringVar(&auditQuery.Kind, "kind", "", "dispatch, transition, corridor or rating")
	f.StringVar(&auditQuery.IncidentID, "incident", "", "incident id")
	f.StringVar(&auditQuery.UnitID, "unit", "", "candidate id")
	f.IntVar(&auditQuery.Limit, "limit", 0, "keep only the newest records")
	f.DurationVar(&auditSince, "since", 0, "only records newer than this")
	auditCmd.AddCommand(auditQueryCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := audit.Open(cfg.Audit)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := auditQuery
	if auditSince > 0 {
		q.Start = time.Now().Add(-auditSince)
	}
	recs, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
