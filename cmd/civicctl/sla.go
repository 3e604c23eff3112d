package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/service"
)

var (
	slaDepartment  string
	slaServiceType string
)

var slaCmd = &cobra.Command{
	Use:   "sla",
	Short: "Inspect SLA policy and escalate breached requests",
}

var slaSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Escalate every unresolved request past its SLA",
	Long: `Run one escalation sweep, the same one the API worker runs on a timer.

Examples:
  civicctl sla sweep
  civicctl sla sweep --department 6f1c...  # one department only
  civicctl sla sweep --json`,
	Args: cobra.NoArgs,
	RunE: runSLASweep,
}

var slaHoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Show the SLA that applies to a service type",
	Args:  cobra.NoArgs,
	RunE:  runSLAHours,
}

func init() {
	slaSweepCmd.Flags().StringVar(&slaDepartment, "department", "", "Limit the sweep to one department id")
	slaHoursCmd.Flags().StringVar(&slaServiceType, "service-type", "", "Service category, e.g. \"Streetlight\"")
	slaHoursCmd.Flags().StringVar(&slaDepartment, "department", "", "Department id whose overrides apply")
	_ = slaHoursCmd.MarkFlagRequired("service-type")

	slaCmd.AddCommand(slaSweepCmd)
	slaCmd.AddCommand(slaHoursCmd)
	rootCmd.AddCommand(slaCmd)
}

func openSLAService(cmd *cobra.Command) (*service.SLAService, func(), error) {
	infra, err := persistence.Open(cmd.Context(), *cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	deps := service.SLADependencies{
		Store:      infra.Store,
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Logger:     logger,
	}
	if infra.Locker != nil {
		deps.Locker = infra.Locker
	}
	return service.NewSLAService(*cfg, deps), infra.Close, nil
}

func departmentFlag() *string {
	if slaDepartment == "" {
		return nil
	}
	return &slaDepartment
}

func runSLASweep(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openSLAService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	if timeout := cfg.SLA.SweepTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := svc.CheckAllSLAs(ctx, departmentFlag())
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printSweep(cmd.OutOrStdout(), result)
	return nil
}

func printSweep(out io.Writer, result *service.SweepResult) {
	fmt.Fprintf(out, "checked %d, breached %d, newly escalated %d, failed %d\n",
		result.Checked, len(result.Breaches), result.Escalated, result.Failed)
	if len(result.Breaches) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST\tSTATUS\tSLA\tOVERDUE")
	for _, b := range result.Breaches {
		fmt.Fprintf(w, "%s\t%s\t%dh\t%.1fh\n", b.RequestID, b.Status, b.SLAHours, b.HoursOverdue)
	}
	_ = w.Flush()
}

func runSLAHours(cmd *cobra.Command, _ []string) error {
	svc, closeFn, err := openSLAService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	hours, err := svc.GetSLAHours(cmd.Context(), slaServiceType, departmentFlag())
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"service_type": slaServiceType, "sla_hours": hours})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %dh\n", slaServiceType, hours)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
