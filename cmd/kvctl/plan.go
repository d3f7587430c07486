package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kloia/kubevirt-api-client/internal/report"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Aliases: []string{"plans"},
		Short:   "Inspect and manage Forklift migration plans",
	}

	cmd.AddCommand(newPlanListCmd(a))
	cmd.AddCommand(newPlanGetCmd(a))
	cmd.AddCommand(newPlanReportCmd(a))
	cmd.AddCommand(newPlanArchiveCmd(a))
	cmd.AddCommand(newPlanDeleteCmd(a))
	cmd.AddCommand(newPlanValidateCmd(a))
	return cmd
}

func planReportRows(reports []report.PlanReport) (table.Row, []table.Row) {
	header := table.Row{"Plan", "Status", "Target Namespace", "VMs", "Duration", "Error"}
	rows := make([]table.Row, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, table.Row{r.Name, r.Status, orNA(r.TargetNamespace), strings.Join(r.VMs, ", "), orNA(r.Duration), orNA(r.Error)})
	}
	return header, rows
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func newPlanListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migration plans with their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			plans, err := client.ListPlans(cmd.Context(), cfg.Namespace)
			if err != nil {
				return err
			}
			reports := make([]report.PlanReport, 0, len(plans))
			for _, p := range plans {
				reports = append(reports, report.BuildPlanReport(p))
			}
			header, rows := planReportRows(reports)
			return a.printer().print(reports, header, rows)
		},
	}
}

func newPlanGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show the raw migration plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			plan, err := client.GetPlan(cmd.Context(), args[0], cfg.Namespace)
			if err != nil {
				return err
			}
			r := report.BuildPlanReport(plan)
			header, rows := planReportRows([]report.PlanReport{r})
			return a.printer().print(plan, header, rows)
		},
	}
}

func newPlanReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report NAME",
		Short: "Summarize the outcome of a migration plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			plan, err := client.GetPlan(cmd.Context(), args[0], cfg.Namespace)
			if err != nil {
				return err
			}
			r := report.BuildPlanReport(plan)

			started, completed := "N/A", "N/A"
			if r.Started != nil {
				started = r.Started.Format("2006-01-02 15:04:05Z07:00")
			}
			if r.Completed != nil {
				completed = r.Completed.Format("2006-01-02 15:04:05Z07:00")
			}
			rows := []table.Row{
				{"Plan", r.Name},
				{"Status", r.Status},
				{"Started", started},
				{"Completed", completed},
				{"Duration", orNA(r.Duration)},
				{"Target Namespace", orNA(r.TargetNamespace)},
				{"Virtual Machines", strings.Join(r.VMs, ", ")},
				{"Error", orNA(r.Error)},
			}
			return a.printer().print(r, table.Row{"Field", "Value"}, rows)
		},
	}
}

func newPlanArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive NAME",
		Short: "Archive a migration plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			res, err := client.ArchivePlan(cmd.Context(), args[0], cfg.Namespace)
			if err != nil {
				return err
			}
			state := "archived"
			if res.Accepted {
				state = "archive accepted"
			}
			return a.printer().message(map[string]interface{}{"plan": args[0], "namespace": cfg.Namespace, "archived": true, "accepted": res.Accepted},
				"Plan %s/%s %s", cfg.Namespace, args[0], state)
		},
	}
}

func newPlanDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a migration plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			ack, err := client.DeletePlan(cmd.Context(), args[0], cfg.Namespace)
			if err != nil {
				return err
			}
			return a.printer().message(map[string]interface{}{"plan": args[0], "namespace": cfg.Namespace, "deleted": true, "statusCode": ack.StatusCode},
				"Plan %s/%s deleted", cfg.Namespace, args[0])
		},
	}
}

func newPlanValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that no VM is part of more than one migration plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			plans, err := client.ListPlans(cmd.Context(), cfg.Namespace)
			if err != nil {
				return err
			}

			dups := report.DuplicateVMs(plans)
			if len(dups) == 0 {
				return a.printer().message(map[string]interface{}{"valid": true, "plans": len(plans)},
					"Validation successful: no VM is part of more than one of %d plans", len(plans))
			}

			rows := make([]table.Row, 0, len(dups))
			for _, d := range dups {
				rows = append(rows, table.Row{d.VM, strings.Join(d.Plans, ", ")})
			}
			if err := a.printer().print(dups, table.Row{"VM", "Plans"}, rows); err != nil {
				return err
			}
			return fmt.Errorf("validation failed: %d VM(s) found in multiple plans", len(dups))
		},
	}
}
