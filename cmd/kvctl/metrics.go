package main

import (
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kloia/kubevirt-api-client/internal/metrics"
)

func newMetricsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Query the metrics endpoint",
	}
	cmd.AddCommand(newMetricsQueryCmd(a))
	cmd.AddCommand(newMetricsNamesCmd(a))
	return cmd
}

func newMetricsNamesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "names [PREFIX]",
		Short: "List metric names known to the metrics endpoint",
		Long:  `List metric names starting with PREFIX, kubevirt_vmi by default. Pass "" for all.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := "kubevirt_vmi"
			if len(args) == 1 {
				prefix = args[0]
			}
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			mc, err := a.metricsClient(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}
			names, err := mc.MetricNames(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			rows := make([]table.Row, 0, len(names))
			for _, n := range names {
				rows = append(rows, table.Row{n})
			}
			return a.printer().print(names, table.Row{"Metric"}, rows)
		},
	}
}

func newMetricsQueryCmd(a *app) *cobra.Command {
	var since, step time.Duration

	cmd := &cobra.Command{
		Use:   "query EXPR",
		Short: "Run a PromQL query",
		Long: `Run a PromQL query against the metrics url, or against the cluster
Prometheus route when no url is set. By default this is an instant query;
--since turns it into a range query ending now.`,
		Example: `  kvctl metrics query 'kubevirt_vmi_memory_resident_bytes{namespace="dev"}'
  kvctl metrics query 'rate(kubevirt_vmi_cpu_usage_seconds_total[5m])' --since 1h --step 5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			mc, err := a.metricsClient(cmd.Context(), cfg, client)
			if err != nil {
				return err
			}

			var tr *metrics.TimeRange
			if since > 0 {
				end := time.Now()
				tr = &metrics.TimeRange{Start: end.Add(-since), End: end, Step: step}
			}
			samples, err := mc.Query(cmd.Context(), args[0], tr)
			if err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(samples))
			for _, s := range samples {
				rows = append(rows, table.Row{formatLabels(s.Labels), s.Timestamp.Format(time.RFC3339), strconv.FormatFloat(s.Value, 'g', -1, 64)})
			}
			return a.printer().print(samples, table.Row{"Series", "Timestamp", "Value"}, rows)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Run a range query over this window")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "Resolution of a range query")
	return cmd
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := "{"
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += k + "=" + strconv.Quote(labels[k])
	}
	return s + "}"
}
