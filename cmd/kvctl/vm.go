package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/kubernetes"
	"github.com/kloia/kubevirt-api-client/internal/report"
)

func newVMCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vm",
		Aliases: []string{"vms"},
		Short:   "Inspect and control KubeVirt virtual machines",
	}

	cmd.AddCommand(newVMListCmd(a))
	cmd.AddCommand(newVMGetCmd(a))
	cmd.AddCommand(newVMPowerCmd(a, "start", "Start a virtual machine", kubernetes.VMStatusRunning))
	cmd.AddCommand(newVMPowerCmd(a, "stop", "Stop a virtual machine", kubernetes.VMStatusStopped))
	cmd.AddCommand(newVMRestartCmd(a))
	cmd.AddCommand(newVMWaitCmd(a))
	return cmd
}

func newVMListCmd(a *app) *cobra.Command {
	var allNamespaces, withMetrics bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List virtual machines",
		Long: `List virtual machines in the namespace, or in all namespaces with -A.
With --metrics, CPU and memory usage of each VM's virt-launcher pod is added.
The metrics url is discovered from the prometheus-k8s route unless set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			namespace := cfg.Namespace
			if allNamespaces {
				namespace = ""
			}

			vms, err := client.ListVMs(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			rows := report.VMRows(vms)

			if withMetrics {
				mc, err := a.metricsClient(cmd.Context(), cfg, client)
				if err != nil {
					return err
				}
				if rows, err = report.EnrichVMs(cmd.Context(), mc, rows); err != nil {
					return err
				}
			}

			header := table.Row{"Name", "Namespace", "Status", "Ready", "Run Strategy"}
			if withMetrics {
				header = append(header, "CPU (cores)", "Memory")
			}
			tableRows := make([]table.Row, 0, len(rows))
			for _, r := range rows {
				row := table.Row{r.Name, r.Namespace, r.Status, r.Ready, r.RunStrategy}
				if withMetrics {
					row = append(row, fmt.Sprintf("%.3f", r.CPUCores), humanBytes(r.MemoryBytes))
				}
				tableRows = append(tableRows, row)
			}
			return a.printer().print(rows, header, tableRows)
		},
	}

	cmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "List VMs in all namespaces")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Add CPU and memory usage from the metrics endpoint")
	return cmd
}

func newVMGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a virtual machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			vm, err := client.GetVM(cmd.Context(), args[0], cfg.Namespace)
			if err != nil {
				return err
			}
			rows := report.VMRows([]codec.Envelope{vm})
			r := rows[0]
			return a.printer().print(vm,
				table.Row{"Name", "Namespace", "Status", "Ready", "Run Strategy"},
				[]table.Row{{r.Name, r.Namespace, r.Status, r.Ready, r.RunStrategy}})
		},
	}
}

func newVMPowerCmd(a *app, verb, short, target string) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   verb + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			name := args[0]

			if verb == "start" {
				err = client.StartVM(cmd.Context(), name, cfg.Namespace)
			} else {
				err = client.StopVM(cmd.Context(), name, cfg.Namespace)
			}
			if err != nil {
				return err
			}
			a.logger.Info("VM state change requested", zap.String("vm", name), zap.String("action", verb))

			status := "requested"
			if wait {
				if err := client.WaitForVMStatus(cmd.Context(), name, cfg.Namespace, target, cfg.PollTimeout); err != nil {
					return err
				}
				status = target
			}
			return a.printer().message(map[string]string{"vm": name, "namespace": cfg.Namespace, "action": verb, "status": status},
				"VM %s/%s: %s %s", cfg.Namespace, name, verb, status)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the VM reports status "+target)
	return cmd
}

func newVMRestartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart NAME",
		Short: "Stop a virtual machine, wait for it to halt and start it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			if err := client.RestartVM(cmd.Context(), args[0], cfg.Namespace, cfg.PollTimeout); err != nil {
				return err
			}
			return a.printer().message(map[string]string{"vm": args[0], "namespace": cfg.Namespace, "status": kubernetes.VMStatusRunning},
				"VM %s/%s restarted", cfg.Namespace, args[0])
		},
	}
}

func newVMWaitCmd(a *app) *cobra.Command {
	var status string
	var instance, gone bool

	cmd := &cobra.Command{
		Use:   "wait NAME",
		Short: "Wait for a virtual machine to reach a status",
		Long: `Wait for a virtual machine to report the given printable status.
With --instance the VM instance is watched instead: --gone waits for it to be
deleted, otherwise for it to reach phase Running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			name := args[0]

			switch {
			case instance && gone:
				err = client.WaitForVMIGone(cmd.Context(), name, cfg.Namespace, cfg.PollTimeout)
				status = "Gone"
			case instance:
				err = client.WaitForVMIRunning(cmd.Context(), name, cfg.Namespace, cfg.PollTimeout)
				status = "Running"
			default:
				err = client.WaitForVMStatus(cmd.Context(), name, cfg.Namespace, status, cfg.PollTimeout)
			}
			if err != nil {
				return err
			}
			return a.printer().message(map[string]string{"vm": name, "namespace": cfg.Namespace, "status": status},
				"VM %s/%s is %s", cfg.Namespace, name, status)
		},
	}

	cmd.Flags().StringVar(&status, "status", kubernetes.VMStatusRunning, "Printable status to wait for")
	cmd.Flags().BoolVar(&instance, "instance", false, "Watch the VM instance instead of the VM")
	cmd.Flags().BoolVar(&gone, "gone", false, "With --instance, wait for the instance to be deleted")
	return cmd
}
