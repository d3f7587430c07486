package main

import (
	"github.com/spf13/cobra"

	"github.com/kloia/kubevirt-api-client/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			return a.printer().message(info, "%s", info.String())
		},
	}
}
