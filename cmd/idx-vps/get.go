package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tyuio302/idx-vps/internal/output"
)

var (
	outputFormat string
	noHeaders    bool
)

var getCmd = &cobra.Command{
	Use:   "get <vm-name>",
	Short: "Get details about a VM",
	Long: `Get detailed information about a specific virtual machine.

Output formats:
  -o table  Human-readable field table (default)
  -o yaml   YAML view
  -o json   JSON view

The password is never included in any format.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		mgr, err := newManager()
		if err != nil {
			return err
		}
		detail, err := mgr.Describe(args[0])
		if err != nil {
			return fmt.Errorf("failed to get VM: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVM(detail)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long: `List all virtual machines with their current state.

Shows name, state, guest OS, resources, SSH port and age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		mgr, err := newManager()
		if err != nil {
			return err
		}
		infos, err := mgr.List()
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVMList(infos)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{getCmd, listCmd} {
		cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml or json")
		cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")
	}
}
