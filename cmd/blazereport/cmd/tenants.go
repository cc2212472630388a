package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazereport/internal/report"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List managed tenants",
	Long:  `List the tenants a service provider API key can report on, sorted by name.`,
	Args:  cobra.NoArgs,
	RunE:  runTenants,
}

func init() {
	rootCmd.AddCommand(tenantsCmd)
}

func runTenants(cmd *cobra.Command, args []string) error {
	key, err := apiKey()
	if err != nil {
		return describeError(err)
	}

	logger := newLogger()
	defer logger.Sync()

	engine, err := newEngine(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	list, err := engine.ListTenants(ctx, key)
	if err != nil {
		return describeError(err)
	}
	outputTenants(list)
	return nil
}

func outputTenants(list *report.TenantList) {
	switch GetOutput() {
	case "json":
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			PrintError(fmt.Sprintf("failed to marshal JSON: %v", err), false)
			return
		}
		fmt.Println(string(data))
	case "plain":
		for _, t := range list.Tenants {
			fmt.Println(t.ID)
		}
	default:
		if !list.IsServiceProvider {
			fmt.Println("This API key does not belong to a service provider.")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\tNAME\tUSERS\tENDPOINTS\n")
		fmt.Fprintf(w, "--\t----\t-----\t---------\n")
		for _, t := range list.Tenants {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", t.ID, t.Name, t.BillableUsers, t.BillableEndpoints)
		}
		w.Flush()
		fmt.Printf("\n%d tenants\n", len(list.Tenants))
	}
}
