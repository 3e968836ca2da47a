package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sledctl/sledctl/nexus"
)

// getCmd is an admin-facing read-only view of the registry, connected
// directly against an in-process Controller for now; a production
// build would instead query a running nexus over its resource API,
// which lives in a separate service.
var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Display registry resources",
	Long:  `Display projects, instances, and sleds known to a local registry snapshot.`,
}

var getSledsCmd = &cobra.Command{
	Use:   "sleds",
	Short: "List registered sleds",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nexus.NewController()
		if err != nil {
			return err
		}
		sleds, err := c.SledsList()
		if err != nil {
			return err
		}
		rows := pterm.TableData{{"ID", "ADDRESS"}}
		for _, s := range sleds {
			rows = append(rows, []string{s.ID.String(), s.Address})
		}
		return pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(rows).Render()
	},
}

var getProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := nexus.NewController()
		if err != nil {
			return err
		}
		projects, err := c.ProjectsList(nexus.PageParams{Sort: nexus.SortNameAscending})
		if err != nil {
			return err
		}
		rows := pterm.TableData{{"NAME", "ID", "DESCRIPTION"}}
		for _, p := range projects {
			rows = append(rows, []string{p.Name, p.ID.String(), p.Description})
		}
		return pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(rows).Render()
	},
}

var getInstancesCmd = &cobra.Command{
	Use:     "instances",
	Aliases: []string{"vms"},
	Short:   "List instances in a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		if project == "" {
			return fmt.Errorf("--project is required")
		}
		c, err := nexus.NewController()
		if err != nil {
			return err
		}
		instances, err := c.InstancesList(project, nexus.PageParams{Sort: nexus.SortNameAscending})
		if err != nil {
			return err
		}
		rows := pterm.TableData{{"NAME", "ID", "STATE", "GEN", "SLED"}}
		for _, i := range instances {
			rows = append(rows, []string{
				i.Name,
				i.ID.String(),
				string(i.Runtime.RunState),
				fmt.Sprintf("%d", i.Runtime.Gen),
				i.Runtime.SledID.String(),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(rows).Render()
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.AddCommand(getSledsCmd)
	getCmd.AddCommand(getProjectsCmd)
	getCmd.AddCommand(getInstancesCmd)

	getInstancesCmd.Flags().String("project", "", "project name to list instances from")
}
