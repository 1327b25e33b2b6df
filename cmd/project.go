package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	pmProject string
	pmReader  readerFlags
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage per-project settings",
}

var projectUseCmd = &cobra.Command{
	Use:   "use <preparation-id>",
	Short: "Make an existing preparation (id or unique prefix) the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(pmProject)
		if err != nil {
			return err
		}
		pr, err := p.LoadPreparation(args[0])
		if err != nil {
			return err
		}
		p.Active = pr.ID
		if err := p.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Active preparation for %s: %s\n", p.Name, pr.ShortID())
		if p.Stale() {
			fmt.Println("  Note: the trained model uses a different preparation; re-run train to match.")
		}
		return nil
	},
}

var projectSetDataCmd = &cobra.Command{
	Use:   "set-data <path-or-url>",
	Short: "Bind the project to a different dataset",
	Long: `Point the project at another dataset. Saved preparations keep row
indices into the old data, so run prepare again afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(pmProject)
		if err != nil {
			return err
		}
		src, err := pmReader.source(args[0])
		if err != nil {
			return err
		}
		if err := p.SetSource(src); err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		tbl, err := p.LoadTable(ctx, httpTimeoutSec())
		if err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Set dataset for %s: %s (%d rows × %d columns)\n", p.Name, p.Source.Path, tbl.Len(), len(tbl.Columns))
		if p.Active != "" {
			fmt.Println("  Note: existing preparations refer to the previous dataset; run prepare again.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectUseCmd)
	projectCmd.AddCommand(projectSetDataCmd)

	projectCmd.PersistentFlags().StringVarP(&pmProject, "project", "p", "", "project name")
	pmReader.register(projectSetDataCmd, 0)
}
