package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/spf13/cobra"
)

var listProjName string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, or the preparations of one project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listProjName == "" {
			return listAllProjects()
		}
		p, err := openProject(listProjName)
		if err != nil {
			return err
		}
		fmt.Printf("Project: %s\n", p.Name)
		if p.Source.Path != "" {
			fmt.Printf("Dataset: %s\n", p.Source.Path)
		}
		ids, err := p.PreparationIDs()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("(no preparations)")
		}
		for _, id := range ids {
			pr, err := p.LoadPreparation(id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "⚠ Warning: %s: %v\n", id, err)
				continue
			}
			mark := " "
			if id == p.Active {
				mark = "*"
			}
			fmt.Printf("%s %s  target=%s features=%d classes=%d train=%d test=%d  %s\n",
				mark, pr.ShortID(), pr.Target, len(pr.Features), len(pr.Labels),
				len(pr.TrainIndex), len(pr.TestIndex), pr.CreatedAt.Format("2006-01-02 15:04"))
		}
		if p.Model != nil {
			fmt.Printf("Model: %s on %s", p.Model.Summary, shortID(p.Model.PreparationID))
			if p.Model.Test != nil {
				fmt.Printf(", test accuracy %.2f%%", 100*p.Model.Test.Accuracy)
			}
			if p.Stale() {
				fmt.Print(" (stale)")
			}
			fmt.Println()
		}
		return nil
	},
}

func shortID(id string) string {
	return (&project.Preparation{ID: id}).ShortID()
}

func listAllProjects() error {
	root, err := defaultProjectsDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	found := false
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		p, err := project.LoadProject(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		status := "no preparation"
		switch {
		case p.Model != nil:
			status = "trained"
		case p.Active != "":
			status = "prepared"
		}
		fmt.Printf("- %s (%s)\n", e.Name(), status)
		found = true
	}
	if !found {
		fmt.Println("(no projects)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listProjName, "project", "p", "", "show preparations and model of this project")
}
