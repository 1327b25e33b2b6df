package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	initDescription string
	initData        string
	initNoCheck     bool
	initReader      readerFlags
)

var initCmd = &cobra.Command{
	Use:   "init <project-name>",
	Short: "Initialize a new tabula project bound to a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		root, err := defaultProjectsDir()
		if err != nil {
			return err
		}
		projDir := filepath.Join(root, name)
		// Refuse to overwrite an existing project.
		if info, err := os.Stat(projDir); err == nil && info.IsDir() {
			projectFile := filepath.Join(projDir, "project.json")
			if _, err := os.Stat(projectFile); err == nil {
				return fmt.Errorf("project already exists at %s", projDir)
			}
			entries, err := os.ReadDir(projDir)
			if err != nil {
				return fmt.Errorf("inspect project directory: %w", err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("directory %s already exists and is not empty; refusing to initialize project", projDir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat project directory: %w", err)
		}

		p := project.NewProject(name, initDescription, projDir)
		if initData != "" {
			src, err := initReader.source(initData)
			if err != nil {
				return err
			}
			if err := p.SetSource(src); err != nil {
				return err
			}
			if !initNoCheck {
				ctx, cancel := signalContext(cmd)
				defer cancel()
				tbl, err := p.LoadTable(ctx, httpTimeoutSec())
				if err != nil {
					return err
				}
				if len(tbl.Columns) == 0 {
					return fmt.Errorf("dataset %s has no columns", initData)
				}
				log.WithFields(logrus.Fields{"rows": tbl.Len(), "columns": len(tbl.Columns)}).Debug("dataset checked")
				fmt.Printf("✓ Loaded %d rows × %d columns from %s\n", tbl.Len(), len(tbl.Columns), tbl.Name)
			}
		}

		if err := utils.EnsureProjectDir(projDir); err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Project initialized: %s\n", projDir)
		if initData == "" {
			fmt.Fprintln(os.Stderr, "⚠ Warning: no dataset bound; re-run init with --data before prepare")
		}
		return nil
	},
}

func defaultProjectsDir() (string, error) {
	if cfg != nil && cfg.ProjectsDir != "" {
		dir := cfg.ProjectsDir
		if strings.HasPrefix(dir, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home dir: %w", err)
			}
			dir = strings.TrimPrefix(dir, "~")
			dir = strings.TrimPrefix(dir, string(os.PathSeparator))
			dir = strings.TrimPrefix(dir, "/")
			dir = filepath.Join(home, dir)
		}
		dir = filepath.Clean(dir)
		if err := utils.EnsureProjectDir(dir); err != nil {
			return "", err
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".tabula", "projects")
	if err := utils.EnsureProjectDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveProjectDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("project name is required")
	}
	root, err := defaultProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDescription, "desc", "d", "", "project description")
	initCmd.Flags().StringVar(&initData, "data", "", "dataset path or http(s) URL (CSV, TSV or XLSX)")
	initCmd.Flags().BoolVar(&initNoCheck, "no-check", false, "skip loading the dataset once to validate it")
	initReader.register(initCmd, 0)
}
