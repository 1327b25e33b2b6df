package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so invocations don't leak
// values or Changed state into each other.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func execCmd(args ...string) error {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	oldHome := os.Getenv("HOME")
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })
	os.Setenv("HOME", home)
	return home
}

// writeSleepCSV writes a small dataset where the disorder follows from
// sleep duration and BMI category.
func writeSleepCSV(t *testing.T, dir string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Person ID,Gender,Age,Sleep Duration,BMI Category,Sleep Disorder\n")
	for i := 0; i < n; i++ {
		gender := "Male"
		if i%2 == 1 {
			gender = "Female"
		}
		var dur float64
		var bmi, disorder string
		switch i % 3 {
		case 0:
			dur, bmi, disorder = 7.5+float64(i%5)*0.1, "Normal", "None"
		case 1:
			dur, bmi, disorder = 5.8+float64(i%4)*0.1, "Obese", "Sleep Apnea"
		default:
			dur, bmi, disorder = 6.2+float64(i%4)*0.1, "Overweight", "Insomnia"
		}
		fmt.Fprintf(&b, "%d,%s,%d,%.1f,%s,%s\n", i+1, gender, 25+i%30, dur, bmi, disorder)
	}
	path := filepath.Join(dir, "sleep.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestCLI_Init_Prepare_Train_Evaluate_Predict(t *testing.T) {
	// Use a temp HOME to isolate config and projects
	home := setHome(t)
	data := writeSleepCSV(t, home, 60)

	runCmd(t, "init", "sleep", "-d", "integration test", "--data", data)
	runCmd(t, "analyze", "-p", "sleep", "--quiet")
	runCmd(t, "prepare", "-p", "sleep", "--exclude", "Person ID", "--seed", "1", "--split", "75")
	runCmd(t, "train", "-p", "sleep", "--arch", "8", "--epochs", "3", "--seed", "1", "--quiet")

	report := filepath.Join(home, "eval.md")
	runCmd(t, "evaluate", "-p", "sleep", "-o", report, "--examples", "5")
	runCmd(t, "predict", "-p", "sleep", "--set", "Gender=Male", "--set", "Age=30",
		"--set", "Sleep Duration=5.9", "--set", "BMI Category=Obese")
	runCmd(t, "predict", "-p", "sleep", "--form")
	runCmd(t, "list", "-p", "sleep")
	runCmd(t, "list")

	projDir, err := resolveProjectDirByName("sleep")
	if err != nil {
		t.Fatalf("resolve project: %v", err)
	}
	for _, f := range []string{"project.json", "model.json", filepath.Join("dataset_summaries", "sleep.summary.md")} {
		if _, err := os.Stat(filepath.Join(projDir, f)); err != nil {
			t.Fatalf("missing %s: %v", f, err)
		}
	}
	preps, err := os.ReadDir(filepath.Join(projDir, "preparations"))
	if err != nil || len(preps) != 1 {
		t.Fatalf("want one preparation, got %d (%v)", len(preps), err)
	}

	body, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	for _, want := range []string{"[CONFUSION MATRIX]", "| true \\ pred |", "Test rows: 15"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("report missing %q:\n%s", want, body)
		}
	}
}

func TestCLI_ErrorsBeforeTraining(t *testing.T) {
	home := setHome(t)
	data := writeSleepCSV(t, home, 12)

	runCmd(t, "init", "early", "--data", data)
	if err := execCmd("train", "-p", "early"); err == nil {
		t.Fatalf("expected train to fail without a preparation")
	}
	if err := execCmd("predict", "-p", "early", "--set", "Age=30"); err == nil {
		t.Fatalf("expected predict to fail without a model")
	}
	if err := execCmd("prepare", "-p", "early", "--target", "Nope"); err == nil {
		t.Fatalf("expected prepare to reject an unknown target")
	}
	if err := execCmd("prepare", "-p", "early", "--class-weight", "sometimes"); err == nil {
		t.Fatalf("expected prepare to reject an unknown class weight mode")
	}
	if err := execCmd("init", "early", "--data", data); err == nil {
		t.Fatalf("expected init to refuse an existing project")
	}
}

func TestCLI_PredictRejectsUnknownColumn(t *testing.T) {
	home := setHome(t)
	data := writeSleepCSV(t, home, 30)

	runCmd(t, "init", "cols", "--data", data)
	runCmd(t, "prepare", "-p", "cols", "--exclude", "Person ID", "--seed", "2")
	runCmd(t, "train", "-p", "cols", "--arch", "4", "--epochs", "1", "--seed", "2", "--quiet")
	if err := execCmd("predict", "-p", "cols", "--set", "Person ID=1"); err == nil {
		t.Fatalf("expected excluded column to be rejected")
	}
	if err := execCmd("predict", "-p", "cols", "--set", "Age"); err == nil {
		t.Fatalf("expected malformed --set to be rejected")
	}
}

func TestAnalyze_AttachAndSuppressSamples(t *testing.T) {
	home := setHome(t)

	// Prepare two CSV files with the same basename in different directories
	d1 := filepath.Join(home, "d1")
	d2 := filepath.Join(home, "d2")
	if err := os.MkdirAll(d1, 0o755); err != nil {
		t.Fatalf("mkdir d1: %v", err)
	}
	if err := os.MkdirAll(d2, 0o755); err != nil {
		t.Fatalf("mkdir d2: %v", err)
	}
	csv := "col1,col2\nA,1\nB,2\nC,3\n"
	for _, d := range []string{d1, d2} {
		if err := os.WriteFile(filepath.Join(d, "metrics.csv"), []byte(csv), 0o644); err != nil {
			t.Fatalf("write csv: %v", err)
		}
	}

	runCmd(t, "init", "batchp", "-d", "batch project")
	runCmd(t, "analyze", filepath.Join(home, "d*", "metrics.csv"), "-p", "batchp", "--sample-rows", "0")

	// Verify files written under dataset_summaries with collision suffix
	projDir, err := resolveProjectDirByName("batchp")
	if err != nil {
		t.Fatalf("resolve project: %v", err)
	}
	dsDir := filepath.Join(projDir, "dataset_summaries")
	for _, name := range []string{"metrics.summary.md", "metrics__2.summary.md"} {
		body, err := os.ReadFile(filepath.Join(dsDir, name))
		if err != nil {
			t.Fatalf("missing summary %s: %v", name, err)
		}
		if strings.Contains(string(body), "[HEAD AND SAMPLE ROWS]") {
			t.Fatalf("expected no sample rows in %s", name)
		}
		if !strings.Contains(string(body), "- col2: numeric") {
			t.Fatalf("expected col2 to be numeric in %s:\n%s", name, body)
		}
	}
}

func TestAnalyze_SchemaOnlyToFile(t *testing.T) {
	home := setHome(t)
	data := writeSleepCSV(t, home, 9)
	out := filepath.Join(home, "schema.md")

	runCmd(t, "analyze", data, "--schema-only", "-o", out)
	body, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(body), "[SCHEMA]") || strings.Contains(string(body), "[DATASET SUMMARY]") {
		t.Fatalf("unexpected schema output:\n%s", body)
	}
	if err := execCmd("analyze", filepath.Join(home, "nope-*.csv")); err == nil {
		t.Fatalf("expected error for unmatched pattern")
	}
}

func TestConfig_SetAndShow(t *testing.T) {
	home := setHome(t)
	runCmd(t, "config", "set", "epochs", "7")
	runCmd(t, "config", "show")
	if err := execCmd("config", "set", "class_weight", "sometimes"); err == nil {
		t.Fatalf("expected invalid class_weight to be rejected")
	}
	b, err := os.ReadFile(filepath.Join(home, ".tabula", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(b), "epochs: 7") {
		t.Fatalf("config not saved:\n%s", b)
	}
}

func TestProject_UseAndSetData(t *testing.T) {
	home := setHome(t)
	data := writeSleepCSV(t, home, 20)

	runCmd(t, "init", "swap", "--data", data)
	runCmd(t, "prepare", "-p", "swap", "--seed", "1")
	runCmd(t, "prepare", "-p", "swap", "--seed", "2")

	projDir, err := resolveProjectDirByName("swap")
	if err != nil {
		t.Fatal(err)
	}
	p, err := project.LoadProject(projDir)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := p.PreparationIDs()
	if err != nil || len(ids) != 2 {
		t.Fatalf("want two preparations, got %v (%v)", ids, err)
	}
	other := ids[0]
	if other == p.Active {
		other = ids[1]
	}
	runCmd(t, "project", "use", shortID(other), "-p", "swap")
	if p, err = project.LoadProject(projDir); err != nil || p.Active != other {
		t.Fatalf("active = %s, want %s (%v)", p.Active, other, err)
	}
	if err := execCmd("project", "use", "ffffffff", "-p", "swap"); err == nil {
		t.Fatalf("expected unknown preparation to be rejected")
	}

	bigger := writeSleepCSV(t, t.TempDir(), 24)
	runCmd(t, "project", "set-data", bigger, "-p", "swap")
	// the saved partition no longer fits the data
	if err := execCmd("train", "-p", "swap", "--epochs", "1", "--quiet"); err == nil {
		t.Fatalf("expected train to refuse a preparation from another dataset")
	}
}

func TestRoot_HTTPTimeoutFlagOverridesConfig(t *testing.T) {
	setHome(t)
	runCmd(t, "config", "show", "--http-timeout", "7")
	if got := httpTimeoutSec(); got != 7 {
		t.Fatalf("http timeout = %d, want 7", got)
	}
	runCmd(t, "config", "show")
	if got := httpTimeoutSec(); got != 60 {
		t.Fatalf("http timeout = %d, want the config default 60", got)
	}
}

func TestAnalyze_ProjectDatasetHonorsReaderFlags(t *testing.T) {
	home := setHome(t)
	data := writeSleepCSV(t, home, 12)

	runCmd(t, "init", "rows", "--data", data, "--max-rows", "5")
	// stored reader settings apply when no reader flag is given
	runCmd(t, "analyze", "-p", "rows", "--quiet")
	// an explicit flag replaces them for this run
	runCmd(t, "analyze", "-p", "rows", "--quiet", "--max-rows", "3")

	projDir, err := resolveProjectDirByName("rows")
	if err != nil {
		t.Fatalf("resolve project: %v", err)
	}
	dsDir := filepath.Join(projDir, "dataset_summaries")
	for name, want := range map[string]string{"sleep.summary.md": "Rows: 5\n", "sleep__2.summary.md": "Rows: 3\n"} {
		body, err := os.ReadFile(filepath.Join(dsDir, name))
		if err != nil {
			t.Fatalf("missing summary %s: %v", name, err)
		}
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in %s:\n%s", want, name, body)
		}
	}
}

func TestAnalyze_LocaleNumbersNeedExplicitSeparators(t *testing.T) {
	home := setHome(t)
	path := filepath.Join(home, "prices.csv")
	csv := "item;amount\nA;1.234,5\nB;2.000,25\nC;15,75\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	plain := filepath.Join(home, "plain.md")
	local := filepath.Join(home, "local.md")

	runCmd(t, "analyze", path, "--delimiter", ";", "--schema-only", "-o", plain)
	runCmd(t, "analyze", path, "--delimiter", ";", "--decimal", "comma", "--thousands", ".", "--schema-only", "-o", local)

	for out, want := range map[string]string{plain: "- amount: categorical", local: "- amount: numeric"} {
		body, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in %s:\n%s", want, out, body)
		}
	}
	if usage := analyzeCmd.Flags().Lookup("decimal").Usage; strings.Contains(usage, "auto-detect") {
		t.Fatalf("--decimal help promises detection the reader does not do: %s", usage)
	}
}
