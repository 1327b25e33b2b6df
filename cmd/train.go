package cmd

import (
	"fmt"
	"time"

	"github.com/KaramelBytes/tabula-cli/internal/classifier"
	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	trainProject     string
	trainPreparation string
	trainArch        string
	trainDropout     float64
	trainLR          float64
	trainEpochs      int
	trainBatch       int
	trainValSplit    float64
	trainSeed        int64
	trainNoWeights   bool
	trainQuiet       bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on the active preparation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(trainProject)
		if err != nil {
			return err
		}
		pr, err := p.LoadPreparation(trainPreparation)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		ds, err := rebuild(ctx, p, pr)
		if err != nil {
			return err
		}

		mc := classifierConfig(cmd)
		m, err := classifier.New(ds.InputDim, ds.NClasses, mc)
		if err != nil {
			return err
		}
		weights := pr.ClassWeights
		if trainNoWeights {
			weights = nil
		}
		fmt.Printf("Training %s on %s (%d params)\n", m, ds.Summary(), m.Params())

		start := time.Now()
		hist, err := m.Fit(ctx, ds.XTrain, ds.YTrain, weights, func(e classifier.Epoch) {
			log.WithFields(logrus.Fields{
				"epoch": e.Epoch, "loss": e.Loss, "acc": e.Accuracy,
				"val_loss": e.ValLoss, "val_acc": e.ValAccuracy,
			}).Debug("epoch done")
			if trainQuiet {
				return
			}
			line := fmt.Sprintf("Epoch %d/%d: loss=%.4f acc=%.3f", e.Epoch, mc.Epochs, e.Loss, e.Accuracy)
			if e.HasValidation {
				line += fmt.Sprintf(" val_loss=%.4f val_acc=%.3f", e.ValLoss, e.ValAccuracy)
			}
			fmt.Println(line)
		})
		if err != nil {
			return err
		}

		ref := project.ModelRef{PreparationID: pr.ID, Final: hist.Last()}
		if rows, _ := ds.XTest.Dims(); rows > 0 {
			loss, acc, err := m.Evaluate(ds.XTest, ds.YTest)
			if err != nil {
				return err
			}
			ref.Test = &project.TestResult{Loss: loss, Accuracy: acc, Rows: rows}
		}
		if err := p.SaveModel(m, ref); err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"project": p.Name, "elapsed": time.Since(start).Round(time.Millisecond)}).Info("model trained")

		fmt.Printf("✓ Model trained on preparation %s\n", pr.ShortID())
		if ref.Test != nil {
			fmt.Printf("  Test accuracy: %.2f%% (loss %.4f, %d rows)\n", 100*ref.Test.Accuracy, ref.Test.Loss, ref.Test.Rows)
		}
		return nil
	},
}

// classifierConfig layers flags over config over built-in defaults.
func classifierConfig(cmd *cobra.Command) classifier.Config {
	mc := classifier.DefaultConfig()
	// a config that failed to load leaves every field zero
	if cfg != nil && cfg.Arch != "" {
		mc.Arch = cfg.Arch
		mc.Dropout = cfg.Dropout
		mc.LearningRate = cfg.LearningRate
		mc.Epochs = cfg.Epochs
		mc.BatchSize = cfg.BatchSize
		mc.ValidationSplit = cfg.ValidationSplit
	}
	f := cmd.Flags()
	if f.Changed("arch") {
		mc.Arch = trainArch
	}
	if f.Changed("dropout") {
		mc.Dropout = trainDropout
	}
	if f.Changed("lr") {
		mc.LearningRate = trainLR
	}
	if f.Changed("epochs") {
		mc.Epochs = trainEpochs
	}
	if f.Changed("batch") {
		mc.BatchSize = trainBatch
	}
	if f.Changed("validation-split") {
		mc.ValidationSplit = trainValSplit
	}
	mc.Seed = trainSeed
	return mc
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVarP(&trainProject, "project", "p", "", "project name")
	trainCmd.Flags().StringVar(&trainPreparation, "prep", "", "preparation id or prefix (default: active)")
	trainCmd.Flags().StringVar(&trainArch, "arch", "128-64", "hidden layer widths, e.g. 128-64")
	trainCmd.Flags().Float64Var(&trainDropout, "dropout", 0.2, "dropout rate after each hidden layer")
	trainCmd.Flags().Float64Var(&trainLR, "lr", 1e-3, "Adam learning rate")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 25, "training epochs")
	trainCmd.Flags().IntVar(&trainBatch, "batch", 32, fmt.Sprintf("batch size (clamped to %d-%d)", classifier.MinBatch, classifier.MaxBatch))
	trainCmd.Flags().Float64Var(&trainValSplit, "validation-split", 0.1, "trailing fraction of training rows used for validation")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 0, "seed for weights, dropout and batch order (0 = random)")
	trainCmd.Flags().BoolVar(&trainNoWeights, "no-class-weights", false, "ignore the preparation's class weights")
	trainCmd.Flags().BoolVar(&trainQuiet, "quiet", false, "suppress per-epoch progress")
}
