package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/variantly/variantly/internal/config"
	"github.com/variantly/variantly/internal/engine"
	"github.com/variantly/variantly/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		file     string
		template string
		activate bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new experiment",
		Long: `Create a new experiment from a YAML definition, a reference template,
or interactively.

The definition is validated before anything is written: variant weights must
sum to 100, at least one variant must be the control, and exactly one metric
must be primary.

Examples:
  variantly create --file onboarding.yaml
  variantly create --template content --activate
  variantly create`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && template != "" {
				return fmt.Errorf("use --file OR --template, not both")
			}

			var exp *store.Experiment
			var err error

			switch {
			case file != "":
				exp, err = config.Load(file)
			case template != "":
				var data []byte
				data, err = config.Template(template)
				if err == nil {
					exp, err = config.Parse(data)
				}
			default:
				exp, err = promptExperiment()
			}
			if err != nil {
				return err
			}

			if activate {
				exp.Status = store.StatusActive
			}

			return withStore(func(s *store.SQLiteStore) error {
				eng := engine.New(s, nil)

				if err := eng.CreateExperiment(context.Background(), exp); err != nil {
					var verr *config.ValidationError
					if errors.As(err, &verr) {
						fmt.Println("Experiment rejected:")
						for _, msg := range verr.Errors {
							fmt.Printf("  - %s\n", msg)
						}
						return fmt.Errorf("validation failed")
					}
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (%s) with %d variants:\n", exp.Name, exp.ID, len(exp.Variants))
				for _, v := range exp.Variants {
					marker := ""
					if v.IsControl {
						marker = " (control)"
					}
					fmt.Printf("  %s: %.0f%%%s\n", v.Name, v.Weight, marker)
				}
				fmt.Printf("Status: %s\n", strings.ToUpper(string(exp.Status)))
				if exp.Status != store.StatusActive {
					fmt.Printf("\nActivate it with: variantly status %s active\n", exp.ID)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML experiment definition")
	cmd.Flags().StringVarP(&template, "template", "t", "", fmt.Sprintf("reference template (%s)", strings.Join(config.TemplateNames(), ", ")))
	cmd.Flags().BoolVar(&activate, "activate", false, "activate the experiment immediately")

	return cmd
}

// promptExperiment builds a simple two-plus-variant experiment interactively.
func promptExperiment() (*store.Experiment, error) {
	name, err := (&promptui.Prompt{
		Label: "Experiment name",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("name required")
			}
			return nil
		},
	}).Run()
	if err != nil {
		return nil, err
	}

	variantsInput, err := (&promptui.Prompt{
		Label:   "Variant names (comma-separated, first is control)",
		Default: "control,challenger",
	}).Run()
	if err != nil {
		return nil, err
	}

	names := strings.Split(variantsInput, ",")
	if len(names) < 2 {
		return nil, fmt.Errorf("need at least 2 variants")
	}

	eventType, err := (&promptui.Prompt{
		Label:   "Conversion event type",
		Default: "onboarding_completed",
	}).Run()
	if err != nil {
		return nil, err
	}

	exp := &store.Experiment{Name: strings.TrimSpace(name)}

	// Equal weights; remainder goes to the control so the sum stays 100.
	weight := float64(int(100 / len(names)))
	remainder := 100 - weight*float64(len(names))
	for i, n := range names {
		v := store.Variant{
			Name:      strings.TrimSpace(n),
			Weight:    weight,
			IsControl: i == 0,
		}
		if i == 0 {
			v.Weight += remainder
		}
		exp.Variants = append(exp.Variants, v)
	}

	exp.Metrics = []store.Metric{{
		Name:      "conversion_rate",
		Type:      store.MetricConversion,
		EventType: strings.TrimSpace(eventType),
		IsPrimary: true,
		Goal:      store.GoalIncrease,
	}}

	return exp, nil
}
