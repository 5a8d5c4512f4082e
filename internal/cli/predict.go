package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"waterwise/internal/config"
	"waterwise/internal/models"
	"waterwise/internal/pipeline"
	"waterwise/internal/predictor"
	"waterwise/internal/validation"
)

// newPredictor is swapped in tests.
var newPredictor = func(cfg predictor.Config) pipeline.Predictor {
	return predictor.New(cfg)
}

func newPredictCommand() *cobra.Command {
	var configPath string
	values := make([]string, len(models.PredictionFields))

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run the external model once and print its JSON result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			sub := models.Submission{}
			for i, f := range models.PredictionFields {
				sub[f.Key] = values[i]
			}
			req, err := validation.Validate(sub)
			if err != nil {
				return err
			}

			result, err := newPredictor(predictorConfig(cfg.Predictor)).Predict(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	for i, f := range models.PredictionFields {
		cmd.Flags().StringVar(&values[i], flagName(f.Key), "", fmt.Sprintf("%s reading", f.Column))
	}

	return cmd
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
