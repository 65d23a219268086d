package swebench

import (
	"encoding/json"
	"fmt"
	"os"
)

// Prediction is one entry in the preds.json consumed by the SWE-bench
// evaluation harness.
type Prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}

// WritePredictions emits preds.json keyed by instance ID. Instances without
// a submitted patch get an empty model_patch so the harness counts them as
// unresolved rather than missing.
func WritePredictions(path, model string, results []InstanceResult) error {
	preds := make(map[string]Prediction, len(results))
	for _, result := range results {
		preds[result.InstanceID] = Prediction{
			InstanceID:      result.InstanceID,
			ModelNameOrPath: model,
			ModelPatch:      result.Patch,
		}
	}
	data, err := json.MarshalIndent(preds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}
