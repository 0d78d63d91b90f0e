package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/tensor"
)

// WeightData represents one serializable parameter block
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all parameters of a trained model
type ModelWeights struct {
	Version   string        `json:"version"`
	RunID     string        `json:"run_id"`
	Model     string        `json:"model"`
	Inference string        `json:"inference"`
	Created   time.Time     `json:"created"`
	Params    []*WeightData `json:"params"`
	// Debias holds the debiasing tensor shaped (2, groups, 2), if any.
	Debias *WeightData `json:"debias,omitempty"`
}

// NewRunID returns a fresh identifier for logs and exported files.
func NewRunID() string { return uuid.NewString() }

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
	}
	if _, err := uuid.Parse(weights.RunID); weights.RunID != "" && err != nil {
		return nil, fmt.Errorf("weights file has a malformed run id: %w", err)
	}
	return &weights, nil
}

// ParamsToWeights copies every parameter block.
func ParamsToWeights(params []*gp.Param) []*WeightData {
	out := make([]*WeightData, len(params))
	for i, p := range params {
		out[i] = &WeightData{Name: p.Name, Shape: []int{len(p.Value)}, Data: append([]float64{}, p.Value...)}
	}
	return out
}

// RestoreParams writes saved values back into params, matching by name.
func RestoreParams(params []*gp.Param, saved []*WeightData) error {
	byName := make(map[string]*WeightData, len(saved))
	for _, w := range saved {
		byName[w.Name] = w
	}
	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("weights file has no parameter %s", p.Name)
		}
		if len(w.Data) != len(p.Value) {
			return fmt.Errorf("parameter %s has %d values, file has %d", p.Name, len(p.Value), len(w.Data))
		}
		copy(p.Value, w.Data)
	}
	return nil
}

// TensorToWeightData converts a tensor to serializable weight data
func TensorToWeightData(name string, t *tensor.Tensor) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: t.Shape,
		Data:  append([]float64{}, t.Data...), // copy
	}
}

// WeightDataToTensor converts weight data back to a tensor
func WeightDataToTensor(wd *WeightData) (*tensor.Tensor, error) {
	return tensor.Reshape(tensor.NewWithData(append([]float64{}, wd.Data...)), wd.Shape...)
}

// DebiasToWeightData stores a debiasing tensor with shape (2, groups, 2).
func DebiasToWeightData(d *fairness.DebiasingTensor) *WeightData {
	t, err := tensor.Reshape(tensor.NewWithData(d.Values()), 2, d.NumGroups(), 2)
	if err != nil {
		panic(err) // Values always holds 4·groups entries
	}
	return TensorToWeightData("debias", t)
}

// WeightDataToDebias restores a tensor written by DebiasToWeightData.
func WeightDataToDebias(wd *WeightData) (*fairness.DebiasingTensor, error) {
	t, err := WeightDataToTensor(wd)
	if err != nil {
		return nil, err
	}
	if len(t.Shape) != 3 || t.Shape[0] != 2 || t.Shape[2] != 2 {
		return nil, fmt.Errorf("debias tensor has shape %v, want [2 groups 2]", t.Shape)
	}
	return fairness.TensorFromValues(t.Shape[1], t.Data)
}

// Predictions is the exported predictive distribution on the test split.
type Predictions struct {
	RunID    string    `json:"run_id"`
	Mean     []float64 `json:"pred_mean"`
	Variance []float64 `json:"pred_var"`
	// Adjusted holds post-processed probabilities, if any.
	Adjusted []float64 `json:"pred_adjusted,omitempty"`
	Groups   []int     `json:"groups"`
}

// NewPredictions flattens single-column prediction matrices.
func NewPredictions(runID string, mean, variance, adjusted *mat.Dense, groups []int) *Predictions {
	p := &Predictions{RunID: runID, Mean: mat.Col(nil, 0, mean), Variance: mat.Col(nil, 0, variance), Groups: groups}
	if adjusted != nil {
		p.Adjusted = mat.Col(nil, 0, adjusted)
	}
	return p
}

// SavePredictions writes predictions as JSON.
func SavePredictions(path string, p *Predictions) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
