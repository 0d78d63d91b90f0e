package utils

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"fairgp/fairness"
	"fairgp/gp"
	"fairgp/tensor"
)

func TestTensorToWeightData(t *testing.T) {
	ten := tensor.New(2, 3)
	for i := range ten.Data {
		ten.Data[i] = float64(i) * 0.5
	}

	wd := TensorToWeightData("test_weight", ten)

	if wd.Name != "test_weight" {
		t.Errorf("Name = %s, want test_weight", wd.Name)
	}
	if len(wd.Shape) != 2 || wd.Shape[0] != 2 || wd.Shape[1] != 3 {
		t.Errorf("Shape = %v, want [2, 3]", wd.Shape)
	}
	ten.Data[0] = 42
	if wd.Data[0] != 0 {
		t.Errorf("weight data aliases the tensor")
	}

	back, err := WeightDataToTensor(wd)
	if err != nil {
		t.Fatalf("WeightDataToTensor: %v", err)
	}
	if back.At(1, 2) != 2.5 {
		t.Errorf("At(1, 2) = %v, want 2.5", back.At(1, 2))
	}
}

func TestWeightDataToTensorShapeMismatch(t *testing.T) {
	if _, err := WeightDataToTensor(&WeightData{Name: "bad", Shape: []int{2, 2}, Data: []float64{1, 2, 3}}); err == nil {
		t.Error("expected an error for 3 values in a 2x2 shape")
	}
}

func TestDebiasToWeightData(t *testing.T) {
	wd := DebiasToWeightData(fairness.NewZeroTensor(3))
	if len(wd.Shape) != 3 || wd.Shape[0] != 2 || wd.Shape[1] != 3 || wd.Shape[2] != 2 {
		t.Errorf("Shape = %v, want [2, 3, 2]", wd.Shape)
	}
	if len(wd.Data) != 12 {
		t.Errorf("Data length = %d, want 12", len(wd.Data))
	}
}

func TestDebiasWeightDataRoundTrip(t *testing.T) {
	rates := &fairness.BaseRateTable{Groups: []fairness.Stratum{{Count: 10, Positives: 2}, {Count: 10, Positives: 7}}}
	d, err := fairness.DemographicParity{TargetRate: 0.5}.Params(rates)
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	back, err := WeightDataToDebias(DebiasToWeightData(d))
	if err != nil {
		t.Fatalf("WeightDataToDebias: %v", err)
	}
	if back.At(1, 0, 1) != d.At(1, 0, 1) || back.At(0, 1, 0) != d.At(0, 1, 0) {
		t.Errorf("restored tensor %v, want %v", back.Values(), d.Values())
	}
	if _, err := WeightDataToDebias(&WeightData{Shape: []int{2, 2}, Data: make([]float64, 4)}); err == nil {
		t.Error("expected an error for a two-axis tensor")
	}
}

func TestSaveLoadWeights(t *testing.T) {
	params := []*gp.Param{gp.NewParam("logreg_kernel", 0.5, -1.5), gp.NewParam("logreg_bias", 0.25)}
	weights := &ModelWeights{
		Version:   "1.0",
		RunID:     NewRunID(),
		Model:     "local",
		Inference: "fair_logreg",
		Params:    ParamsToWeights(params),
		Debias:    DebiasToWeightData(fairness.NewZeroTensor(2)),
	}
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := SaveWeights(path, weights); err != nil {
		t.Fatalf("SaveWeights: %v", err)
	}
	loaded, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if loaded.RunID != weights.RunID || loaded.Inference != "fair_logreg" {
		t.Errorf("loaded header = %+v", loaded)
	}
	if loaded.Debias == nil || len(loaded.Debias.Data) != 8 {
		t.Errorf("debias tensor was not restored: %+v", loaded.Debias)
	}

	fresh := []*gp.Param{gp.NewParam("logreg_kernel", 0, 0), gp.NewParam("logreg_bias", 0)}
	if err := RestoreParams(fresh, loaded.Params); err != nil {
		t.Fatalf("RestoreParams: %v", err)
	}
	if fresh[0].Value[1] != -1.5 || fresh[1].Value[0] != 0.25 {
		t.Errorf("restored values = %v %v", fresh[0].Value, fresh[1].Value)
	}
}

func TestRestoreParamsErrors(t *testing.T) {
	saved := []*WeightData{{Name: "logreg_kernel", Shape: []int{2}, Data: []float64{1, 2}}}
	if err := RestoreParams([]*gp.Param{gp.NewParam("logreg_bias", 0)}, saved); err == nil {
		t.Error("expected an error for a missing parameter")
	}
	if err := RestoreParams([]*gp.Param{gp.NewParam("logreg_kernel", 0, 0, 0)}, saved); err == nil {
		t.Error("expected an error for a length mismatch")
	}
}

func TestLoadWeightsErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadWeights(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"run_id": "not-a-uuid"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWeights(bad); err == nil {
		t.Error("expected an error for a malformed run id")
	}
}

func TestSavePredictions(t *testing.T) {
	mean := mat.NewDense(2, 1, []float64{0.2, 0.9})
	variance := mat.NewDense(2, 1, []float64{0.1, 0.3})
	p := NewPredictions("run", mean, variance, nil, []int{0, 1})
	if p.Adjusted != nil {
		t.Errorf("Adjusted = %v, want nil", p.Adjusted)
	}
	if p.Mean[1] != 0.9 || p.Variance[0] != 0.1 {
		t.Errorf("predictions = %+v", p)
	}
	path := filepath.Join(t.TempDir(), "preds.json")
	if err := SavePredictions(path, p); err != nil {
		t.Fatalf("SavePredictions: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("predictions file not written: %v", err)
	}
}
