package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the stages of a run
type TimingStats struct {
	TotalTime       time.Duration
	DataLoadingTime time.Duration
	StatisticsTime  time.Duration
	AssemblyTime    time.Duration
	BaselineTime    time.Duration
	GradientTime    time.Duration
	UpdateTime      time.Duration
	EvaluationTime  time.Duration
	PredictionTime  time.Duration
	PostProcessTime time.Duration
}

// Add accumulates other into s.
func (s *TimingStats) Add(other TimingStats) {
	s.TotalTime += other.TotalTime
	s.DataLoadingTime += other.DataLoadingTime
	s.StatisticsTime += other.StatisticsTime
	s.AssemblyTime += other.AssemblyTime
	s.BaselineTime += other.BaselineTime
	s.GradientTime += other.GradientTime
	s.UpdateTime += other.UpdateTime
	s.EvaluationTime += other.EvaluationTime
	s.PredictionTime += other.PredictionTime
	s.PostProcessTime += other.PostProcessTime
}

func share(part, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, steps int) {
	if !Verbose {
		return
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Steps completed: %d\n", steps)
	if steps > 0 {
		fmt.Fprintf(Output, "Average time per step: %v\n", (stats.GradientTime+stats.UpdateTime)/time.Duration(steps))
	}
	fmt.Fprintln(Output, "\nBreakdown by stage:")
	for _, row := range []struct {
		name string
		d    time.Duration
	}{
		{"Data loading", stats.DataLoadingTime},
		{"Base rate statistics", stats.StatisticsTime},
		{"Model assembly", stats.AssemblyTime},
		{"Baseline for odds", stats.BaselineTime},
		{"Gradients", stats.GradientTime},
		{"Parameter updates", stats.UpdateTime},
		{"Evaluation", stats.EvaluationTime},
		{"Prediction", stats.PredictionTime},
		{"Post-processing", stats.PostProcessTime},
	} {
		fmt.Fprintf(Output, "  %s: %v (%.1f%%)\n", row.name, row.d, share(row.d, stats.TotalTime))
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
