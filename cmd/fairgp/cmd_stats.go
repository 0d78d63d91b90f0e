package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fairgp/fairness"
)

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print per-group base rates and the demographic parity debiasing tensor",
		RunE:  a.runStats,
	}
}

func (a *app) runStats(cmd *cobra.Command, _ []string) error {
	ds, err := a.loadDataset()
	if err != nil {
		return err
	}
	samples, err := ds.Train.Samples()
	if err != nil {
		return err
	}
	rates, err := fairness.CollectRates(samples, ds.NumGroups)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "group  count  positives  base_rate")
	for g, st := range rates.Groups {
		fmt.Fprintf(w, "%5d  %5d  %9d  %9.4f\n", g, st.Count, st.Positives, rates.BaseRate(g))
	}

	src := a.cfg.Source(a.logger)
	if src == nil {
		return nil
	}
	if src.NeedsPredictions() {
		fmt.Fprintf(w, "\n%s needs predictions of a trained baseline; run train to see its tensor\n", src.Name())
		return nil
	}
	t, err := src.Params(rates)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s debiasing tensor ld[y, s, yhat]\n", src.Name())
	for y := 0; y < 2; y++ {
		for s := 0; s < t.NumGroups(); s++ {
			fmt.Fprintf(w, "y=%d s=%d  %+.4f  %+.4f\n", y, s, t.At(y, s, 0), t.At(y, s, 1))
		}
	}
	return nil
}
