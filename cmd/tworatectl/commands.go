package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tworate/internal/config"
	"tworate/internal/model"
	"tworate/internal/regress"
	"tworate/pkg/tworate"
)

type runSelector struct {
	runID  string
	latest bool
}

func (s *runSelector) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&s.latest, "latest", false, "use the most recent run from the run index")
}

func (s runSelector) validate() error {
	if s.runID != "" && s.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if s.runID == "" && !s.latest {
		return errors.New("requires --run-id or --latest")
	}
	return nil
}

type rangeFlags struct {
	min, max, step float64
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&r.min, "min", regress.DefaultRange.Min, "lowest bucket boundary")
	cmd.Flags().Float64Var(&r.max, "max", regress.DefaultRange.Max, "highest bucket boundary")
	cmd.Flags().Float64Var(&r.step, "step", regress.DefaultRange.Step, "bucket width")
}

// value returns nil unless a boundary flag was given.
func (r rangeFlags) value(cmd *cobra.Command) *regress.Range {
	f := cmd.Flags()
	if !f.Changed("min") && !f.Changed("max") && !f.Changed("step") {
		return nil
	}
	return &regress.Range{Min: r.min, Max: r.max, Step: r.step}
}

type calibrationFlags struct {
	path  string
	seed  int64
	years int
}

func (c *calibrationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.path, "calibration", "", "calibration file (yaml)")
	cmd.Flags().Int64Var(&c.seed, "seed", 0, "override the calibration seed")
	cmd.Flags().IntVar(&c.years, "years", 0, "override the calibration year count")
	_ = cmd.MarkFlagRequired("calibration")
}

func (c calibrationFlags) load(cmd *cobra.Command) (model.ConfigSpec, *int64, error) {
	spec, err := config.LoadCalibration(c.path)
	if err != nil {
		return model.ConfigSpec{}, nil, err
	}
	if !cmd.Flags().Changed("seed") {
		return spec, nil, nil
	}
	seed := c.seed
	return spec, &seed, nil
}

func (a *app) simulateCommand() *cobra.Command {
	var (
		cal   calibrationFlags
		runID string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a calibration and store its history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, seed, err := cal.load(cmd)
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				summary, err := client.Simulate(cmd.Context(), tworate.SimulateRequest{
					RunID:     runID,
					Config:    spec,
					Seed:      seed,
					YearCount: cal.years,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "simulated run_id=%s steps=%d countries=%d dir=%s\n",
					summary.RunID, summary.Steps, len(summary.Countries), summary.ArtifactsDir)
				return nil
			})
		},
	}
	cal.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (optional)")
	return cmd
}

func (a *app) lagSampleCommand() *cobra.Command {
	var (
		sel       runSelector
		lagMonths int
		features  []string
		countries []string
	)
	cmd := &cobra.Command{
		Use:   "lag-sample",
		Short: "Pair each feature with its value lag months later",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.validate(); err != nil {
				return err
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				summary, err := client.LagSample(cmd.Context(), tworate.LagSampleRequest{
					RunID:     sel.runID,
					Latest:    sel.latest,
					LagMonths: lagMonths,
					Features:  features,
					Countries: countries,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "lag sample run_id=%s lag=%s rows=%d path=%s\n",
					summary.RunID, summary.Sample.LagLabel, len(summary.Sample.Rows), summary.Path)
				return nil
			})
		},
	}
	sel.register(cmd)
	cmd.Flags().IntVar(&lagMonths, "lag", tworate.DefaultLagMonths, "lag in months")
	cmd.Flags().StringSliceVar(&features, "features", model.Features, "features to sample")
	cmd.Flags().StringSliceVar(&countries, "countries", nil, "countries to sample (default all)")
	return cmd
}

func (a *app) regressCommand() *cobra.Command {
	var (
		sel       runSelector
		rng       rangeFlags
		lagMonths int
		xColumn   string
		yColumn   string
		countries []string
		title     string
	)
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "Bucket a lag sample scatter and summarise each bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.validate(); err != nil {
				return err
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				summary, err := client.Regress(cmd.Context(), tworate.RegressRequest{
					RunID:     sel.runID,
					Latest:    sel.latest,
					LagMonths: lagMonths,
					XColumn:   xColumn,
					YColumn:   yColumn,
					Countries: countries,
					Range:     rng.value(cmd),
					Title:     title,
				})
				if err != nil {
					return err
				}
				printRegression(cmd, summary)
				return nil
			})
		},
	}
	sel.register(cmd)
	rng.register(cmd)
	cmd.Flags().IntVar(&lagMonths, "lag", tworate.DefaultLagMonths, "lag of the sample in months")
	cmd.Flags().StringVar(&xColumn, "x", "", "x column, e.g. short_rate(t)")
	cmd.Flags().StringVar(&yColumn, "y", "", "y column, e.g. short_rate(t+5y)")
	cmd.Flags().StringSliceVar(&countries, "countries", nil, "countries to include (default all)")
	cmd.Flags().StringVar(&title, "title", "", "regression title (default \"<x> vs <y>\")")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")
	return cmd
}

func (a *app) pipelineCommand() *cobra.Command {
	var (
		cal       calibrationFlags
		rng       rangeFlags
		runID     string
		lagMonths int
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Simulate, sample and regress in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, seed, err := cal.load(cmd)
			if err != nil {
				return err
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				summary, err := client.Pipeline(cmd.Context(), tworate.PipelineRequest{
					RunID:     runID,
					Config:    spec,
					Seed:      seed,
					YearCount: cal.years,
					LagMonths: lagMonths,
					Range:     rng.value(cmd),
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "simulated run_id=%s steps=%d countries=%d dir=%s\n",
					summary.Simulation.RunID, summary.Simulation.Steps, len(summary.Simulation.Countries), summary.Simulation.ArtifactsDir)
				fmt.Fprintf(out, "lag sample lag=%s rows=%d path=%s\n",
					summary.Sample.Sample.LagLabel, len(summary.Sample.Sample.Rows), summary.Sample.Path)
				for _, reg := range summary.Regressions {
					printRegression(cmd, reg)
				}
				return nil
			})
		},
	}
	cal.register(cmd)
	rng.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (optional)")
	cmd.Flags().IntVar(&lagMonths, "lag", tworate.DefaultLagMonths, "lag in months")
	return cmd
}

func (a *app) runsCommand() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				items, err := client.Runs(cmd.Context(), tworate.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					type runsItem struct {
						RunID        string `json:"run_id"`
						CreatedAtUTC string `json:"created_at_utc"`
						CountryCount int    `json:"country_count"`
						YearCount    int    `json:"year_count"`
						Seed         int64  `json:"seed"`
						ShortTarget  string `json:"short_target"`
						Steps        int    `json:"steps"`
					}
					payload := make([]runsItem, 0, len(items))
					for _, item := range items {
						payload = append(payload, runsItem(item))
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(payload)
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "no runs found")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "run_id=%s created_at=%s countries=%d years=%d seed=%d short_target=%s steps=%d\n",
						item.RunID, item.CreatedAtUTC, item.CountryCount, item.YearCount, item.Seed, item.ShortTarget, item.Steps)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	var (
		sel    runSelector
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to the exports directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sel.validate(); err != nil {
				return err
			}
			return a.withClient(cmd, func(client *tworate.Client) error {
				summary, err := client.Export(cmd.Context(), tworate.ExportRequest{
					RunID:  sel.runID,
					Latest: sel.latest,
					OutDir: outDir,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
				return nil
			})
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "export output directory (default: exports dir setting)")
	return cmd
}

func printRegression(cmd *cobra.Command, summary tworate.RegressSummary) {
	out := cmd.OutOrStdout()
	reg := summary.Regression
	fmt.Fprintf(out, "regression run_id=%s title=%q x=%s y=%s points=%d buckets=%d path=%s\n",
		summary.RunID, reg.Title, reg.XColumn, reg.YColumn, len(reg.Result.Points), len(reg.Result.Buckets), summary.Path)
	for _, b := range reg.Result.Buckets {
		fmt.Fprintf(out, "  [%.4f, %.4f) n=%d mean_x=%.6f mean_y=%.6f std_y=%.6f\n",
			b.Low, b.High, len(b.Points), b.MeanX, b.MeanY, b.StdY)
	}
}
