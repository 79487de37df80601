package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/trainboard/internal/dashboard"
	"github.com/kiranshivaraju/trainboard/internal/lifecycle"
	"github.com/kiranshivaraju/trainboard/internal/view"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	"github.com/spf13/cobra"
)

// ErrTrainingFailed is returned by "models train --wait" when the run ends failed.
var ErrTrainingFailed = errors.New("training failed")

// refresh loads the dashboard. Mutations need a snapshot for their
// preconditions, so a failed first load is fatal.
func (a *app) refresh(ctx context.Context) error {
	if err := a.store.Refresh(ctx); err != nil && a.store.Snapshot() == nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	return nil
}

func (a *app) show(ctx context.Context, tab view.Tab) error {
	if err := a.refresh(ctx); err != nil {
		return err
	}
	return a.out.page(view.Build(tab, a.store.State(), a.ctrl))
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}

// ─── overview ────────────────────────────────────────────────────────────────

func newOverviewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show dashboard stats and recent models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.show(cmd.Context(), view.TabOverview)
		},
	}
}

// ─── datasets ────────────────────────────────────────────────────────────────

func newDatasetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"dataset", "ds"},
		Short:   "List and upload datasets",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List uploaded datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.show(cmd.Context(), view.TabDatasets)
		},
	}

	var name string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a csv, json or txt dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}
			if name == "" {
				base := filepath.Base(path)
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}

			ds, err := a.ctrl.UploadDataset(cmd.Context(), lifecycle.File{
				Name:    filepath.Base(path),
				Size:    info.Size(),
				Content: f,
			}, name)
			if err != nil {
				return err
			}
			return a.out.dataset(ds)
		},
	}
	upload.Flags().StringVar(&name, "name", "", "dataset name (default: file name without extension)")

	cmd.AddCommand(list, upload)
	return cmd
}

// ─── models ──────────────────────────────────────────────────────────────────

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "Train, test and deploy models",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.show(cmd.Context(), view.TabModels)
		},
	}

	cmd.AddCommand(list, newTrainCmd(a), newTestCmd(a), newDeployCmd(a))
	return cmd
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		datasetArg string
		name       string
		prompt     string
		wait       bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new model on a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			datasetID, err := parseID("dataset", datasetArg)
			if err != nil {
				return err
			}
			if wait && interval <= 0 {
				return fmt.Errorf("invalid --interval %s: must be positive", interval)
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}

			m, err := a.ctrl.TrainModel(ctx, datasetID, name, prompt)
			if err != nil {
				return err
			}
			if !wait {
				return a.out.model(m)
			}

			snap, err := a.store.WaitFor(ctx, interval, func(s *dashboard.Snapshot) bool {
				cur, ok := s.Model(m.ID)
				return ok && cur.Status.Terminal()
			})
			if err != nil {
				return fmt.Errorf("waiting for model %s: %w", m.ID, err)
			}
			final, _ := snap.Model(m.ID)
			if err := a.out.model(&final); err != nil {
				return err
			}
			if final.Status == models.ModelStatusFailed {
				return ErrTrainingFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&datasetArg, "dataset", "", "id of the dataset to train on")
	f.StringVar(&name, "name", "", "model name")
	f.StringVar(&prompt, "prompt", "", "custom system prompt")
	f.BoolVar(&wait, "wait", false, "poll until training completes or fails")
	f.DurationVar(&interval, "interval", 2*time.Second, "poll interval for --wait")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func newTestCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "test <model-id>",
		Short: "Run one inference against a completed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			modelID, err := parseID("model", args[0])
			if err != nil {
				return err
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}

			res, err := a.ctrl.TestModel(ctx, modelID, input)
			if err != nil {
				return err
			}
			return a.out.testResult(res)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input text")
	return cmd
}

func newDeployCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <model-id>",
		Short: "Deploy a completed model behind a prediction endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			modelID, err := parseID("model", args[0])
			if err != nil {
				return err
			}
			if err := a.refresh(ctx); err != nil {
				return err
			}

			d, err := a.ctrl.DeployModel(ctx, modelID)
			if err != nil {
				return err
			}
			return a.out.deployment(d)
		},
	}
}

// ─── deployments ─────────────────────────────────────────────────────────────

func newDeploymentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment", "deploy"},
		Short:   "List deployments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deployments and models ready to deploy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.show(cmd.Context(), view.TabDeploy)
		},
	})
	return cmd
}
