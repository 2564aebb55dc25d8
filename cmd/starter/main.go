package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"

	"repair-fund-audit/internal/config"
	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/seed"
	"repair-fund-audit/internal/workflows"
)

var (
	cfgFile string
	taskIDs []int64
	wait    time.Duration
)

// This opens review workflows for seeded tasks ahead of any decision, for
// demos and for checking a worker end to end. The API's Temporal sink starts
// them on demand anyway.
var rootCmd = &cobra.Command{
	Use:          "auditdesk-starter",
	Short:        "Open review workflows for seeded audit tasks",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.Flags().Int64SliceVar(&taskIDs, "task", nil, "Task ids to open (default: every seeded task)")
	rootCmd.Flags().DurationVar(&wait, "wait", 0, "Wait this long for a single review to finish and print its result")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	fx, err := seed.Load(cfg.Queue.SeedFile)
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	var runs []client.WorkflowRun
	for _, task := range fx.Tasks {
		if len(taskIDs) > 0 && !slices.Contains(taskIDs, task.ID) {
			continue
		}

		opts := client.StartWorkflowOptions{
			ID:                                       workflows.ReviewWorkflowID(task.ID),
			TaskQueue:                                cfg.Temporal.TaskQueue,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
			WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		we, err := c.ExecuteWorkflow(ctx, opts, workflows.ReviewAuditTask, workflows.ReviewInput{
			Task:     task,
			Deadline: cfg.Temporal.ReviewDeadline,
		})
		cancel()

		var started *serviceerror.WorkflowExecutionAlreadyStarted
		switch {
		case errors.As(err, &started):
			logger.Info("review already open", "taskId", task.ID, "workflowId", opts.ID)
			continue
		case err != nil:
			return fmt.Errorf("unable to execute workflow for task %d: %w", task.ID, err)
		}

		logger.Info("started review", "taskId", task.ID, "workflowId", we.GetID(), "runId", we.GetRunID())
		runs = append(runs, we)
	}

	if wait <= 0 || len(runs) != 1 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	var result string
	if err := runs[0].Get(ctx, &result); err != nil {
		return fmt.Errorf("unable to get workflow result: %w", err)
	}
	logger.Info("review finished", "workflowId", runs[0].GetID(), "result", result)
	return nil
}
