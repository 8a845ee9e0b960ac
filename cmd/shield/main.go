package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aegismod/aegis/internal/queue"
	"github.com/aegismod/aegis/internal/setup"
	"github.com/aegismod/aegis/internal/setup/telemetry"
	"github.com/aegismod/aegis/internal/shield"
	"github.com/aegismod/aegis/internal/worker/core"
	"github.com/bytedance/sonic"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ToolLogDir specifies where tool log files are stored.
const ToolLogDir = "logs/tool_logs"

var (
	ErrFileRequired      = errors.New("FILE argument required")
	ErrIncompleteRequest = errors.New("request file must contain comment and analysis")
)

// evaluationRequest is the JSON document accepted by evaluate and submit.
type evaluationRequest struct {
	OrganizationID string                 `json:"organization_id"`
	Comment        *shield.Comment        `json:"comment"`
	Analysis       *shield.AnalysisResult `json:"analysis"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "shield",
		Usage: "Moderation engine management tool",
		Commands: []*cli.Command{
			{
				Name:      "evaluate",
				Usage:     "Evaluate one analyzed comment and print the result",
				ArgsUsage: "FILE",
				Action:    withApp(evaluateAction),
			},
			{
				Name:      "submit",
				Usage:     "Queue one analyzed comment for worker evaluation",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "priority",
						Value: 3,
						Usage: "Job priority (1 highest, 5 lowest)",
					},
				},
				Action: withApp(submitAction),
			},
			{
				Name:   "stats",
				Usage:  "Show moderation statistics for an organization",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "org", Required: true}},
				Action: withApp(statsAction),
			},
			{
				Name:   "workers",
				Usage:  "Show the status of all registered workers",
				Action: withApp(workersAction),
			},
			{
				Name:   "backlog",
				Usage:  "Show the queue backlog per job type",
				Action: withApp(backlogAction),
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

type actionFunc func(ctx context.Context, c *cli.Command, app *setup.App) error

// withApp wraps a command action with application setup and teardown.
func withApp(action actionFunc) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		app, err := setup.InitializeApp(ctx, telemetry.ServiceTool, ToolLogDir)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer app.Cleanup(ctx)

		return action(ctx, c, app)
	}
}

func evaluateAction(ctx context.Context, c *cli.Command, app *setup.App) error {
	request, err := readRequest(c)
	if err != nil {
		return err
	}

	service := shield.NewService(
		app.DB.Model().Behavior(),
		app.DB.Model().Action(),
		app.Queue,
		&app.Config.Common.Shield,
		app.Logger,
	)

	evaluation, err := service.DecideAndExecute(ctx, request.OrganizationID, request.Comment, request.Analysis)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	return printJSON(evaluation)
}

func submitAction(ctx context.Context, c *cli.Command, app *setup.App) error {
	request, err := readRequest(c)
	if err != nil {
		return err
	}

	var payload map[string]any

	data, err := sonic.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := sonic.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	jobID, err := app.Queue.Enqueue(ctx, &queue.Job{
		JobType:        queue.JobTypeEvaluateComment,
		OrganizationID: request.OrganizationID,
		Payload:        payload,
		Priority:       int(c.Int("priority")),
		MaxAttempts:    3,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	app.Logger.Info("Queued evaluation job",
		zap.String("jobId", jobID),
		zap.String("commentId", request.Comment.ID),
	)

	return nil
}

func statsAction(ctx context.Context, c *cli.Command, app *setup.App) error {
	stats, err := app.DB.Service().Stats().GetShieldStats(ctx, c.String("org"), 10)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	return printJSON(stats)
}

func workersAction(ctx context.Context, _ *cli.Command, app *setup.App) error {
	monitor := core.NewMonitor(app.StatusClient, app.Logger)

	statuses, err := monitor.GetAllStatuses(ctx)
	if err != nil {
		return fmt.Errorf("failed to load worker statuses: %w", err)
	}

	now := time.Now()
	for i := range statuses {
		if statuses[i].IsStale(now) {
			statuses[i].IsHealthy = false
		}
	}

	return printJSON(statuses)
}

func backlogAction(ctx context.Context, _ *cli.Command, app *setup.App) error {
	backlog := map[string]int{
		queue.JobTypeEvaluateComment: app.Queue.Length(ctx, queue.JobTypeEvaluateComment),
		queue.JobTypeShieldAction:    app.Queue.Length(ctx, queue.JobTypeShieldAction),
		queue.JobTypeAnalyzeToxicity: app.Queue.Length(ctx, queue.JobTypeAnalyzeToxicity),
	}

	return printJSON(backlog)
}

// readRequest loads and validates the JSON request document named by the
// command's FILE argument.
func readRequest(c *cli.Command) (*evaluationRequest, error) {
	if c.Args().Len() != 1 {
		return nil, ErrFileRequired
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	var request evaluationRequest
	if err := sonic.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}

	if request.Comment == nil || request.Analysis == nil {
		return nil, ErrIncompleteRequest
	}

	return &request, nil
}

func printJSON(v any) error {
	out, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Println(string(out))

	return nil
}
