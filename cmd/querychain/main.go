// Command querychain answers a single question from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"QueryChain/internal/agent"
	"QueryChain/internal/app"
	"QueryChain/internal/config"
	"QueryChain/pkg/logger"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("querychain", flag.ContinueOnError)
	explain := fs.Bool("explain", false, "print the plan and step trace after the answer")
	configPath := fs.String("config", "", "path to the JSON config (defaults to $QUERYCHAIN_CONFIG)")
	verbose := fs.Bool("v", false, "log to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New(`usage: querychain [-explain] "question"`)
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Logging.OutputPaths = []string{"stderr"}
		cfg.Logging.Format = "text"
	} else {
		cfg.Logging.Level = "error"
		cfg.Logging.OutputPaths = []string{"stderr"}
	}
	cfg.Logging.Audit.Enabled = false
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	stack, err := app.Build(ctx, cfg, app.Options{WithoutHistory: true})
	if err != nil {
		return err
	}

	outcome, _ := stack.Agent.Resolve(ctx, question)
	fmt.Fprintln(out, outcome.Answer)
	if *explain {
		printTrace(out, outcome)
	}
	return nil
}

// loadConfig 优先使用显式路径；未指定且默认文件不存在时使用内置默认值。
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	path = config.PathFromEnv()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && path == config.DefaultConfigPath {
			return config.Default("."), nil
		}
		return nil, err
	}
	return config.Load(path)
}

func printTrace(out io.Writer, outcome *agent.Outcome) {
	fmt.Fprintf(out, "\noutcome:    %s\n", outcome.Reason)
	if outcome.Normalized != outcome.Query {
		fmt.Fprintf(out, "normalized: %s\n", outcome.Normalized)
	}
	if outcome.Pattern != "" {
		fmt.Fprintf(out, "pattern:    %s (%s)\n", outcome.Pattern, outcome.PlanKind)
	}
	if outcome.Plan != "" {
		fmt.Fprintf(out, "plan:\n%s", outcome.Plan)
	}
	for _, step := range outcome.Steps {
		fmt.Fprintf(out, "  step %d  %s.%s %v -> %s (%s)\n",
			step.Index, step.Tool, step.Operation, step.Args, step.Value, step.Duration)
	}
	if outcome.ErrorCode != "" {
		fmt.Fprintf(out, "error:      %s %s\n", outcome.ErrorCode, outcome.ErrorKind)
	}
	fmt.Fprintf(out, "duration:   %s\n", outcome.Duration)
}
