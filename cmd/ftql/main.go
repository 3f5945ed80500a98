// Package main is the entry point of ftql, an online portfolio weight engine
// following the quadratized leader over a universe of on-chain tokens.
//
// Subcommands:
//
//	run      one pass: refresh candles, learn weights, export reports, print recent weights
//	serve    HTTP API, event stream and scheduled runs until SIGINT/SIGTERM
//	tokens   refresh tokens.json from the Birdeye token lists
//	weights  run the engine alone over a CSV of return relatives
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/ftql/internal/config"
	"github.com/aristath/ftql/internal/modules/optimization"
	"github.com/aristath/ftql/internal/modules/weights"
	"github.com/aristath/ftql/pkg/logger"
	"github.com/rs/zerolog"
)

const usage = `usage: ftql <command> [flags]

commands:
  run      [-offline]                 compute weights once and print recent weights
  serve    [-run-on-start]            start the HTTP server and scheduler
  tokens                              refresh the token registry
  weights  -in relatives.csv [-epsilon e] [-solver name]
                                      print the weight table for a relatives CSV
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so configuration errors are still structured
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true, Output: os.Stderr})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Logs go to stderr; stdout carries command output
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "run":
		err = runCommand(ctx, cfg, log, args)
	case "serve":
		err = serveCommand(ctx, cfg, log, args)
	case "tokens":
		err = tokensCommand(ctx, cfg, log)
	case "weights":
		err = weightsCommand(ctx, cfg, log, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	offline := fs.Bool("offline", false, "use stored candles without calling the market data API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := wire(ctx, cfg, log, *offline)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.service.Run(ctx, weights.TriggerCLI)
	if err != nil {
		return err
	}

	data, err := a.service.Exporter().RecentWeights(run)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

func tokensCommand(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := wire(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	registry, err := a.tokenRegistry()
	if err != nil {
		return err
	}
	whitelist, err := a.source.Whitelist()
	if err != nil {
		return err
	}

	report, err := registry.Refresh(ctx, whitelist)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func weightsCommand(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("weights", flag.ExitOnError)
	in := fs.String("in", "", "CSV of return relatives with a header row of asset names")
	epsilon := fs.Float64("epsilon", cfg.Epsilon, "L2 regulariser")
	solverName := fs.String("solver", cfg.Solver, "active_set or projected_gradient")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("weights: -in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	columns, relatives, err := readRelatives(f)
	if err != nil {
		return err
	}

	solver, err := optimization.NewSolver(*solverName)
	if err != nil {
		return err
	}
	table, err := optimization.NewEngine(solver, log).Weights(ctx, len(columns), relatives, *epsilon)
	if err != nil {
		return err
	}
	return writeWeights(os.Stdout, columns, table)
}
