package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:      "procwait",
		Usage:     "run a command, echo its output, and wait for it to exit or to print a matching line",
		ArgsUsage: "-- command [args...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-echo",
				Usage: "Don't echo the command's stdout and stderr.",
			},
			&cli.StringFlag{
				Name:  "out-prefix",
				Usage: "Prefix of each echoed stdout line.",
			},
			&cli.StringFlag{
				Name:  "err-prefix",
				Usage: "Prefix of each echoed stderr line.",
			},
			&cli.StringFlag{
				Name:  "wait-for",
				Usage: "Wait for a line of output containing this text, and print it.",
			},
			&cli.StringFlag{
				Name:  "wait-for-regexp",
				Usage: "Wait for a line of output matching this regular expression, and print it.",
			},
			&cli.StringFlag{
				Name:  "timeout",
				Usage: "Duration to wait for the match, or for the exit when there is nothing to match.",
			},
			&cli.BoolFlag{
				Name:  "kill-on-timeout",
				Usage: "Terminate the command when the timeout elapses.",
			},
			&cli.BoolFlag{
				Name:  "kill-after-match",
				Usage: "Terminate the command once the match is found, and wait for it to go away.",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error].",
				Value: "info",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return errors.New("a command is required")
			}

			var timeout time.Duration
			if s := ctx.String("timeout"); s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return fmt.Errorf("parsing timeout: %w", err)
				}
				timeout = d
			}

			level, err := zapcore.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			logConfig := zap.NewDevelopmentConfig()
			logConfig.Level = zap.NewAtomicLevelAt(level)
			logger, err := logConfig.Build()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()

			// interrupting the tool abandons the wait and terminates the command
			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			args := ctx.Args().Slice()
			code, err := run(sigCtx, runConfig{
				command:       args[0],
				args:          args[1:],
				echo:          !ctx.Bool("no-echo"),
				outPrefix:     ctx.String("out-prefix"),
				errPrefix:     ctx.String("err-prefix"),
				waitFor:       ctx.String("wait-for"),
				waitForRegexp: ctx.String("wait-for-regexp"),
				timeout:       timeout,
				killOnTimeout: ctx.Bool("kill-on-timeout"),
				killAfter:     ctx.Bool("kill-after-match"),
				stdout:        os.Stdout,
				stderr:        os.Stderr,
				log:           logger.Sugar().Named("procwait"),
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return cli.Exit("interrupted", 130)
				}
				return err
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
