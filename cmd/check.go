package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/svitlobot/svitlo/app"
	"github.com/svitlobot/svitlo/config"
	"github.com/svitlobot/svitlo/infra/logger"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single poll cycle and exit",
	RunE:  checkOnce,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("check").Errorf("service close: %v", err)
		}
	}()
	return svc.Scheduler.RunCycle(ctx)
}
