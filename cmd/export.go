package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svitlobot/svitlo/config"
	"github.com/svitlobot/svitlo/infra/logger"
	"github.com/svitlobot/svitlo/infra/store"
	"github.com/svitlobot/svitlo/pkg/export"
)

var (
	exportSource string
	exportGroup  string
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a group's stored outage schedule",
	RunE:  exportSchedule,
}

func init() {
	exportCmd.Flags().StringVar(&exportSource, "source", "", "source identifier")
	exportCmd.Flags().StringVar(&exportGroup, "group", "", "group identifier")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func exportSchedule(cmd *cobra.Command, args []string) error {
	if exportSource == "" || exportGroup == "" {
		return fmt.Errorf("--source and --group are required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snapshots, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.New("export").Errorf("store close: %v", err)
		}
	}()

	snap, err := snapshots.Get(context.Background(), exportSource, exportGroup)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("no snapshot for source %s group %s", exportSource, exportGroup)
	}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer func() {
			if err := f.Close(); err != nil {
				logger.New("export").Errorf("output close: %v", err)
			}
		}()
		out = f
	}

	entries := export.Entries(snap)
	switch exportFormat {
	case "json":
		return export.WriteJSON(out, entries)
	case "csv":
		return export.WriteCSV(out, entries)
	default:
		return fmt.Errorf("unknown format %s", exportFormat)
	}
}
