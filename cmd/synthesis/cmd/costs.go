package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/synthesis-kb/synthesis/internal/output"
)

func newCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Inspect API spend and budget alerts",
	}

	cmd.AddCommand(newCostsSummaryCmd())
	cmd.AddCommand(newCostsHistoryCmd())
	cmd.AddCommand(newCostsAlertsCmd())
	cmd.AddCommand(newCostsAckCmd())

	return cmd
}

func newCostsSummaryCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show month-to-date spend against the budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			sum, err := api.CostsSummary(cmd.Context())
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			w.Section("Spend this month")
			w.KeyValue("month to date", "$"+sum.MonthToDateUSD.StringFixed(4))
			if sum.BudgetUSD.IsPositive() {
				w.KeyValue("budget", "$"+sum.BudgetUSD.StringFixed(2))
				w.KeyValue("used", fmt.Sprintf("%.1f%%", sum.BudgetUsedPct))
			} else {
				w.KeyValue("budget", "not set")
			}
			if sum.FallbackActive {
				w.Warning("budget exhausted, paid providers disabled until next month")
			}
			for _, b := range sum.Breakdown {
				w.KeyValue(b.Provider+"/"+b.Operation,
					fmt.Sprintf("%d requests, $%s", b.Requests, b.TotalCost.StringFixed(4)))
			}
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newCostsHistoryCmd() *cobra.Command {
	var (
		days       int
		serverFlag string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show daily spend totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			history, err := api.CostsHistory(cmd.Context(), days)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(history) == 0 {
				w.Status("ℹ️ ", "no recorded spend")
				return nil
			}
			for _, day := range history {
				w.KeyValue(day.Date, "$"+day.Total.StringFixed(4))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Window in days")
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newCostsAlertsCmd() *cobra.Command {
	var (
		limit      int
		serverFlag string
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List budget alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			alerts, err := api.CostsAlerts(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if len(alerts) == 0 {
				w.Success("no budget alerts")
				return nil
			}
			for _, a := range alerts {
				marker := "⚠️ "
				if a.Acknowledged {
					marker = "✅"
				}
				w.Statusf(marker, "#%d [%s] %s (%s)", a.ID, a.Kind, a.Message,
					a.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum alerts to show")
	addServerFlag(cmd, &serverFlag)
	return cmd
}

func newCostsAckCmd() *cobra.Command {
	var serverFlag string

	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge a budget alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}
			api, err := newAPIClient(serverFlag, 30*time.Second)
			if err != nil {
				return err
			}
			if err := api.AcknowledgeAlert(cmd.Context(), id); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("acknowledged alert %d", id)
			return nil
		},
	}
	addServerFlag(cmd, &serverFlag)
	return cmd
}
