// Command quantctl is the operator CLI for the trading service REST API:
// start workflows, poll their status, and list recent runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	rootCmd := &cobra.Command{
		Use:   "quantctl",
		Short: "Control the trading service",
		Long: `quantctl talks to the trading service REST API: start backtests,
live-trading sessions, rebalances and risk monitors, and inspect workflow runs.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Trading service base URL")

	api := func() *apiClient { return newAPIClient(serverURL) }

	rootCmd.AddCommand(newBacktestCmd(api))
	rootCmd.AddCommand(newLiveTradingCmd(api))
	rootCmd.AddCommand(newRebalanceCmd(api))
	rootCmd.AddCommand(newRiskMonitorCmd(api))
	rootCmd.AddCommand(newStatusCmd(api))
	rootCmd.AddCommand(newListCmd(api))
	return rootCmd
}

func newBacktestCmd(api func() *apiClient) *cobra.Command {
	var (
		strategy   string
		params     map[string]string
		capital    float64
		commission float64
		slippage   float64
		from       string
		to         string
	)
	cmd := &cobra.Command{
		Use:   "backtest [SYMBOL]",
		Short: "Start a strategy backtest workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().startBacktest(backtestRequest{
				Symbol:     args[0],
				Strategy:   strategy,
				Params:     params,
				Capital:    capital,
				Commission: commission,
				Slippage:   slippage,
				From:       from,
				To:         to,
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "ema_cross", "Strategy name")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Strategy parameter (repeatable), e.g. --param ema_fast=12")
	cmd.Flags().Float64Var(&capital, "capital", 100000, "Initial capital")
	cmd.Flags().Float64Var(&commission, "commission", 0.001, "Commission rate")
	cmd.Flags().Float64Var(&slippage, "slippage", 0.0005, "Slippage rate")
	cmd.Flags().StringVar(&from, "from", "", "Start UTC (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "End UTC (RFC3339)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func newLiveTradingCmd(api func() *apiClient) *cobra.Command {
	var (
		strategy string
		account  string
		hours    int
		quantity string
	)
	cmd := &cobra.Command{
		Use:   "livetrading [SYMBOL]",
		Short: "Start a paper live-trading session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().startLiveTrading(liveTradingRequest{
				Symbol:   args[0],
				Strategy: strategy,
				Account:  account,
				Hours:    hours,
				Quantity: quantity,
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "ema_cross", "Strategy name")
	cmd.Flags().StringVar(&account, "account", "paper", "Account ID")
	cmd.Flags().IntVar(&hours, "hours", 4, "Session duration in hours")
	cmd.Flags().StringVar(&quantity, "quantity", "0.01", "Quantity per trade")
	return cmd
}

func newRebalanceCmd(api func() *apiClient) *cobra.Command {
	var (
		account     string
		value       float64
		allocations map[string]string
	)
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Start a portfolio rebalancing workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().startRebalance(account, value, allocations)
		},
	}
	cmd.Flags().StringVar(&account, "account", "paper", "Account ID")
	cmd.Flags().Float64Var(&value, "value", 0, "Portfolio value")
	cmd.Flags().StringToStringVar(&allocations, "alloc", nil, "Target allocation (repeatable), e.g. --alloc BTCUSDT=0.6")
	cmd.MarkFlagRequired("value")
	cmd.MarkFlagRequired("alloc")
	return cmd
}

func newRiskMonitorCmd(api func() *apiClient) *cobra.Command {
	var (
		account  string
		hours    int
		interval int
	)
	cmd := &cobra.Command{
		Use:   "riskmonitor",
		Short: "Start a risk monitoring workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().startRiskMonitor(account, hours, interval)
		},
	}
	cmd.Flags().StringVar(&account, "account", "paper", "Account ID")
	cmd.Flags().IntVar(&hours, "hours", 24, "Monitoring duration in hours")
	cmd.Flags().IntVar(&interval, "interval", 5, "Check interval in minutes")
	return cmd
}

func newStatusCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status [WORKFLOW_ID]",
		Short: "Show one workflow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().status(args[0])
		},
	}
}

func newListCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflow runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return api().list()
		},
	}
}
