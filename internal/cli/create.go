package cli

import (
	"github.com/spf13/cobra"

	"financial-alarms/internal/app"
)

var createOpts app.CreateOptions

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new alarm",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CreateAlarm(cmd.Context(), createOpts)
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringVar(&createOpts.AssetClass, "class", "crypto", "Asset class: crypto, forex or stock")
	flags.StringVar(&createOpts.AssetSymbol, "symbol", "", "Asset symbol, e.g. BTC-USDT or EUR/USD")
	flags.StringVar(&createOpts.Type, "type", "", "Alarm type: price, rsi or bollinger")
	flags.StringVar(&createOpts.Email, "email", "", "Notification recipient address")

	flags.StringVar(&createOpts.TargetPrice, "target-price", "", "Price alarm target level")
	flags.StringVar(&createOpts.Direction, "direction", "above", "Price alarm direction: above or below")

	flags.IntVar(&createOpts.Period, "period", 14, "RSI or Bollinger lookback period")
	flags.Float64Var(&createOpts.Threshold, "threshold", 30, "RSI oversold threshold")
	flags.Float64Var(&createOpts.StdDev, "std-dev", 2, "Bollinger band width in standard deviations")

	_ = createCmd.MarkFlagRequired("symbol")
	_ = createCmd.MarkFlagRequired("type")
	_ = createCmd.MarkFlagRequired("email")
}
