package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePropose   float64
	simulateThreshold int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次低 gas 价格并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePropose < 0 {
			return errors.New("--propose 不能为负数")
		}
		return getApp().SimulateAlert(cmd.Context(), decimal.NewFromFloat(simulatePropose), simulateThreshold)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePropose, "propose", 10, "standard 档位价格 (Gwei)")
	simulateCmd.Flags().IntVar(&simulateThreshold, "threshold", 0, "告警阈值 (Gwei)，默认读取偏好设置")
}
