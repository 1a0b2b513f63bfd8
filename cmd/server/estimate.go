package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/Footprint/internal/services"
)

var estimateInput services.ReadingInput

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate monthly CO2 emissions from usage figures",
	Example: `  footprint estimate --electric 10 --gas 20 --fuel 30 --miles 40`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		est, ready, err := services.PreviewEstimate(estimateInput)
		if err != nil {
			return err
		}
		if !ready {
			return fmt.Errorf("all of --electric, --gas, --fuel and --miles are required")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s lbs CO2\n", est.StringFixed(2))
		return nil
	},
}

func init() {
	f := estimateCmd.Flags()
	f.StringVar(&estimateInput.ElectricUsage, "electric", "", "electricity used (kWh)")
	f.StringVar(&estimateInput.GasUsage, "gas", "", "natural gas used (ft³)")
	f.StringVar(&estimateInput.FuelUsage, "fuel", "", "heating fuel used (gal)")
	f.StringVar(&estimateInput.AvgMilesDriven, "miles", "", "average miles driven per car")
}
