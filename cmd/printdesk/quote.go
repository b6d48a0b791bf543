package main

import (
	"fmt"

	"github.com/pbimprenta/printdesk/internal/quote"
	"github.com/spf13/cobra"
)

func newQuoteCmd() *cobra.Command {
	var req quote.Request

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a print job from the catalog",
		Example: `  printdesk quote --product tarjetas --qty 1000 --sides 2 --finish polilaminado
  printdesk quote --product flyers --qty 3000 --size carta --design basico`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := quote.Calculate(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.Product, "product", "p", "", "product (tarjetas, flyers, pendones)")
	cmd.Flags().IntVarP(&req.Quantity, "qty", "q", 0, "quantity")
	cmd.Flags().IntVar(&req.Sides, "sides", 0, "printed sides (1 or 2)")
	cmd.Flags().StringVar(&req.Finish, "finish", "", "finish (sin_laminar, polilaminado)")
	cmd.Flags().StringVar(&req.Size, "size", "", "size")
	cmd.Flags().StringVar(&req.DesignTier, "design", "", "design service tier (basico, medio, premium)")
	cmd.MarkFlagRequired("product")
	cmd.MarkFlagRequired("qty")
	return cmd
}
