package cmd

import (
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the matching configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active matching configuration",
		Long: `Show prints the matching configuration stored in the database, creating
the defaults on first use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.conciliacion.EnsureConfig(commandContext(cmd))
			if err != nil {
				return err
			}
			return a.render(cfg)
		},
	}

	var (
		tolerancia string
		values     = map[string]*float64{}
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Change fields of the matching configuration",
		Long: `Set changes only the given fields. The resulting configuration must
still be valid: weights add up to 1 and the exact threshold is not below the
probable one.

Example:
  conciliador config set --peso-fecha 0.3 --peso-valor 0.5 --peso-descripcion 0.2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)
			if _, err := a.conciliacion.EnsureConfig(ctx); err != nil {
				return err
			}

			var patch matcher.ConfigPatch
			if cmd.Flags().Changed("tolerancia-valor") {
				d, err := decimal.NewFromString(tolerancia)
				if err != nil {
					return errors.ValidationError(errors.CodeInvalidAmount, "tolerancia-valor", tolerancia, err)
				}
				patch.ToleranciaValor = &d
			}
			targets := map[string]**float64{
				"similitud-minima": &patch.SimilitudDescripcionMinima,
				"peso-fecha":       &patch.PesoFecha,
				"peso-valor":       &patch.PesoValor,
				"peso-descripcion": &patch.PesoDescripcion,
				"score-exacto":     &patch.ScoreMinimoExacto,
				"score-probable":   &patch.ScoreMinimoProbable,
			}
			for name, target := range targets {
				if cmd.Flags().Changed(name) {
					*target = values[name]
				}
			}

			cfg, err := a.conciliacion.UpdateConfig(ctx, patch)
			if err != nil {
				return err
			}
			return a.render(cfg)
		},
	}
	set.Flags().StringVar(&tolerancia, "tolerancia-valor", "", "amount difference at which the value score reaches zero")
	for _, f := range []struct{ name, usage string }{
		{"similitud-minima", "minimum description similarity (0-1)"},
		{"peso-fecha", "date weight"},
		{"peso-valor", "value weight"},
		{"peso-descripcion", "description weight"},
		{"score-exacto", "minimum total score for OK"},
		{"score-probable", "minimum total score for PROBABLE"},
	} {
		values[f.name] = new(float64)
		set.Flags().Float64Var(values[f.name], f.name, 0, f.usage)
	}

	cmd.AddCommand(show, set)
	return cmd
}
