package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/zonematch/internal/taxrate"
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Inspect the configured tax rate table",
}

var ratesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every zone code with its composite rate",
	RunE: func(_ *cobra.Command, _ []string) error {
		tbl, err := loadRateTable()
		if err != nil {
			return err
		}
		formatRatesList(os.Stdout, tbl)
		return nil
	},
}

var ratesShowCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Show the rate breakdown of one zone code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := loadRateTable()
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return showRate(os.Stdout, tbl, args[0], format)
	},
}

func init() {
	ratesShowCmd.Flags().String("format", "yaml", "output format (yaml, json)")

	ratesCmd.AddCommand(ratesListCmd)
	ratesCmd.AddCommand(ratesShowCmd)
	rootCmd.AddCommand(ratesCmd)
}

func loadRateTable() (*taxrate.Table, error) {
	if err := cfg.Validate("rates"); err != nil {
		return nil, err
	}
	tbl, err := taxrate.LoadFile(cfg.Tax.RatesFile)
	if err != nil {
		return nil, eris.Wrap(err, "rates")
	}
	return tbl, nil
}

func formatRatesList(out io.Writer, tbl *taxrate.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tSTATE\tCOUNTY\tCITY\tSPECIAL\tCOMPOSITE")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t----\t-------\t---------")
	for _, code := range tbl.Codes() {
		b, _ := tbl.Lookup(code)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.Code,
			b.State.StringFixed(taxrate.RatePlaces),
			b.County.StringFixed(taxrate.RatePlaces),
			b.City.StringFixed(taxrate.RatePlaces),
			b.Special.StringFixed(taxrate.RatePlaces),
			b.Composite.StringFixed(taxrate.RatePlaces),
		)
	}
	_ = w.Flush()
}

func showRate(out io.Writer, tbl *taxrate.Table, code, format string) error {
	b, ok := tbl.Lookup(code)
	if !ok {
		return eris.Wrapf(taxrate.ErrNoRate, "rates show %s", code)
	}

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(b); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(b), "encode json")
	}
	return eris.Errorf("unknown format %q (want yaml or json)", format)
}
