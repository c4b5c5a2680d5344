package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/streammash/smash/sketch"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func importCommand(g *globalFlags) *cobra.Command {
	var (
		dsn  string
		name string
	)
	cmd := &cobra.Command{
		Use:   "import [flags] sketch.fa [sketch.fa ...]",
		Short: "Import FASTA/FASTQ k-mer sketches into the sketch database",
		Long: `Each input file becomes one reference sketch. Its records are the sketch
k-mers in slot order and must all have the same length.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.Store.DSN
			}
			if name != "" && len(args) > 1 {
				return errors.New("--name can only be used with a single input file")
			}

			store, err := sketch.NewSQLStore(dsn, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range args {
				sk, err := sketch.ImportFastx(path, name)
				if err != nil {
					return err
				}
				id, err := store.InsertSketch(cmd.Context(), sk)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d k-mers (k=%d)\n", id, sk.Name(), sk.NumHashes(), sk.KSize)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "Sketch database DSN or path (default from config)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Sketch name (default: file path)")
	return cmd
}
