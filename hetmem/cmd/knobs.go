package cmd

import (
	"fmt"
	"sort"

	"github.com/sarchlab/hetmem/config"
	"github.com/spf13/cobra"
)

func newKnobsCommand() *cobra.Command {
	var envFile string

	c := &cobra.Command{
		Use:   "knobs",
		Short: "Print the knobs in .env format.",
		Long: "Print the knobs that a run would use, after applying the .env " +
			"file and the environment, in a format that can be saved as a " +
			".env file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := config.Load(envFile)
			if err != nil {
				return err
			}

			env := k.Env()

			names := make([]string, 0, len(env))
			for name := range env {
				names = append(names, name)
			}

			sort.Strings(names)

			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, env[name])
			}

			return nil
		},
	}

	c.Flags().StringVar(&envFile, "env", "", "Load knobs from a .env file")

	return c
}
