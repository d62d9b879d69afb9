package cli

import (
	"github.com/spf13/cobra"

	"github.com/hicann/ge-sub098/pkg/pipeline"
)

func (c *CLI) inspectCommand() *cobra.Command {
	var (
		config    string
		sets      []string
		partition bool
		unfold    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [graph.json]",
		Short: "Summarize a graph and its subgraphs",
		Long: `Summarize a graph and its subgraphs.

Prints node and subgraph counts and one line per subgraph with its parent and
shape status. With --partition (and optionally --unfold) the passes run first
and their statistics are printed too. Nothing is cached or written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			g, err := pipeline.Parse(data)
			if err != nil {
				return err
			}
			if !partition && !unfold {
				printSummary(pipeline.Summarize(g))
				printSubgraphs(g)
				return nil
			}

			pass, err := loadPassOptions(config, sets)
			if err != nil {
				return err
			}
			out, err := pipeline.Compile(cmd.Context(), g, pipeline.Options{
				Input:         data,
				Pass:          pass,
				SkipPartition: !partition,
				Unfold:        unfold,
				Logger:        c.Logger,
			})
			if err != nil {
				return err
			}
			printSummary(pipeline.Summarize(out.Graph))
			printPassStats(out.Partition, out.Inlined)
			printSubgraphs(out.Graph)
			return nil
		},
	}
	cmd.Flags().StringVarP(&config, "config", "c", "", "options file (TOML)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "set an option (repeatable)")
	cmd.Flags().BoolVar(&partition, "partition", false, "partition before summarizing")
	cmd.Flags().BoolVar(&unfold, "unfold", false, "unfold before summarizing")
	return cmd
}
