package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"researchcopilot/pkg/embed"
	"researchcopilot/pkg/knowledge"
)

func newIndexCmd(opts *options) *cobra.Command {
	var location, collection string
	cmd := &cobra.Command{
		Use:   "index <dir>",
		Short: "Chunk, embed and store text files for rag_retrieve",
		Long: `Walks <dir> for .txt, .md, .markdown and .rst files, splits them into
overlapping chunks, embeds each chunk with the configured embedder and stores
them in the local index. Re-indexing a file replaces its chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			embedder, err := embed.New(&cfg)
			if err != nil {
				return err
			}
			store, err := knowledge.Create(location)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			stats, err := knowledge.IndexDirectory(ctx, store, embedder, collection, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Indexed %d files (%d chunks) into %s/%s using %s\n",
				stats.Files, stats.Chunks, store.Location(), collection, embedder.Model())
			return nil
		},
	}
	cmd.Flags().StringVar(&location, "location", "chroma", "Index directory")
	cmd.Flags().StringVar(&collection, "collection", "research_corpus", "Collection name")
	return cmd
}
