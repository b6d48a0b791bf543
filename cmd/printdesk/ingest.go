package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pbimprenta/printdesk/internal/knowledge"
	"github.com/spf13/cobra"
)

// chunkAdder stores one knowledge chunk.
type chunkAdder interface {
	Add(ctx context.Context, content string, metadata map[string]string) error
}

func newIngestCmd() *cobra.Command {
	var (
		configPath string
		chunkSize  int
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load business documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Knowledge.DatabaseURL == "" {
				return fmt.Errorf("knowledge.database_url is required for ingest")
			}
			client, err := newLLM(cfg, log)
			if err != nil {
				return err
			}
			pg, err := knowledge.NewPG(cmd.Context(), knowledge.PGOpts{
				DatabaseURL:    cfg.Knowledge.DatabaseURL,
				Embedder:       client,
				MatchThreshold: cfg.Knowledge.MatchThreshold,
				Logger:         log,
			})
			if err != nil {
				return err
			}
			defer pg.Close()
			return runIngest(cmd.Context(), cmd.OutOrStdout(), pg, args, chunkSize)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to printdesk config file")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 800, "maximum characters per chunk")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, dst chunkAdder, paths []string, chunkSize int) error {
	total := 0
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("ingest: read %s: %w", p, err)
		}
		chunks := knowledge.Chunk(string(data), chunkSize)
		source := filepath.Base(p)
		for i, c := range chunks {
			meta := map[string]string{"source": source, "chunk": strconv.Itoa(i)}
			if err := dst.Add(ctx, c, meta); err != nil {
				return fmt.Errorf("ingest: %s chunk %d: %w", source, i, err)
			}
		}
		fmt.Fprintf(out, "%s: %d chunks\n", source, len(chunks))
		total += len(chunks)
	}
	fmt.Fprintf(out, "Ingested %d chunks from %d files\n", total, len(paths))
	return nil
}
