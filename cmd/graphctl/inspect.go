package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/graph/badgerstore"
)

type metaLister interface {
	List(ctx context.Context) ([]badgerstore.Meta, error)
	Meta(ctx context.Context, extent string) (*badgerstore.Meta, error)
}

func newInspectCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print stored graph metadata as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			name := cfg.Graph.Extent
			if all {
				name = ""
			}
			return inspect(cmd.Context(), store, name, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every stored extent")
	return cmd
}

// inspect writes the metadata of one extent, or of all of them when extent
// is empty.
func inspect(ctx context.Context, store metaLister, extent string, out io.Writer) error {
	var v interface{}
	if extent == "" {
		metas, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("listing graphs: %w", err)
		}
		v = metas
	} else {
		meta, err := store.Meta(ctx, extent)
		if err != nil {
			return err
		}
		v = meta
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored graph for the extent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), cfg.Graph.Extent); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted graph %q\n", cfg.Graph.Extent)
			return nil
		},
	}
}
