// Copyright 2026 The Relaydb Authors
// This file is part of Relaydb.
//
// Relaydb is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Relaydb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Relaydb. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nostrbase/relaydb/filter"
	"github.com/nostrbase/relaydb/jsonl"
	"github.com/nostrbase/relaydb/search"
)

// importCmd builds `relaydb import <db> [--search] [input|-]` (§6.4).
func importCmd() *cobra.Command {
	var withSearch bool
	var compress bool

	c := &cobra.Command{
		Use:   "import <db> [input|-]",
		Short: "Bulk-load one event JSON per line into db",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := args[0]
			in := os.Stdin
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			db, st, err := openStore(dbPath, false, compress)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			var tok filter.Tokenizer
			if withSearch {
				tok = search.WordTokenizer{}
			}

			stats, err := jsonl.Import(context.Background(), st, in, tok, log)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "read=%d imported=%d skipped=%d parse_errors=%d\n",
				stats.Read, stats.Imported, stats.Skipped, stats.ParseErrs)
			return nil
		},
	}
	c.Flags().BoolVar(&withSearch, "search", false, "tokenize kind-1 content for full-text search")
	c.Flags().BoolVar(&compress, "compress", false, "zstd-compress stored event JSON")
	return c
}
