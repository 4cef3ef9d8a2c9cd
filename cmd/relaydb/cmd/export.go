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

	"github.com/nostrbase/relaydb/jsonl"
)

// exportCmd builds `relaydb export <db> [-f <filter>] [--desc <bool>]
// [output|-]` (§6.4).
func exportCmd() *cobra.Command {
	var filterJSON string
	var desc bool

	c := &cobra.Command{
		Use:   "export <db> [output|-]",
		Short: "Stream one matching event JSON per line from db",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := args[0]
			out := os.Stdout
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Create(args[1])
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			f, err := parseFilter(filterJSON)
			if err != nil {
				return fmt.Errorf("parse filter: %w", err)
			}
			f.Desc = desc

			db, st, err := openStore(dbPath, true, false)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			n, err := jsonl.Export(context.Background(), db, st, f, out)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported=%d\n", n)
			return nil
		},
	}
	c.Flags().StringVarP(&filterJSON, "filter", "f", "", "JSON filter object")
	c.Flags().BoolVar(&desc, "desc", false, "emit events newest-first")
	return c
}
