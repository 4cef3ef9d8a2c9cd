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

// Package cmd wires relaydb's cobra subcommands: import, export, bench,
// relay (spec §6.4).
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nostrbase/relaydb/internal/rlog"
)

var log = rlog.Root().New("component", "cli")

// Root builds the relaydb root command.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "relaydb",
		Short: "Embeddable Nostr event database and relay",
	}
	root.AddCommand(importCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(benchCmd())
	root.AddCommand(relayCmd())
	return root
}
