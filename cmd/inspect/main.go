// Command inspect prints the records of a stranger-chat Badger store as a table.
//
//	go run ./cmd/inspect -db ./data/badger -prefix session:
package main

import (
	"flag"
	"fmt"
	"os"
	"stranger-chat/repositories"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

var typeColors = map[string]color.Color{
	"PARTICIPANT": color.FgCyan,
	"SESSION":     color.FgGreen,
	"MESSAGE":     color.FgYellow,
	"ACTIVE":      color.FgMagenta,
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "participant:", "Key prefix to scan (participant:, session:, msg:, active:, state:)")
	flag.Parse()

	if err := run(*dbPath, *prefix); err != nil {
		fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, prefix string) error {
	db, err := badger.Open(badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", dbPath, err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				row := repositories.InspectMapper(key, val)
				table.Append([]string{key, colorize(row.Type), row.Detail})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %d record(s) under %q ", rows, strings.TrimSpace(prefix))))
	return nil
}

func colorize(recordType string) string {
	if c, ok := typeColors[recordType]; ok {
		return c.Render(recordType)
	}
	return recordType
}
