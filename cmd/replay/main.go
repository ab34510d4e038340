// Command replay reconstructs a trading session from the order journal.
// It streams the lifecycle events recorded by the engine and prints them as
// a timeline, optionally narrowed to one order.
//
//	replay -db _workspace/data/live/journal.db
//	replay -db journal.db -order ORD_1724990000123456789_42
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

func main() {
	dbPath := flag.String("db", "", "path to journal.db")
	orderID := flag.String("order", "", "restrict output to one order id")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dbPath, *orderID); err != nil {
		slog.Error("replay failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(dbPath, orderID string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	query := "SELECT id, order_id, event, ts, payload FROM order_events ORDER BY id ASC"
	args := []any{}
	if orderID != "" {
		query = "SELECT id, order_id, event, ts, payload FROM order_events WHERE order_id = ? ORDER BY id ASC"
		args = append(args, orderID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id      uint64
			oid     string
			event   string
			ts      int64
			payload []byte
		)
		if err := rows.Scan(&id, &oid, &event, &ts, &payload); err != nil {
			return err
		}

		when := time.UnixMicro(ts).Format("15:04:05.000000")
		if oid == "" {
			oid = "-"
		}
		if len(payload) > 0 {
			fmt.Printf("%6d  %s  %-18s %-24s %s\n", id, when, event, oid, payload)
		} else {
			fmt.Printf("%6d  %s  %-18s %s\n", id, when, event, oid)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fmt.Printf("\n%d events\n", count)
	return nil
}
