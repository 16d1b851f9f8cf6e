// Command events prints the audit rows of one day.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"relaywatch/internal/logger"
	"relaywatch/internal/repository/sqlite"
	"relaywatch/internal/service/eventlog"
)

func main() {
	dbPath := flag.String("db", "data/events.db", "Event log database path")
	date := flag.String("date", time.Now().Format("2006-01-02"), "Day to print (YYYY-MM-DD)")
	flag.Parse()

	day, err := time.ParseInLocation("2006-01-02", *date, time.Local)
	if err != nil {
		log.Fatalf("Invalid date %q: %v", *date, err)
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("Event log not found: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	events := eventlog.New(ctx, sqlite.NewEventRepository(db), logger.NewDiscard())

	rows, err := events.ListDay(ctx, day)
	if err != nil {
		log.Fatalf("Failed to query %s: %v", *date, err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tCOUNT\tDEVICE")
	for _, e := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Timestamp.Local().Format("15:04:05"), formatCount(e.Count), e.DeviceState)
	}
	tw.Flush()

	fmt.Printf("\n%d row(s) on %s\n", len(rows), *date)
}

func formatCount(n int) string {
	if n < 0 {
		return "?"
	}
	return fmt.Sprint(n)
}

