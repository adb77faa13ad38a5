//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"

	"mexc-gateway/pkg/db"
)

// Run with: go run scripts/verify_schema.go [path]
func main() {
	dbPath := "./data/gateway.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying journal at: %s\n", dbPath)

	database, err := db.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	for _, table := range []string{"orders", "trades"} {
		var name string
		err := database.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			fmt.Printf("❌ %s table MISSING\n", table)
			continue
		}
		fmt.Printf("✓ %s table exists\n", table)
	}

	rows, err := database.DB.Query(`SELECT session_id, COUNT(*) FROM trades GROUP BY session_id ORDER BY MAX(traded_at) DESC LIMIT 5`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			session string
			n       int
		)
		if err := rows.Scan(&session, &n); err != nil {
			break
		}
		trades, _ := database.Queries().ListTrades(context.Background(), session, 1)
		last := "-"
		if len(trades) > 0 {
			last = trades[0].Time.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("session %s: %d trades, last %s\n", session, n, last)
	}
}
