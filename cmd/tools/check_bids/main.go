package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bidagents/bidagents-api/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT b.title, b.agency, b.portal, b.status, b.relevance_score, b.deadline, u.email, b.created_at
		FROM bids b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.created_at DESC
		LIMIT 25
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Title", "Agency", "Portal", "Status", "Score", "Deadline", "Owner", "Created"})

	for rows.Next() {
		var title, status, email string
		var agency, portal *string
		var score float64
		var deadline *time.Time
		var createdAt time.Time

		if err := rows.Scan(&title, &agency, &portal, &status, &score, &deadline, &email, &createdAt); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		due := "-"
		if deadline != nil {
			due = deadline.Format("2006-01-02")
		}

		t.AppendRow(table.Row{
			truncate(title, 40), deref(agency), deref(portal), status,
			score, due, email, createdAt.Format("01-02 15:04"),
		})
	}
	t.Render()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
