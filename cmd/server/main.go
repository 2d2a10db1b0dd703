package main

import (
	"context"
	"log"
	"os"

	"github.com/bidagents/bidagents-api/internal/api"
	"github.com/bidagents/bidagents-api/internal/db"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	srv, err := api.NewServer(pool)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
