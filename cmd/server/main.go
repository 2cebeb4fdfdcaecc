package main

import (
	"context"
	"log"

	"github.com/mberzins/envault/internal/server"
	"github.com/mberzins/envault/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := app.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
