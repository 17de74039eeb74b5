package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/bizdesk/pkg/database"
)

var cli struct {
	Direction   string `arg:"" enum:"up,down" default:"up" help:"Apply (up) or roll back (down) all migrations."`
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" required:"" help:"Postgres connection string."`
	LogLevel    string `name:"log-level" env:"LOG_LEVEL" default:"info" help:"Log level."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("migrate"),
		kong.Description("Apply the embedded Postgres schema migrations."))

	log := logger.NewLogger(cli.LogLevel)
	if err := database.Migrate(cli.DatabaseURL, cli.Direction); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", cli.Direction, err)
		os.Exit(1)
	}
	log.Info("migrations complete", slog.String("direction", cli.Direction))
}
