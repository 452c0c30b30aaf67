package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/fittrack/backend/internal/config"
	"github.com/fittrack/backend/internal/database"
	"github.com/fittrack/backend/internal/database/migrations"
	"github.com/fittrack/backend/internal/models"
)

func main() {
	rollback := flag.Bool("rollback", false, "revert the most recent migration instead of migrating")
	promote := flag.String("promote", "", "grant the admin role to the user with this email after migrating")
	flag.Parse()

	cfg := config.LoadConfig()

	db, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if *rollback {
		if err := migrations.RollbackLast(db); err != nil {
			slog.Error("rollback failed", "error", err)
			os.Exit(1)
		}
		slog.Info("rolled back last migration")
		return
	}

	if err := migrations.Run(db); err != nil {
		os.Exit(1)
	}

	if *promote != "" {
		email := strings.ToLower(strings.TrimSpace(*promote))
		res := db.Model(&models.User{}).Where("email = ?", email).Update("role", models.RoleAdmin)
		if res.Error != nil {
			slog.Error("failed to promote user", "email", email, "error", res.Error)
			os.Exit(1)
		}
		if res.RowsAffected == 0 {
			slog.Error("no user with that email", "email", email)
			os.Exit(1)
		}
		slog.Info("user promoted to admin", "email", email)
	}
}
