// Command oosflow-seed bootstraps the warehouse: it creates the dataset and
// tables if needed and inserts the initial admin user when one is absent.
// Safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/trueclassic/oosflow/internal/core/auth"
	"github.com/trueclassic/oosflow/internal/shell/warehouse"
)

const (
	ExitSuccess     = 0
	ExitConfigError = 1
	ExitSeedError   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	project := flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "Google Cloud project ID")
	dataset := flag.String("dataset", "oos_workflow", "BigQuery dataset")
	location := flag.String("location", "US", "BigQuery location")
	username := flag.String("username", os.Getenv("ADMIN_USERNAME"), "Admin username to seed")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "Admin password to seed")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *project == "" {
		fmt.Fprintln(os.Stderr, "ERROR: project is required (flag -project or GOOGLE_CLOUD_PROJECT)")
		return ExitConfigError
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "ERROR: username and password are required (flags or ADMIN_USERNAME/ADMIN_PASSWORD)")
		return ExitConfigError
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	wh := warehouse.NewService(warehouse.Config{
		ProjectID:       *project,
		Dataset:         *dataset,
		Location:        *location,
		CredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
	}, logger)
	defer wh.Close()

	if err := wh.EnsureTables(ctx); err != nil {
		logger.Error("failed to ensure warehouse tables", "error", err)
		return ExitSeedError
	}

	_, err := wh.UserByUsername(ctx, *username)
	switch {
	case err == nil:
		logger.Info("admin user already exists, nothing to do", "username", *username)
		return ExitSuccess
	case !errors.Is(err, warehouse.ErrUserNotFound):
		logger.Error("failed to look up admin user", "username", *username, "error", err)
		return ExitSeedError
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		logger.Error("failed to hash password", "error", err)
		return ExitSeedError
	}

	err = wh.CreateUser(ctx, warehouse.User{
		Username:       *username,
		HashedPassword: hash,
		Role:           string(auth.RoleAdmin),
	})
	if err != nil {
		logger.Error("failed to create admin user", "username", *username, "error", err)
		return ExitSeedError
	}

	logger.Info("admin user created", "username", *username)
	return ExitSuccess
}
