package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/backend"
	"github.com/Veraticus/rollcall/internal/config"
	"github.com/Veraticus/rollcall/internal/storage"
)

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the journal and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newBackend(ctx context.Context, cfg *config.Config) (*backend.Client, error) {
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	return backend.NewClient(ctx, backend.Credentials{BaseURL: cfg.API.URL, Token: cfg.API.Token})
}
