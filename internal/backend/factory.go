package backend

import (
	"context"
	"fmt"

	"gagyebu/internal/log"
	"gagyebu/internal/remote/memory"
	"gagyebu/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.OpenSQLite(ctx, config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	case PostgresBackend:
		repo, err := storage.OpenPostgres(ctx, config.PostgresDSN, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized postgres backend")
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	default:
		store := memory.New()
		if config.Seed {
			store = memory.NewSeeded()
		}
		f.logger.InfoContext(ctx, "Initialized memory backend", "seeded", config.Seed)
		return &BackendResult{Store: store}, nil
	}
}
