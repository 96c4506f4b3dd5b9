package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type ClientState interface {
	ReadCount(ctx context.Context) (string, bool, error)
	WriteCount(ctx context.Context, value string) error
	Close() error
}

type Repository struct {
	ClientState
}

func NewRepository(db *sqlx.DB) (*Repository, error) {
	state, err := NewClientStatePostgres(db)
	if err != nil {
		return nil, err
	}
	return &Repository{
		ClientState: state,
	}, nil
}
