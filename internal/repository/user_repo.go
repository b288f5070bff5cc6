package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

type postgresUserRepository struct {
	db  querier
	log *logrus.Logger
}

func NewPostgresUserRepository(db querier, logger *logrus.Logger) domain.UserRepository {
	return &postgresUserRepository{
		db:  db,
		log: logger,
	}
}

func (r *postgresUserRepository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `
        SELECT id, first_name, last_name, email, role
        FROM users
        WHERE id = $1`
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Warnf("Repository: User with ID %d not found", id)
			return nil, domain.NotFound("user with id %d not found", id)
		}
		r.log.Errorf("Repository: Failed to get user by ID %d: %v", id, err)
		return nil, translate(err, "could not get user by id")
	}
	return user, nil
}
