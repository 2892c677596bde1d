package repository

import (
	"context"
	"errors"

	"calorieTracker/models"
)

// ErrConflict is returned when a uniqueness constraint rejects a write.
var ErrConflict = errors.New("record already exists")

// UserRepositoryI defines operations on User entities.
type UserRepositoryI interface {
	Create(ctx context.Context, username, password string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// MealRepositoryI defines operations on Meal entities.
// Every read and delete is scoped to an owning user.
type MealRepositoryI interface {
	Create(ctx context.Context, m *models.Meal) (*models.Meal, error)
	GetByID(ctx context.Context, id int64) (*models.Meal, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Meal, error)
	ListByUserAndDateRange(ctx context.Context, userID int64, from, to string) ([]models.Meal, error)
	Delete(ctx context.Context, mealID, userID int64) (int64, error)
	Totals(ctx context.Context, userID int64, rng *models.DateRange) (models.MacroTotals, error)
}

var (
	_ UserRepositoryI = (*UserRepository)(nil)
	_ MealRepositoryI = (*MealRepository)(nil)
)
