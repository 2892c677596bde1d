package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"calorieTracker/internal/db"
	"calorieTracker/models"
)

const mealColumns = `id, user_id, name, calories, protein, carbs, fats, image_url, created_at`

// MealRepository persists meals. Input validation happens at the API
// boundary; the repository trusts what it is given.
type MealRepository struct {
	db *sql.DB
}

// NewMealRepository creates a new MealRepository.
func NewMealRepository(db *sql.DB) *MealRepository {
	return &MealRepository{db: db}
}

// Create inserts a meal, stamping created_at with the server clock, and
// returns the stored row.
func (r *MealRepository) Create(ctx context.Context, m *models.Meal) (*models.Meal, error) {
	if m == nil {
		return nil, errors.New("meal is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO meals (user_id, name, calories, protein, carbs, fats, image_url, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.UserID, m.Name, m.Calories, nullFloat(m.Protein), nullFloat(m.Carbs), nullFloat(m.Fats), nullString(m.ImageURL), db.Now())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created meal not found: id=%d", id)
	}
	return created, nil
}

// GetByID fetches a meal by its ID regardless of owner.
func (r *MealRepository) GetByID(ctx context.Context, id int64) (*models.Meal, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	m, err := scanMeal(r.db.QueryRowContext(ctx, `SELECT `+mealColumns+` FROM meals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByUser returns all meals of a user, newest first.
func (r *MealRepository) ListByUser(ctx context.Context, userID int64) ([]models.Meal, error) {
	return r.list(ctx, `SELECT `+mealColumns+` FROM meals WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// ListByUserAndDateRange returns a user's meals whose creation date falls
// within [from, to], both given as YYYY-MM-DD, newest first.
func (r *MealRepository) ListByUserAndDateRange(ctx context.Context, userID int64, from, to string) ([]models.Meal, error) {
	return r.list(ctx, `SELECT `+mealColumns+` FROM meals
		WHERE user_id = ? AND date(created_at) BETWEEN ? AND ?
		ORDER BY created_at DESC, id DESC`, userID, from, to)
}

// Delete removes a meal only if userID owns it. It reports the number of
// rows removed: 0 means the meal does not exist or belongs to someone else.
func (r *MealRepository) Delete(ctx context.Context, mealID, userID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM meals WHERE id = ? AND user_id = ?`, mealID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Totals sums calories and macros over a user's meals. A nil range covers
// every meal.
func (r *MealRepository) Totals(ctx context.Context, userID int64, rng *models.DateRange) (models.MacroTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT COUNT(*), COALESCE(SUM(calories), 0), COALESCE(SUM(protein), 0), COALESCE(SUM(carbs), 0), COALESCE(SUM(fats), 0)
		FROM meals WHERE user_id = ?`
	args := []any{userID}
	if rng != nil {
		query += ` AND date(created_at) BETWEEN ? AND ?`
		args = append(args, rng.From, rng.To)
	}

	var t models.MacroTotals
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&t.MealCount, &t.Calories, &t.Protein, &t.Carbs, &t.Fats); err != nil {
		return models.MacroTotals{}, err
	}
	return t, nil
}

func (r *MealRepository) list(ctx context.Context, query string, args ...any) ([]models.Meal, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Meal{}
	for rows.Next() {
		m, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (*models.Meal, error) {
	var m models.Meal
	var protein, carbs, fats sql.NullFloat64
	var imageURL sql.NullString
	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Calories, &protein, &carbs, &fats, &imageURL, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Protein = floatPtr(protein)
	m.Carbs = floatPtr(carbs)
	m.Fats = floatPtr(fats)
	if imageURL.Valid {
		v := imageURL.String
		m.ImageURL = &v
	}
	return &m, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
