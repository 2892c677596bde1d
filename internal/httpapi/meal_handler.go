package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"calorieTracker/models"
)

type createMealRequest struct {
	Name     string   `json:"name"`
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Carbs    *float64 `json:"carbs"`
	Fats     *float64 `json:"fats"`
	ImageURL *string  `json:"imageUrl"`
}

func (req createMealRequest) toMeal(userID int64) (*models.Meal, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Calories == nil {
		return nil, ErrBadRequest("Name and calories are required")
	}
	c := *req.Calories
	if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 || c != math.Trunc(c) || c > math.MaxInt32 {
		return nil, ErrBadRequest("Calories must be a positive number")
	}
	macros := []struct {
		label string
		value *float64
	}{{"Protein", req.Protein}, {"Carbs", req.Carbs}, {"Fats", req.Fats}}
	for _, m := range macros {
		if v := m.value; v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return nil, ErrBadRequest(m.label + " must be a non-negative number")
		}
	}
	m := &models.Meal{
		UserID:   userID,
		Name:     name,
		Calories: int(c),
		Protein:  req.Protein,
		Carbs:    req.Carbs,
		Fats:     req.Fats,
	}
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		u := strings.TrimSpace(*req.ImageURL)
		m.ImageURL = &u
	}
	return m, nil
}

// dateRangeFromQuery reads optional from/to (YYYY-MM-DD) parameters. It
// returns nil when neither is present.
func dateRangeFromQuery(r *http.Request) (*models.DateRange, error) {
	q := r.URL.Query()
	rng, err := models.ParseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return nil, ErrBadRequestWrap("Invalid date range, expected from/to as YYYY-MM-DD", err)
	}
	return rng, nil
}

func (a *API) handleListMeals(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	rng, err := dateRangeFromQuery(r)
	if err != nil {
		return err
	}

	var meals []models.Meal
	if rng == nil {
		meals, err = a.deps.Meals.ListByUser(r.Context(), p.UserID)
	} else {
		meals, err = a.deps.Meals.ListByUserAndDateRange(r.Context(), p.UserID, rng.From, rng.To)
	}
	if err != nil {
		return ErrInternalWrap("list meals", err)
	}
	respondJSON(w, http.StatusOK, meals)
	return nil
}

func (a *API) handleMealSummary(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	rng, err := dateRangeFromQuery(r)
	if err != nil {
		return err
	}
	totals, err := a.deps.Meals.Totals(r.Context(), p.UserID, rng)
	if err != nil {
		return ErrInternalWrap("meal totals", err)
	}
	respondJSON(w, http.StatusOK, totals)
	return nil
}

func (a *API) handleCreateMeal(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	var req createMealRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	meal, err := req.toMeal(p.UserID)
	if err != nil {
		return err
	}
	created, err := a.deps.Meals.Create(r.Context(), meal)
	if err != nil {
		return ErrInternalWrap("create meal", err)
	}
	respondJSON(w, http.StatusCreated, created)
	return nil
}

func (a *API) handleDeleteMeal(w http.ResponseWriter, r *http.Request) error {
	p, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return ErrBadRequest("Invalid meal ID")
	}
	n, err := a.deps.Meals.Delete(r.Context(), id, p.UserID)
	if err != nil {
		return ErrInternalWrap("delete meal", err)
	}
	if n == 0 {
		return ErrNotFound("Meal not found or unauthorized")
	}
	respondJSON(w, http.StatusOK, messageBody{Message: "Meal deleted successfully"})
	return nil
}
