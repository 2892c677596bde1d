package models

// Meal is a single logged meal owned by exactly one user.
// Macros and ImageURL are nullable in DB; pointers distinguish null vs zero.
type Meal struct {
	ID        int64    `db:"id" json:"id"`
	UserID    int64    `db:"user_id" json:"user_id"`
	Name      string   `db:"name" json:"name"`
	Calories  int      `db:"calories" json:"calories"`
	Protein   *float64 `db:"protein" json:"protein,omitempty"`
	Carbs     *float64 `db:"carbs" json:"carbs,omitempty"`
	Fats      *float64 `db:"fats" json:"fats,omitempty"`
	ImageURL  *string  `db:"image_url" json:"image_url,omitempty"`
	CreatedAt string   `db:"created_at" json:"created_at"`
}

// MacroTotals aggregates a user's meals.
type MacroTotals struct {
	MealCount int     `json:"meal_count"`
	Calories  int64   `json:"calories"`
	Protein   float64 `json:"protein"`
	Carbs     float64 `json:"carbs"`
	Fats      float64 `json:"fats"`
}

// DateRange is an inclusive calendar-date filter in YYYY-MM-DD form.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}
