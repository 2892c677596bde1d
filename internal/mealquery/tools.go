package mealquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"calorieTracker/internal/auth"
	"calorieTracker/models"
)

// Tool names.
const (
	ToolUserMeals  = "get_user_meals"
	ToolUserMacros = "get_user_macros"
)

// MealReader is the read side of the meal repository.
type MealReader interface {
	ListByUser(ctx context.Context, userID int64) ([]models.Meal, error)
	ListByUserAndDateRange(ctx context.Context, userID int64, from, to string) ([]models.Meal, error)
	Totals(ctx context.Context, userID int64, rng *models.DateRange) (models.MacroTotals, error)
}

// TokenVerifier checks session tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, bool)
}

var rangeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"from":   map[string]any{"type": "string", "description": "First day, YYYY-MM-DD"},
		"to":     map[string]any{"type": "string", "description": "Last day, YYYY-MM-DD"},
		"date":   map[string]any{"type": "string", "description": "Single day, YYYY-MM-DD"},
		"userId": map[string]any{"type": "number", "description": "Must match the token's user when given"},
	},
}

var tools = []Tool{
	{Name: ToolUserMeals, Description: "List the authenticated user's meals, newest first, optionally within a date range", InputSchema: rangeSchema},
	{Name: ToolUserMacros, Description: "Sum calories and macros of the authenticated user's meals, optionally within a date range", InputSchema: rangeSchema},
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *Error) {
	var p CallParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, rpcError(CodeInvalidParams, "invalid params: %v", err)
	}
	if p.Name != ToolUserMeals && p.Name != ToolUserMacros {
		return nil, rpcError(CodeMethodNotFound, "Unknown tool: %s", p.Name)
	}

	claims, ok := s.tokens.Verify(p.Token)
	if p.Token == "" || !ok {
		return nil, rpcError(CodeUnauthorized, "Unauthorized")
	}

	var args ToolArguments
	if err := decodeParams(p.Arguments, &args); err != nil {
		return nil, rpcError(CodeInvalidParams, "invalid arguments: %v", err)
	}
	for _, id := range []*UserID{args.UserID, args.UserIDAlt} {
		if id != nil && int64(*id) != claims.UserID {
			return nil, rpcError(CodeUnauthorized, "Unauthorized")
		}
	}
	from, to := args.From, args.To
	if args.Date != "" {
		if from != "" || to != "" {
			return nil, rpcError(CodeInvalidParams, "date cannot be combined with from/to")
		}
		from, to = args.Date, args.Date
	}
	rng, err := models.ParseDateRange(from, to)
	if err != nil {
		return nil, rpcError(CodeInvalidParams, "%v", err)
	}

	var payload any
	switch p.Name {
	case ToolUserMeals:
		if rng == nil {
			payload, err = s.meals.ListByUser(ctx, claims.UserID)
		} else {
			payload, err = s.meals.ListByUserAndDateRange(ctx, claims.UserID, rng.From, rng.To)
		}
	case ToolUserMacros:
		payload, err = s.meals.Totals(ctx, claims.UserID, rng)
	}
	if err != nil {
		s.log.Error(ctx, "tool failed", "tool", p.Name, "user_id", claims.UserID, "error", err)
		return nil, rpcError(CodeInternal, "Database error")
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, rpcError(CodeInternal, "encode result: %v", err)
	}
	s.log.Debug(ctx, "tool completed", "tool", p.Name, "user_id", claims.UserID)
	return ToolResult{Content: []Content{{Type: "text", Text: string(text)}}}, nil
}

// decodeParams decodes raw into dst; empty or null raw leaves dst untouched.
func decodeParams(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
