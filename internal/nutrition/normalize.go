package nutrition

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hpungsan/plate/internal/errors"
)

// caloriePlaces is the rounding applied to calorie totals.
const caloriePlaces = 4

// ProteinTotal returns Σ(weightGrams × proteinPercentage / 100) over ingredients.
// The sum is exact in decimal; only the final float conversion is inexact.
func ProteinTotal(ingredients []Ingredient) float64 {
	sum := decimal.Zero
	for _, ing := range ingredients {
		w := decimal.NewFromFloat(ing.WeightGrams)
		p := decimal.NewFromFloat(ing.ProteinPercentage)
		sum = sum.Add(w.Mul(p).Shift(-2))
	}
	return sum.InexactFloat64()
}

// SumProtein adds up the protein totals of entries.
func SumProtein(entries []Entry) float64 {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(decimal.NewFromFloat(e.TotalProteinEstimate))
	}
	return sum.InexactFloat64()
}

// CaloriesTotal keeps a reported total when present, otherwise sums ingredient
// calories. Returns nil when neither is known.
func CaloriesTotal(reported *float64, ingredients []Ingredient) *float64 {
	if reported != nil {
		v := decimal.NewFromFloat(*reported).Round(caloriePlaces).InexactFloat64()
		return &v
	}
	sum := decimal.Zero
	seen := false
	for _, ing := range ingredients {
		if ing.Calories != nil {
			sum = sum.Add(decimal.NewFromFloat(*ing.Calories))
			seen = true
		}
	}
	if !seen {
		return nil
	}
	v := sum.Round(caloriePlaces).InexactFloat64()
	return &v
}

// Normalize converts a validated model payload into a Result. The model's own
// protein total is discarded.
func Normalize(p *Payload) *Result {
	ingredients := make([]Ingredient, 0, len(p.Ingredients))
	for _, mi := range p.Ingredients {
		ing := Ingredient{
			Name:              strings.TrimSpace(mi.Name),
			WeightGrams:       *mi.Weight,
			ProteinPercentage: *mi.ProteinPercentage,
			Calories:          mi.Calories,
		}
		if len(mi.AminoAcidMissing) > 0 {
			ing.MissingAminoAcids = append([]string(nil), mi.AminoAcidMissing...)
		}
		ingredients = append(ingredients, ing)
	}

	res := &Result{
		Name:                 strings.TrimSpace(p.Name),
		Ingredients:          ingredients,
		TotalProteinEstimate: ProteinTotal(ingredients),
		TotalCalories:        CaloriesTotal(p.TotalCalories, ingredients),
	}
	if rec := strings.TrimSpace(p.AminoRecommendation); rec != "" {
		res.AminoRecommendation = &rec
	}
	return res
}

// NormalizeIngredients validates caller-supplied ingredients (quick add) and
// returns a Result with derived totals.
func NormalizeIngredients(name string, ingredients []Ingredient) (*Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}
	if len(ingredients) == 0 {
		return nil, errors.NewInvalidRequest("at least one ingredient is required")
	}

	out := make([]Ingredient, 0, len(ingredients))
	for i, ing := range ingredients {
		ing.Name = strings.TrimSpace(ing.Name)
		if ing.Name == "" {
			return nil, errors.NewInvalidRequest("ingredient name is required")
		}
		if ing.WeightGrams < 0 {
			return nil, &errors.PlateError{
				Code:    errors.ErrInvalidRequest,
				Status:  400,
				Message: "ingredient weight must not be negative",
				Details: map[string]any{"index": i},
			}
		}
		if ing.ProteinPercentage < 0 || ing.ProteinPercentage > 100 {
			return nil, &errors.PlateError{
				Code:    errors.ErrInvalidRequest,
				Status:  400,
				Message: "ingredient proteinPercentage must be within 0-100",
				Details: map[string]any{"index": i},
			}
		}
		if ing.Calories != nil && *ing.Calories < 0 {
			return nil, errors.NewInvalidRequest("ingredient calories must not be negative")
		}
		out = append(out, ing)
	}

	return &Result{
		Name:                 name,
		Ingredients:          out,
		TotalProteinEstimate: ProteinTotal(out),
		TotalCalories:        CaloriesTotal(nil, out),
	}, nil
}

// Consistent reports whether an entry's stored total matches its ingredients.
func Consistent(e *Entry) bool {
	return e.TotalProteinEstimate == ProteinTotal(e.Ingredients)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
