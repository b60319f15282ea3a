package nutrition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/plate/internal/errors"
)

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// PayloadIngredient is one ingredient as the model reports it.
type PayloadIngredient struct {
	Name              string   `json:"name" validate:"required"`
	Weight            *float64 `json:"weight" validate:"required,gte=0"`
	ProteinPercentage *float64 `json:"proteinPercentage" validate:"required,gte=0,lte=100"`
	Calories          *float64 `json:"calories" validate:"omitempty,gte=0"`
	AminoAcidMissing  []string `json:"aminoAcidMissing"`
}

// Payload is the model's JSON answer. Exactly one of Error or the nutrition
// fields is expected.
type Payload struct {
	Error string `json:"error,omitempty"`

	Name                 string              `json:"name" validate:"required"`
	TotalProteinEstimate *float64            `json:"totalProteinEstimate"`
	TotalCalories        *float64            `json:"totalCalories" validate:"omitempty,gte=0"`
	Ingredients          []PayloadIngredient `json:"ingredients" validate:"required,min=1,dive"`
	AminoRecommendation  string              `json:"aminoRecommendation"`
}

// ParsePayload decodes and validates raw model output. An explicit error field
// yields NO_FOOD_DETECTED; anything that is not the expected shape yields
// UPSTREAM_PARSE. Nothing unvalidated leaves this function.
func ParsePayload(raw string) (*Payload, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, errors.NewUpstreamParse("empty model response")
	}

	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, errors.NewUpstreamParse(fmt.Sprintf("model response is not valid JSON: %v", err))
	}

	if strings.TrimSpace(p.Error) != "" {
		if strings.Contains(strings.ToLower(p.Error), "no food") {
			return nil, errors.NewNoFoodDetected()
		}
		return nil, errors.NewUpstreamParse(fmt.Sprintf("model reported error: %s", p.Error))
	}

	if err := validate.Struct(&p); err != nil {
		return nil, errors.NewUpstreamParse(fmt.Sprintf("model response does not match schema: %v", err))
	}
	return &p, nil
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
