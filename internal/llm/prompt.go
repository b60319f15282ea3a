package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/plate/internal/nutrition"
)

// SystemPrompt fixes the model's role and output contract.
const SystemPrompt = `You are a nutrition expert. You estimate the ingredients of a meal and their protein content.
Respond with a single JSON object and nothing else, using exactly this shape:
{
  "name": string,
  "totalProteinEstimate": number,
  "totalCalories": number,
  "ingredients": [
    {"name": string, "weight": number, "proteinPercentage": number, "calories": number, "aminoAcidMissing": [string]}
  ],
  "aminoRecommendation": string
}
"weight" is grams. "proteinPercentage" is grams of protein per 100 grams, between 0 and 100.
"aminoRecommendation" is short markdown suggesting foods that complete missing essential amino acids.
If no food can be identified, respond with {"error": "No food detected"}.`

// ImagePrompt builds the request for a meal photo.
func ImagePrompt(imageURL string) Request {
	return Request{
		System:   SystemPrompt,
		Text:     "Analyze the meal in this photo.",
		ImageURL: imageURL,
	}
}

// TextPrompt builds the request for a free-text meal description.
func TextPrompt(description string) Request {
	return Request{
		System: SystemPrompt,
		Text:   fmt.Sprintf("Analyze this meal description:\n%s", strings.TrimSpace(description)),
	}
}

// FixPrompt builds the request that corrects an existing entry. The snapshot is
// rendered without ids or bookkeeping so identical input gives identical prompts.
func FixPrompt(snapshot nutrition.Entry, instruction string) Request {
	view := struct {
		Name                string                 `json:"name"`
		Ingredients         []nutrition.Ingredient `json:"ingredients"`
		TotalCalories       *float64               `json:"totalCalories,omitempty"`
		AminoRecommendation *string                `json:"aminoRecommendation,omitempty"`
	}{
		Name:                snapshot.Name,
		Ingredients:         snapshot.Ingredients,
		TotalCalories:       snapshot.TotalCalories,
		AminoRecommendation: snapshot.AminoRecommendation,
	}
	data, _ := json.MarshalIndent(view, "", "  ")

	var b strings.Builder
	b.WriteString("Here is a previously analyzed meal (ingredient weight is weightGrams):\n")
	b.Write(data)
	b.WriteString("\n\nApply this correction from the user and return the complete corrected meal:\n")
	b.WriteString(strings.TrimSpace(instruction))

	return Request{
		System:   SystemPrompt,
		Text:     b.String(),
		ImageURL: "",
	}
}
