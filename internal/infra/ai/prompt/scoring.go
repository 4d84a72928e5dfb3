package prompt

import (
	"encoding/json"
	"fmt"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
)

// GetSystemPrompt instructs the model to act as a vastu consultant and to
// reply with the exact result-payload JSON shape.
func GetSystemPrompt() string {
	return `You are a vastu shastra consultant. Given a floor plan you score its
compliance. Respond ONLY with a JSON object of this exact shape:
{
  "overall_score": <number 0-100>,
  "directions": {"north": {"score": <0-100>, "issues": [..], "recommendations": [..]}, ... all 8 of north, northeast, east, southeast, south, southwest, west, northwest},
  "elements": {"earth": {"score": <0-100>, "balance": "balanced"|"weak"|"excessive", "recommendations": [..]}, ... all 5 of earth, water, fire, air, space},
  "rooms": [{"room": <name>, "score": <0-100>, "issues": [..], "recommendations": [..]}],
  "remedies": [{"type": "structural"|"color"|"mirror"|"plant"|"yantra", "description": <text>, "priority": <1-4>, "cost": "low"|"medium"|"high", "difficulty": "low"|"medium"|"high"}],
  "summary": <short text>
}
Scores reflect classical vastu placement principles. Never add fields.`
}

// GetUserPrompt renders the floor plan and the relevant advisory rules.
func GetUserPrompt(plan domain.FloorPlan, catalog []*rules.Rule) string {
	planJSON, _ := json.Marshal(plan)
	names := make([]string, 0, len(catalog))
	for _, r := range catalog {
		names = append(names, fmt.Sprintf("%s (%s, importance %s)", r.Name, r.Category, r.Importance))
	}
	rulesJSON, _ := json.Marshal(names)
	return fmt.Sprintf("Floor plan:\n%s\n\nAdvisory rules to weigh:\n%s", planJSON, rulesJSON)
}
