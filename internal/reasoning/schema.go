package reasoning

import (
	"MatchPulse/internal/model"

	"google.golang.org/genai"
)

func stringSchema(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func stringList(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: desc}
}

func classificationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"importance_score": {Type: genai.TypeInteger, Description: "1-3 routine, 4-6 newsworthy, 7-8 important, 9-10 breaking."},
			"urgency_level": {
				Type: genai.TypeString,
				Enum: []string{string(model.UrgencyBreaking), string(model.UrgencyImportant), string(model.UrgencyNormal)},
			},
			"impact_reason": stringSchema("One or two sentences explaining the score."),
			"candidate_fixture_ids": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeInteger},
				Description: "IDs from the supplied fixture list that this content affects. Empty if none.",
			},
		},
		Required: []string{"importance_score", "urgency_level", "impact_reason", "candidate_fixture_ids"},
	}
}

func segmentationSchema() *genai.Schema {
	chunk := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"chunk_text":           stringSchema("Verbatim text of the fragment."),
			"summary":              stringSchema("One sentence summary."),
			"chunk_type":           {Type: genai.TypeString, Enum: model.Categories},
			"tone":                 {Type: genai.TypeString, Enum: model.Tones},
			"importance_score":     {Type: genai.TypeInteger, Description: "1 (trivia) to 5 (match-defining)."},
			"event_date_mentioned": stringSchema("ISO date (YYYY-MM-DD) of the event described, if any."),
			"linked_team_names":    stringList("Teams mentioned in this fragment."),
			"linked_player_names":  stringList("Players mentioned in this fragment."),
			"linked_coach_names":   stringList("Coaches or managers mentioned in this fragment."),
			"quoted_person":        stringSchema("Person quoted, if any."),
			"source_reference":     stringSchema("Original source cited, if any."),
		},
		Required: []string{"chunk_text", "summary", "chunk_type", "tone", "importance_score",
			"linked_team_names", "linked_player_names", "linked_coach_names"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"chunks": {Type: genai.TypeArray, Items: chunk},
		},
		Required: []string{"chunks"},
	}
}

func predictionSchema() *genai.Schema {
	bet := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"market":                  stringSchema("Market name, e.g. 1X2 or Over/Under 2.5."),
			"selection":               stringSchema("Selected outcome."),
			"recommended_probability": {Type: genai.TypeNumber, Description: "0-1."},
			"bookmaker_odds":          {Type: genai.TypeNumber, Description: "Decimal odds >= 1."},
			"implied_probability":     {Type: genai.TypeNumber, Description: "0-1."},
			"confidence":              {Type: genai.TypeNumber, Description: "0-100."},
			"stake_percentage":        {Type: genai.TypeNumber, Description: "0-100."},
			"reasoning":               stringSchema("Why this bet has value."),
		},
		Required: []string{"market", "confidence", "reasoning"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"chain_of_thought": stringSchema("Step by step analysis."),
			"final_prediction": stringSchema("Short final call."),
			"confidence_score": {Type: genai.TypeInteger, Description: "0-100."},
			"value_bets":       {Type: genai.TypeArray, Items: bet},
			"risk_factors":     stringList("Things that could invalidate the call."),
			"key_insights":     stringList("Most decisive facts."),
			"context_quality":  {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
		},
		Required: []string{"chain_of_thought", "final_prediction", "confidence_score", "value_bets"},
	}
}

func impactSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"impact_level": {
				Type: genai.TypeString,
				Enum: []string{string(model.ImpactHigh), string(model.ImpactMedium), string(model.ImpactLow)},
			},
			"confidence":         {Type: genai.TypeNumber, Description: "0-1."},
			"key_insight":        stringSchema("Single most important consequence for the match."),
			"reasoning":          stringSchema("How the news changes the existing prediction."),
			"probability_change": stringSchema("Expected shift in win probabilities."),
			"headline":           stringSchema("Short notification headline."),
		},
		Required: []string{"impact_level", "confidence", "key_insight", "reasoning"},
	}
}
