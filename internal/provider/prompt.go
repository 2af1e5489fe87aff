package provider

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tabtriage/tabtriage/internal/addr"
	"github.com/tabtriage/tabtriage/internal/types"
)

// maxPromptURL bounds the address length embedded in the prompt so one
// pathological tab cannot blow up the payload.
const maxPromptURL = 128

const promptTemplate = `You are triaging open browser tabs. Assign every tab exactly one tier:

1 = can close: disposable pages — search results, feeds, social media, old news
2 = save for later: reference material worth keeping — docs, articles, repositories
3 = important: active work — issue trackers, reviews, dashboards, mail, anything in progress

Tabs:
%s

Respond with ONLY a JSON object mapping each tab id to its tier, for example {"1":3,"2":1}. No explanations.`

type promptTab struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// BuildPrompt renders the classification prompt for the given units.
// Each unit appears as {id, title, url} with the url truncated to 128
// characters; the surrogate id keys the provider's reply.
func BuildPrompt(units []*types.Unit) (string, error) {
	payload := make([]promptTab, 0, len(units))
	for _, u := range units {
		payload = append(payload, promptTab{
			ID:    strconv.Itoa(u.ID),
			Title: u.Title,
			URL:   addr.Truncate(u.Address, maxPromptURL),
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prompt payload: %w", err)
	}
	return fmt.Sprintf(promptTemplate, data), nil
}
