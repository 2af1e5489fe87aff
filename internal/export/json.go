package export

import (
	"encoding/json"
	"time"

	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/types"
)

type jsonExport struct {
	ExportedAt time.Time  `json:"exported_at"`
	UnitCount  int        `json:"unit_count"`
	Tiers      []jsonTier `json:"tiers"`
}

type jsonTier struct {
	Name  string     `json:"name"`
	Units []jsonUnit `json:"units"`
}

type jsonUnit struct {
	Title          string `json:"title,omitempty"`
	Address        string `json:"address"`
	Domain         string `json:"domain,omitempty"`
	Provenance     string `json:"provenance,omitempty"`
	InstanceIDs    []int  `json:"instance_ids,omitempty"`
	DuplicateCount int    `json:"duplicate_count"`
	AlreadySaved   bool   `json:"already_saved,omitempty"`
}

// JSON formats a state snapshot as a JSON document, tiers most
// important first. Empty tiers are included so consumers see all four.
func JSON(snap *types.StateSnapshot) (string, error) {
	out := jsonExport{
		ExportedAt: time.Now(),
		UnitCount:  snap.UnitCount(),
		Tiers:      make([]jsonTier, 0, 4),
	}

	for _, tier := range displayOrder() {
		jt := jsonTier{
			Name:  tier.String(),
			Units: make([]jsonUnit, 0, len(snap.Categorized[tier])),
		}
		for _, u := range snap.Categorized[tier] {
			jt.Units = append(jt.Units, jsonUnit{
				Title:          u.Title,
				Address:        u.Address,
				Domain:         u.Domain,
				Provenance:     string(u.Provenance),
				InstanceIDs:    u.DuplicateIDs,
				DuplicateCount: u.DuplicateCount,
				AlreadySaved:   u.AlreadySaved,
			})
		}
		out.Tiers = append(out.Tiers, jt)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

type jsonRecord struct {
	Address         string     `json:"address"`
	Title           string     `json:"title,omitempty"`
	Domain          string     `json:"domain,omitempty"`
	Category        string     `json:"category"`
	Provenance      string     `json:"provenance,omitempty"`
	Saved           bool       `json:"saved"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastCategorized *time.Time `json:"last_categorized,omitempty"`
}

// URLsJSON formats persisted records as a JSON document.
func URLsJSON(recs []storage.URLRecord) (string, error) {
	out := make([]jsonRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, jsonRecord{
			Address:         r.Address,
			Title:           r.Title,
			Domain:          r.Domain,
			Category:        r.Category.String(),
			Provenance:      string(r.Provenance),
			Saved:           r.Saved,
			FirstSeen:       r.FirstSeen,
			LastCategorized: r.LastCategorized,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
