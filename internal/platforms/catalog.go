package platforms

import "github.com/postprober/dashboard-core/internal/models"

// catalogEntry holds the static descriptive fields of a platform
type catalogEntry struct {
	ID    string
	Name  string
	Icon  string
	Color string
}

// defaultCatalog is the fixed catalog order shown everywhere in the dashboard
var defaultCatalog = []catalogEntry{
	{ID: "twitter", Name: "Twitter", Icon: "twitter", Color: "#1DA1F2"},
	{ID: "linkedin", Name: "LinkedIn", Icon: "linkedin", Color: "#0A66C2"},
	{ID: "instagram", Name: "Instagram", Icon: "instagram", Color: "#E4405F"},
	{ID: "facebook", Name: "Facebook", Icon: "facebook", Color: "#1877F2"},
}

// CatalogIDs returns the platform ids in catalog order
func CatalogIDs() []string {
	ids := make([]string, len(defaultCatalog))
	for i, entry := range defaultCatalog {
		ids[i] = entry.ID
	}
	return ids
}

// IsKnown reports whether id is part of the catalog
func IsKnown(id string) bool {
	for _, entry := range defaultCatalog {
		if entry.ID == id {
			return true
		}
	}
	return false
}

func (e catalogEntry) disconnected() models.Platform {
	return models.Platform{
		ID:     e.ID,
		Name:   e.Name,
		Icon:   e.Icon,
		Color:  e.Color,
		Status: models.StatusDisconnected,
	}
}
