package insights

import "encoding/json"

// Hashtag is one suggestion from the hashtag generator. Fields beyond the
// known ones are kept in Extra and written back out unchanged.
type Hashtag struct {
	Tag      string                     `json:"tag"`
	Category string                     `json:"category,omitempty"`
	Reach    string                     `json:"reach,omitempty"`
	Extra    map[string]json.RawMessage `json:"-"`
}

type hashtagFields Hashtag

var hashtagKnownKeys = []string{"tag", "category", "reach"}

func (h *Hashtag) UnmarshalJSON(data []byte) error {
	var known hashtagFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range hashtagKnownKeys {
		delete(all, key)
	}

	*h = Hashtag(known)
	h.Extra = nil
	if len(all) > 0 {
		h.Extra = all
	}
	return nil
}

func (h Hashtag) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(h.Extra)+len(hashtagKnownKeys))
	for key, value := range h.Extra {
		out[key] = value
	}
	out["tag"] = h.Tag
	if h.Category != "" {
		out["category"] = h.Category
	}
	if h.Reach != "" {
		out["reach"] = h.Reach
	}
	return json.Marshal(out)
}

// Optimization is the rewritten post and its score
type Optimization struct {
	OptimizedContent string   `json:"optimized_content"`
	Score            float64  `json:"score"`
	Improvements     []string `json:"improvements"`
	OriginalLength   int      `json:"original_length,omitempty"`
	OptimizedLength  int      `json:"optimized_length,omitempty"`
}

// HashtagSet is the generator's suggestion with its reasoning
type HashtagSet struct {
	Hashtags []Hashtag `json:"hashtags"`
	Strategy string    `json:"strategy,omitempty"`
}

// OptimizeResult is returned by OptimizeWithHashtags
type OptimizeResult struct {
	Platform       string       `json:"platform"`
	Optimization   Optimization `json:"optimization"`
	Hashtags       HashtagSet   `json:"hashtags"`
	ProcessingTime float64      `json:"processing_time"`
}

// Tags returns the bare hashtag strings in suggestion order
func (r OptimizeResult) Tags() []string {
	tags := make([]string, 0, len(r.Hashtags.Hashtags))
	for _, h := range r.Hashtags.Hashtags {
		tags = append(tags, h.Tag)
	}
	return tags
}

// AnalyticsDashboard bundles the trending, best-time and performance views
// for one platform. The sections are passed through as the backend sends them.
type AnalyticsDashboard struct {
	Platform       string          `json:"platform"`
	Trending       json.RawMessage `json:"trending"`
	BestTimes      json.RawMessage `json:"best_times"`
	Performance    json.RawMessage `json:"performance"`
	ProcessingTime float64         `json:"processing_time"`
}

type envelope struct {
	Success        bool            `json:"success"`
	Result         json.RawMessage `json:"result"`
	ProcessingTime float64         `json:"processing_time"`
	Detail         string          `json:"detail,omitempty"`
	Error          string          `json:"error,omitempty"`
}
