package chi

import (
	"encoding/json"
	"net/http"

	"github.com/stacksearch/relay/internal/domain"
)

// searchRequest is the POST /search payload.
type searchRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	Rewrite bool   `json:"rewrite"`
}

// searchResponse is the POST /search reply.
type searchResponse struct {
	Query           string           `json:"query"`
	ExpandedQueries []string         `json:"expanded_queries"`
	Results         []map[string]any `json:"results"`
	TotalResults    int              `json:"total_results"`
	Status          string           `json:"status"`
}

// webhookPayload mirrors the Contentstack webhook envelope.
type webhookPayload struct {
	Event          string `json:"event"`
	ContentTypeUID string `json:"content_type_uid"`
	Data           struct {
		Entry map[string]any `json:"entry"`
	} `json:"data"`
}

// matchToItem flattens match metadata into the result object, with the
// reserved keys taking precedence over metadata of the same name.
func matchToItem(m domain.Match) map[string]any {
	item := make(map[string]any, len(m.Metadata)+3)
	for k, v := range m.Metadata {
		item[k] = v
	}
	item["product_id"] = m.EntryID
	item["score"] = m.Score
	item["query_used"] = m.QueryUsed
	if _, ok := item["title"]; !ok {
		item["title"] = ""
	}
	if _, ok := item["description"]; !ok {
		item["description"] = ""
	}
	return item
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
