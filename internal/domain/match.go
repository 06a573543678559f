package domain

// Match is one candidate result from a vector index retrieval.
type Match struct {
	EntryID   string
	Score     float64
	Metadata  map[string]string
	QueryUsed string
}
