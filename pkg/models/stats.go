package models

// Stats holds the aggregate dashboard counters.
type Stats struct {
	Datasets int   `json:"datasets"`
	Models   int   `json:"models"`
	Deployed int   `json:"deployed"`
	APICalls int64 `json:"api_calls"`
}
