package output

// Report is the result of one CLI command.
type Report struct {
	Command string   `json:"command"`
	Bucket  string   `json:"bucket,omitempty"`
	Cached  []string `json:"cached,omitempty"`
	Kept    []string `json:"kept,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
	Buckets []Bucket `json:"buckets,omitempty"`
	Fetch   *Fetch   `json:"fetch,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Bucket summarizes one bucket in a listing.
type Bucket struct {
	Name    string   `json:"name"`
	Current bool     `json:"current"`
	Entries []string `json:"entries,omitempty"`
	Count   int      `json:"count"`
}

// Fetch describes how a single intercepted request was answered.
type Fetch struct {
	URL         string `json:"url"`
	Source      string `json:"source"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Bytes       int    `json:"bytes"`
}
