package kbclient

// UploadLeaseRequest asks the remote store for a short-lived upload credential.
type UploadLeaseRequest struct {
	CategoryID string `json:"categoryId"`
	FileName   string `json:"fileName"`
	MD5        string `json:"md5"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// UploadLease is the credential returned for a single content upload.
// URL, Method and Headers must be used verbatim for the byte transfer.
type UploadLease struct {
	LeaseID string            `json:"leaseId"`
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// SearchNode is one retrieved passage with its similarity score.
type SearchNode struct {
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResponse is the result of a similarity search against an index.
type SearchResponse struct {
	RequestID string       `json:"requestId"`
	Nodes     []SearchNode `json:"nodes"`
}
