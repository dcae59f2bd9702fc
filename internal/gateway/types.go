package gateway

// RetrievedNode is one passage returned by knowledge base retrieval.
type RetrievedNode struct {
	Text             string  `json:"text"`
	Score            float64 `json:"score"`
	SourceDocumentID string  `json:"sourceDocumentId,omitempty"`
	SourceTitle      string  `json:"sourceTitle,omitempty"`
}

// RetrievalResult is the outcome of a retrieval query. An owner without
// a knowledge base, or any remote failure, yields an empty node list;
// retrieval is best-effort and never raises.
type RetrievalResult struct {
	Nodes     []RetrievedNode `json:"nodes"`
	RequestID string          `json:"requestId,omitempty"`
}
