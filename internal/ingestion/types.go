// Package ingestion defines the request and response bodies of the
// ingestion endpoints.
package ingestion

// IndexRequest is the JSON body accepted by POST /index.
type IndexRequest struct {
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// IndexResponse is returned with 201 once the document is committed.
type IndexResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Document string `json:"document"`
	DocID    uint64 `json:"doc_id"`
}

// ErrorResponse is the body of every failed ingestion request.
type ErrorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// UploadSummary reports a multipart upload to POST /index_path.
type UploadSummary struct {
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Warnings   []string `json:"warnings"`
	Generation uint64   `json:"generation"`
}

// DatabaseSummary reports a walk of the configured database.
type DatabaseSummary struct {
	Tables       []string `json:"tables"`
	Documents    int      `json:"documents"`
	Failed       int      `json:"failed"`
	FailedTables []string `json:"failed_tables"`
	Generation   uint64   `json:"generation"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
