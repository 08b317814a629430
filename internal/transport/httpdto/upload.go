package httpdto

// The upload and progress endpoints speak a fixed wire contract and do
// not use the generic response envelope.

// UploadAcceptedResponse is returned by POST /upload.
type UploadAcceptedResponse struct {
	UploadID string `json:"upload_id"`
}

// UploadErrorResponse is the 4xx body for upload and progress calls.
type UploadErrorResponse struct {
	Error string `json:"error"`
}

// ProgressResponse is returned by GET /upload-progress/:id.
type ProgressResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

// HistoryItem is one row of GET /upload-history.
type HistoryItem struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	FileHash  string `json:"file_hash"`
	CreatedAt string `json:"created_at"`
}
