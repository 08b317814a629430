package upload

import (
	"time"

	"github.com/google/uuid"
)

// Status is the pipeline state of an upload job. Transitions are linear
// and never branch back; Completed and Errored are terminal.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusHashing    Status = "hashing"
	StatusEncrypting Status = "encrypting"
	StatusUploading  Status = "uploading"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job represents one in-flight or finished upload. A single orchestrator
// goroutine owns and mutates a Job; everyone else reads Snapshots out of
// the progress registry.
type Job struct {
	ID               uuid.UUID
	OwnerID          uuid.UUID
	Status           Status
	Progress         int
	Filename         string
	DeclaredSize     int64
	MimeType         string
	Digest           string
	EncryptionKeyRef string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Snapshot is the poll-visible subset of a Job.
type Snapshot struct {
	Status   Status
	Progress int
	Filename string
	Message  string
}

// Snapshot copies the observable fields of the job.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		Status:   j.Status,
		Progress: j.Progress,
		Filename: j.Filename,
		Message:  j.ErrorMessage,
	}
}

type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkUploaded ChunkStatus = "uploaded"
	ChunkFailed   ChunkStatus = "failed"
)

// ChunkDescriptor tracks one part of a multipart upload. Indices are
// 1-based and contiguous, matching stream position.
type ChunkDescriptor struct {
	Index  int32
	Offset int64
	Size   int64
	ETag   string
	Status ChunkStatus
}

// Record is the persisted history row for a completed upload.
type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Filename    string
	Digest      string
	ObjectKey   string
	Status      Status
	CreatedAt   time.Time
	CompletedAt time.Time
}
