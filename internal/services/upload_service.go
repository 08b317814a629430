package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"secure-upload/internal/cryptox"
	"secure-upload/internal/domain/upload"
	"secure-upload/internal/hashing"
	"secure-upload/internal/progress"
	upload_errors "secure-upload/pkg/errors"
	"secure-upload/pkg/logger"
)

// Progress bands per pipeline stage. Uploading gets the widest band
// because it dominates wall-clock time.
const (
	hashingBandEnd    = 20
	encryptingBandEnd = 40
	uploadingBandEnd  = 95
	completingBand    = 99
)

const maxFilenameLen = 255

// ObjectUploader drives the chunked transfer of an encrypted stream.
type ObjectUploader interface {
	Upload(ctx context.Context, key, contentType, originalFilename string, r io.Reader, totalSize int64, onPart func(uploaded int64)) error
}

// SecretStore persists key material and digests outside the data path.
type SecretStore interface {
	Put(ctx context.Context, jobID uuid.UUID, digest string, key, iv []byte) error
	SecretName(jobID uuid.UUID) string
}

// HistoryStore records completed uploads. May be nil when no database
// is configured.
type HistoryStore interface {
	Create(ctx context.Context, record *upload.Record) error
}

// UploadService owns the lifecycle of upload jobs: it validates intake
// synchronously, then runs the hash / encrypt / multipart-upload / persist
// pipeline on its own goroutine, publishing every transition to the
// progress registry. Exactly one goroutine mutates a given job.
type UploadService struct {
	registry *progress.Registry
	uploader ObjectUploader
	secrets  SecretStore
	history  HistoryStore
	logger   *logger.Logger

	maxUploadBytes int64
	jobTimeout     time.Duration
	spoolDir       string
}

func NewUploadService(registry *progress.Registry, uploader ObjectUploader, secrets SecretStore, history HistoryStore, l *logger.Logger, maxUploadBytes int64, jobTimeout time.Duration) *UploadService {
	return &UploadService{
		registry:       registry,
		uploader:       uploader,
		secrets:        secrets,
		history:        history,
		logger:         l,
		maxUploadBytes: maxUploadBytes,
		jobTimeout:     jobTimeout,
		spoolDir:       os.TempDir(),
	}
}

// Submit validates the upload request, spools the incoming stream to
// disk, registers a new job and starts its pipeline. It returns the job
// id without waiting for any processing stage. Validation failures are
// synchronous and leave no job behind.
func (s *UploadService) Submit(ctx context.Context, stream io.Reader, filename string, declaredSize int64, mimeType string) (uuid.UUID, error) {
	if err := s.validate(filename, declaredSize, mimeType); err != nil {
		return uuid.Nil, err
	}

	job := &upload.Job{
		ID:           uuid.New(),
		Status:       upload.StatusStarting,
		Filename:     filename,
		DeclaredSize: declaredSize,
		MimeType:     mimeType,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if ownerID, ok := UserIDFromContext(ctx); ok {
		job.OwnerID = ownerID
	}

	spool, err := s.spoolStream(stream, declaredSize, job.ID)
	if err != nil {
		return uuid.Nil, err
	}

	s.registry.Set(job.ID, job.Snapshot())
	s.logger.Infof("upload accepted: job=%s file=%s size=%d", job.ID, filename, declaredSize)

	go s.run(job, spool)

	return job.ID, nil
}

func (s *UploadService) validate(filename string, declaredSize int64, mimeType string) error {
	if declaredSize <= 0 {
		return fmt.Errorf("%w: empty file", upload_errors.ErrValidation)
	}
	if declaredSize > s.maxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", upload_errors.ErrTooLarge, declaredSize, s.maxUploadBytes)
	}
	if filename == "" || len(filename) > maxFilenameLen {
		return fmt.Errorf("%w: bad filename", upload_errors.ErrValidation)
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base != filename || base == "." || base == ".." {
		return fmt.Errorf("%w: bad filename", upload_errors.ErrValidation)
	}
	if mimeType != "" && !strings.Contains(mimeType, "/") {
		return fmt.Errorf("%w: bad content type", upload_errors.ErrValidation)
	}
	return nil
}

// spoolStream copies the request body to a job-owned temp file so the
// pipeline can read it after the request goes away. Window-sized copies
// keep memory bounded regardless of file size.
func (s *UploadService) spoolStream(stream io.Reader, declaredSize int64, jobID uuid.UUID) (*os.File, error) {
	spool, err := os.CreateTemp(s.spoolDir, "upload-"+jobID.String()+"-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
	}

	// One byte past declaredSize exposes oversized bodies without
	// reading them to the end.
	n, err := io.Copy(spool, io.LimitReader(stream, declaredSize+1))
	if err != nil || n != declaredSize {
		spool.Close()
		os.Remove(spool.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
		}
		return nil, fmt.Errorf("%w: received %d bytes, declared %d", upload_errors.ErrValidation, n, declaredSize)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, fmt.Errorf("%w: %v", upload_errors.ErrIO, err)
	}
	return spool, nil
}

// run executes the pipeline stages strictly in sequence. Every exit
// path leaves the job in a terminal state, and any multipart upload the
// uploader initiates is completed or aborted inside the uploader.
func (s *UploadService) run(job *upload.Job, spool *os.File) {
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	// Stage 1: digest.
	s.transition(job, upload.StatusHashing)
	digest, err := hashing.Sum(spool, job.DeclaredSize, func(read int64) {
		s.setProgress(job, band(read, job.DeclaredSize, 0, hashingBandEnd))
	})
	if err != nil {
		s.fail(job, err)
		return
	}
	job.Digest = digest

	// Stage 2: encrypt to a second spool file.
	s.transition(job, upload.StatusEncrypting)
	key, iv, err := cryptox.GenerateKeyMaterial()
	if err != nil {
		s.fail(job, err)
		return
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		s.fail(job, fmt.Errorf("%w: %v", upload_errors.ErrIO, err))
		return
	}
	encrypted, err := os.CreateTemp(s.spoolDir, "upload-enc-"+job.ID.String()+"-*")
	if err != nil {
		s.fail(job, fmt.Errorf("%w: %v", upload_errors.ErrIO, err))
		return
	}
	defer func() {
		encrypted.Close()
		os.Remove(encrypted.Name())
	}()

	encryptedSize, err := cryptox.EncryptStream(encrypted, spool, key, iv, func(read int64) {
		s.setProgress(job, band(read, job.DeclaredSize, hashingBandEnd, encryptingBandEnd))
	})
	if err != nil {
		s.fail(job, err)
		return
	}
	if _, err := encrypted.Seek(0, io.SeekStart); err != nil {
		s.fail(job, fmt.Errorf("%w: %v", upload_errors.ErrIO, err))
		return
	}

	// Stage 3: chunked transfer of the ciphertext.
	s.transition(job, upload.StatusUploading)
	objectKey := buildObjectKey(job)
	err = s.uploader.Upload(ctx, objectKey, job.MimeType, job.Filename, encrypted, encryptedSize, func(uploaded int64) {
		s.setProgress(job, band(uploaded, encryptedSize, encryptingBandEnd, uploadingBandEnd))
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w after %s", upload_errors.ErrTimeout, s.jobTimeout)
		}
		s.fail(job, err)
		return
	}

	// Stage 4: register key material and digest.
	s.transition(job, upload.StatusCompleting)
	s.setProgress(job, completingBand)
	if err := s.secrets.Put(ctx, job.ID, digest, key, iv); err != nil {
		// The object is already committed; flag the orphan for
		// reconciliation before failing the job.
		s.logger.Errorf("job %s: object %s stored but unregistered: %s", job.ID, objectKey, err)
		s.fail(job, err)
		return
	}
	job.EncryptionKeyRef = s.secrets.SecretName(job.ID)

	if s.history != nil {
		record := &upload.Record{
			ID:          job.ID,
			UserID:      job.OwnerID,
			Filename:    job.Filename,
			Digest:      digest,
			ObjectKey:   objectKey,
			Status:      upload.StatusCompleted,
			CreatedAt:   job.CreatedAt,
			CompletedAt: time.Now(),
		}
		if err := s.history.Create(ctx, record); err != nil {
			s.logger.Errorf("job %s: history insert failed: %s", job.ID, err)
		}
	}

	job.Progress = 100
	s.transition(job, upload.StatusCompleted)
	s.logger.Infof("upload completed: job=%s file=%s key=%s", job.ID, job.Filename, objectKey)
}

func (s *UploadService) transition(job *upload.Job, status upload.Status) {
	job.Status = status
	job.UpdatedAt = time.Now()
	s.registry.Set(job.ID, job.Snapshot())
}

// setProgress publishes a progress value, never letting it move
// backwards.
func (s *UploadService) setProgress(job *upload.Job, p int) {
	if p <= job.Progress {
		return
	}
	if p > completingBand {
		p = completingBand
	}
	job.Progress = p
	job.UpdatedAt = time.Now()
	s.registry.Set(job.ID, job.Snapshot())
}

func (s *UploadService) fail(job *upload.Job, err error) {
	job.ErrorMessage = err.Error()
	s.transition(job, upload.StatusError)
	s.logger.Errorf("upload failed: job=%s file=%s: %s", job.ID, job.Filename, err)
}

// band maps done/total onto the [from, to] progress window.
func band(done, total int64, from, to int) int {
	if total <= 0 {
		return from
	}
	if done > total {
		done = total
	}
	return from + int(done*int64(to-from)/total)
}

func buildObjectKey(job *upload.Job) string {
	ext := strings.ToLower(path.Ext(job.Filename))
	base := fmt.Sprintf("uploads/%s", job.ID.String())
	if job.OwnerID != uuid.Nil {
		base = fmt.Sprintf("uploads/%s/%s", job.OwnerID.String(), job.ID.String())
	}
	if ext == "" {
		return base
	}
	return base + ext
}

// Progress returns the poll snapshot for a job id, or ErrNotFound for
// unknown and evicted ids.
func (s *UploadService) Progress(id uuid.UUID) (upload.Snapshot, error) {
	snapshot, ok := s.registry.Get(id)
	if !ok {
		return upload.Snapshot{}, fmt.Errorf("%w: upload %s", upload_errors.ErrNotFound, id)
	}
	return snapshot, nil
}
