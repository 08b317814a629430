package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	upload_errors "secure-upload/pkg/errors"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string       { return e.code }
func (e *apiError) ErrorCode() string   { return e.code }
func (e *apiError) ErrorMessage() string { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockManager struct {
	createErr error
	putErr    error
	getErr    error

	created map[string]string
	put     map[string]string
	stored  string
}

func (m *mockManager) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.created == nil {
		m.created = make(map[string]string)
	}
	m.created[aws.ToString(params.Name)] = aws.ToString(params.SecretString)
	return &secretsmanager.CreateSecretOutput{}, nil
}

func (m *mockManager) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	if m.put == nil {
		m.put = make(map[string]string)
	}
	m.put[aws.ToString(params.SecretId)] = aws.ToString(params.SecretString)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (m *mockManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(m.stored)}, nil
}

func TestSecretName(t *testing.T) {
	jobID := uuid.New()

	client := NewClientWithAPI(&mockManager{}, "uploads")
	assert.Equal(t, "uploads/"+jobID.String(), client.SecretName(jobID))

	bare := NewClientWithAPI(&mockManager{}, "")
	assert.Equal(t, jobID.String(), bare.SecretName(jobID))
}

func TestPutCreatesSecret(t *testing.T) {
	mock := &mockManager{}
	client := NewClientWithAPI(mock, "uploads")
	jobID := uuid.New()
	key := []byte("0123456789abcdef0123456789abcdef")
	iv := []byte("0123456789abcdef")

	require.NoError(t, client.Put(context.Background(), jobID, "deadbeef", key, iv))

	payload, ok := mock.created["uploads/"+jobID.String()]
	require.True(t, ok)

	var record Record
	require.NoError(t, json.Unmarshal([]byte(payload), &record))
	assert.Equal(t, "deadbeef", record.Digest)
	assert.Equal(t, base64.StdEncoding.EncodeToString(key), record.Key)
	assert.Equal(t, base64.StdEncoding.EncodeToString(iv), record.IV)
}

func TestPutFallsBackWhenSecretExists(t *testing.T) {
	mock := &mockManager{createErr: &apiError{code: "ResourceExistsException"}}
	client := NewClientWithAPI(mock, "uploads")
	jobID := uuid.New()

	require.NoError(t, client.Put(context.Background(), jobID, "cafe", []byte("k"), []byte("v")))

	_, ok := mock.put["uploads/"+jobID.String()]
	assert.True(t, ok)
}

func TestPutSurfacesStoreError(t *testing.T) {
	mock := &mockManager{createErr: &apiError{code: "AccessDeniedException"}}
	client := NewClientWithAPI(mock, "uploads")

	err := client.Put(context.Background(), uuid.New(), "cafe", []byte("k"), []byte("v"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload_errors.ErrStore))
}

func TestGetRoundTrip(t *testing.T) {
	mock := &mockManager{}
	client := NewClientWithAPI(mock, "uploads")
	jobID := uuid.New()

	require.NoError(t, client.Put(context.Background(), jobID, "feed", []byte("key"), []byte("iv")))
	mock.stored = mock.created["uploads/"+jobID.String()]

	record, err := client.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "feed", record.Digest)
}

func TestGetNotFound(t *testing.T) {
	mock := &mockManager{getErr: &apiError{code: "ResourceNotFoundException"}}
	client := NewClientWithAPI(mock, "uploads")

	_, err := client.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, upload_errors.ErrNotFound))
}
