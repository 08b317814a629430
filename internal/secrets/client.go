// Package secrets persists per-upload key material and content digests
// in AWS Secrets Manager, keyed by a name derived from the job id.
// Secret values are never logged; only secret names appear in output.
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	upload_errors "secure-upload/pkg/errors"
)

// AWS error codes this client branches on.
const (
	resourceExistsException   = "ResourceExistsException"
	resourceNotFoundException = "ResourceNotFoundException"
)

// ManagerAPI is the slice of the Secrets Manager client the upload
// pipeline uses. Narrowed for mocking in tests.
type ManagerAPI interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Record is the payload stored per job: the content digest plus the key
// material needed to decrypt the object later.
type Record struct {
	Digest string `json:"digest"`
	Key    string `json:"key"`
	IV     string `json:"iv"`
}

type Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

type Client struct {
	api    ManagerAPI
	prefix string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		return nil, errors.New("secrets manager region is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:    secretsmanager.NewFromConfig(awsCfg),
		prefix: cfg.Prefix,
	}, nil
}

// NewClientWithAPI wires a preconstructed API, used by tests.
func NewClientWithAPI(api ManagerAPI, prefix string) *Client {
	return &Client{api: api, prefix: prefix}
}

// Put stores the digest and key material under the job's secret name.
// Safe to repeat: a secret that already exists gets a new value instead
// of failing, which makes retried writes after transient errors benign.
func (c *Client) Put(ctx context.Context, jobID uuid.UUID, digest string, key, iv []byte) error {
	payload, err := json.Marshal(Record{
		Digest: digest,
		Key:    base64.StdEncoding.EncodeToString(key),
		IV:     base64.StdEncoding.EncodeToString(iv),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", upload_errors.ErrStore, err)
	}

	name := c.SecretName(jobID)
	_, err = c.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(payload)),
	})
	if err == nil {
		return nil
	}
	if !hasErrorCode(err, resourceExistsException) {
		return fmt.Errorf("%w: put %s: %v", upload_errors.ErrStore, name, err)
	}

	_, err = c.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", upload_errors.ErrStore, name, err)
	}
	return nil
}

// Get retrieves the stored record for a job, or ErrNotFound.
func (c *Client) Get(ctx context.Context, jobID uuid.UUID) (Record, error) {
	name := c.SecretName(jobID)
	output, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if hasErrorCode(err, resourceNotFoundException) {
			return Record{}, fmt.Errorf("%w: secret %s", upload_errors.ErrNotFound, name)
		}
		return Record{}, fmt.Errorf("%w: get %s: %v", upload_errors.ErrStore, name, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(aws.ToString(output.SecretString)), &record); err != nil {
		return Record{}, fmt.Errorf("%w: decode %s: %v", upload_errors.ErrStore, name, err)
	}
	return record, nil
}

// SecretName derives the deterministic, collision-free secret name for
// a job.
func (c *Client) SecretName(jobID uuid.UUID) string {
	if c.prefix == "" {
		return jobID.String()
	}
	return fmt.Sprintf("%s/%s", c.prefix, jobID.String())
}

func hasErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == code
	}
	return false
}
