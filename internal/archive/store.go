// Package archive copies escalation audit records to S3 for long-term
// retention outside the operational database.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Record is the archived form of an escalation. The user is pseudonymised and
// the risk summary holds counts only.
type Record struct {
	AuditID         string          `json:"audit_id"`
	UserHash        string          `json:"user_hash"`
	RiskLevel       string          `json:"risk_level"`
	EscalationLevel int             `json:"escalation_level"`
	RiskScore       float64         `json:"risk_score"`
	Outcome         string          `json:"outcome"`
	Details         json.RawMessage `json:"details,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	AuditID         string `json:"audit_id"`
	S3Key           string `json:"s3_key"`
	RiskLevel       string `json:"risk_level"`
	EscalationLevel int    `json:"escalation_level"`
	Outcome         string `json:"outcome"`
	ArchivedAt      string `json:"archived_at"`
}

// Store writes records to a bucket. With no bucket every call is a no-op.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// HashUserID pseudonymises a user id for archived records.
func HashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// ObjectKey is where a record lands in the bucket.
func ObjectKey(r Record) string {
	at := r.OccurredAt.UTC()
	return fmt.Sprintf("escalations/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), r.AuditID)
}

// Put writes the record and appends it to the month's manifest. A manifest
// failure is logged; the record itself is already stored.
func (s *Store) Put(ctx context.Context, r Record) error {
	if !s.Enabled() {
		return nil
	}
	if r.AuditID == "" {
		return errors.New("archive: record has no audit id")
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}
	key := ObjectKey(r)
	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	entry := ManifestEntry{
		AuditID:         r.AuditID,
		S3Key:           key,
		RiskLevel:       r.RiskLevel,
		EscalationLevel: r.EscalationLevel,
		Outcome:         r.Outcome,
		ArchivedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.appendManifest(ctx, r.OccurredAt, entry); err != nil {
		s.logger.Warn("failed to append archive manifest", "error", err, "audit_id", r.AuditID)
	}
	return nil
}

// appendManifest does a read-modify-write; S3 has no append.
func (s *Store) appendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := fmt.Sprintf("escalations/v1/manifests/%d-%02d.jsonl", at.UTC().Year(), at.UTC().Month())

	var buf bytes.Buffer
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, readErr := io.ReadAll(out.Body)
		_ = out.Body.Close()
		if readErr != nil {
			return fmt.Errorf("archive: read manifest: %w", readErr)
		}
		buf.Write(existing)
		if len(existing) > 0 && existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	case isNotFound(err):
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
