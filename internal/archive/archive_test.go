package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellbeing-safety-engine/internal/compliance"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

var at = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeS3 struct {
	objects map[string][]byte
	puts    []string
	putErr  error
	getErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = body
	f.puts = append(f.puts, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeAuditor struct {
	err      error
	refusals int
}

func (f *fakeAuditor) LogEscalation(context.Context, string, string, int, float64, time.Time, compliance.EscalationDetails) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "audit-1", nil
}

func (f *fakeAuditor) LogPrivacyRefusal(context.Context, string, string, float64, time.Time) error {
	f.refusals++
	return nil
}

func TestStore_PutWritesRecordAndManifest(t *testing.T) {
	s3c := newFakeS3()
	store := NewStore(s3c, "audit-bucket", logging.Discard())

	require.NoError(t, store.Put(context.Background(), Record{AuditID: "a1", UserHash: HashUserID("user-1"), RiskLevel: "immediate_crisis", EscalationLevel: 4, OccurredAt: at}))
	require.NoError(t, store.Put(context.Background(), Record{AuditID: "a2", UserHash: HashUserID("user-2"), RiskLevel: "elevated_risk", EscalationLevel: 3, OccurredAt: at}))

	assert.Contains(t, s3c.objects, "escalations/v1/by-date/2026/03/15/a1.json")
	manifest := string(s3c.objects["escalations/v1/manifests/2026-03.jsonl"])
	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	require.Len(t, lines, 2)

	var entry ManifestEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "a2", entry.AuditID)
	assert.Equal(t, 3, entry.EscalationLevel)
}

func TestStore_RecordHasNoRawUserID(t *testing.T) {
	s3c := newFakeS3()
	store := NewStore(s3c, "audit-bucket", logging.Discard())
	require.NoError(t, store.Put(context.Background(), Record{AuditID: "a1", UserHash: HashUserID("user-secret"), OccurredAt: at}))

	body := string(s3c.objects[ObjectKey(Record{AuditID: "a1", OccurredAt: at})])
	assert.NotContains(t, body, "user-secret")
	assert.Len(t, HashUserID("user-secret"), 64)
}

func TestStore_DisabledIsNoop(t *testing.T) {
	s3c := newFakeS3()
	assert.NoError(t, NewStore(s3c, "", nil).Put(context.Background(), Record{AuditID: "a1"}))
	assert.Empty(t, s3c.puts)

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
}

func TestStore_PutErrors(t *testing.T) {
	s3c := newFakeS3()
	store := NewStore(s3c, "audit-bucket", logging.Discard())
	assert.Error(t, store.Put(context.Background(), Record{}))

	s3c.putErr = errors.New("access denied")
	assert.ErrorContains(t, store.Put(context.Background(), Record{AuditID: "a1", OccurredAt: at}), "access denied")
}

func TestStore_ManifestReadFailureKeepsRecord(t *testing.T) {
	s3c := newFakeS3()
	s3c.getErr = errors.New("throttled")
	store := NewStore(s3c, "audit-bucket", logging.Discard())

	require.NoError(t, store.Put(context.Background(), Record{AuditID: "a1", OccurredAt: at}))
	assert.Equal(t, []string{"escalations/v1/by-date/2026/03/15/a1.json"}, s3c.puts)
}

func TestArchivingAuditor(t *testing.T) {
	s3c := newFakeS3()
	next := &fakeAuditor{}
	a := NewArchivingAuditor(next, NewStore(s3c, "audit-bucket", logging.Discard()), logging.Discard())

	id, err := a.LogEscalation(context.Background(), "user-1", "elevated_risk", 3, 6.5, at, compliance.EscalationDetails{ActionsCompleted: 2})
	require.NoError(t, err)
	assert.Equal(t, "audit-1", id)
	assert.Contains(t, s3c.objects, "escalations/v1/by-date/2026/03/15/audit-1.json")

	require.NoError(t, a.LogPrivacyRefusal(context.Background(), "user-1", "moderate_risk", 4, at))
	assert.Equal(t, 1, next.refusals)
	assert.Len(t, s3c.puts, 2)
}

func TestArchivingAuditor_DatabaseFailureSkipsArchive(t *testing.T) {
	s3c := newFakeS3()
	a := NewArchivingAuditor(&fakeAuditor{err: errors.New("db down")}, NewStore(s3c, "audit-bucket", nil), nil)

	_, err := a.LogEscalation(context.Background(), "user-1", "elevated_risk", 3, 6.5, at, compliance.EscalationDetails{})
	assert.Error(t, err)
	assert.Empty(t, s3c.puts)
}

func TestArchivingAuditor_ArchiveFailureDoesNotFail(t *testing.T) {
	s3c := newFakeS3()
	s3c.putErr = errors.New("bucket gone")
	a := NewArchivingAuditor(&fakeAuditor{}, NewStore(s3c, "audit-bucket", nil), logging.Discard())

	id, err := a.LogEscalation(context.Background(), "user-1", "elevated_risk", 3, 6.5, at, compliance.EscalationDetails{})
	require.NoError(t, err)
	assert.Equal(t, "audit-1", id)
}
