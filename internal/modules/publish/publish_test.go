package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	yt "github.com/dreamreel/dreamreel/internal/services/youtube"
)

type fakePublisher struct {
	uploaded    *yt.UploadRequest
	policyErr   error
	scheduledAt time.Time
	promotedTo  yt.State
	slot        time.Time
}

func (f *fakePublisher) Init(ctx context.Context, credentialsPath string) error { return nil }

func (f *fakePublisher) Upload(ctx context.Context, req yt.UploadRequest) (*yt.Publication, error) {
	f.uploaded = &req
	return &yt.Publication{VideoID: "vid-123", Title: req.Title, State: yt.StatePrivate}, nil
}

func (f *fakePublisher) AwaitPolicyCheck(ctx context.Context, pub *yt.Publication, wait time.Duration) error {
	if f.policyErr != nil {
		pub.State = yt.StateBlocked
	}
	return f.policyErr
}

func (f *fakePublisher) Schedule(ctx context.Context, pub *yt.Publication, publishAt time.Time) error {
	f.scheduledAt = publishAt
	pub.State = yt.StateScheduled
	return nil
}

func (f *fakePublisher) Promote(ctx context.Context, pub *yt.Publication, target yt.State) error {
	f.promotedTo = target
	pub.State = target
	return nil
}

func (f *fakePublisher) NextSlot(ctx context.Context, periodicity int, scheduleTime string, maxAttempts int) (time.Time, error) {
	return f.slot, nil
}

func setup(t *testing.T, fake *fakePublisher) (string, map[string]interface{}) {
	tempDir := t.TempDir()

	videoPath := filepath.Join(tempDir, "final.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("mp4"), 0644))

	scriptPath := filepath.Join(tempDir, "script.json")
	require.NoError(t, os.WriteFile(scriptPath, []byte(`{
		"title": "The Lighthouse Keeper",
		"description": "A night that never ended.",
		"tags": "horror,story",
		"scenes": [{"narration": "x", "imagePrompt": "y", "durationSec": 5}]
	}`), 0644))

	credPath := filepath.Join(tempDir, "credentials.json")
	require.NoError(t, os.WriteFile(credPath, []byte("{}"), 0644))

	orig := newPublisher
	newPublisher = func() publisher { return fake }
	t.Cleanup(func() { newPublisher = orig })

	return tempDir, map[string]interface{}{
		"input":       videoPath,
		"scriptFile":  scriptPath,
		"output":      tempDir,
		"credentials": credPath,
	}
}

func TestModule_Name(t *testing.T) {
	assert.Equal(t, "publish", New().Name())
}

func TestExecuteUploadsWithScriptMetadata(t *testing.T) {
	fake := &fakePublisher{}
	_, params := setup(t, fake)

	result, err := New().Execute(context.Background(), params)
	require.NoError(t, err)

	require.NotNil(t, fake.uploaded)
	assert.Equal(t, "The Lighthouse Keeper", fake.uploaded.Title)
	assert.Equal(t, "horror,story", fake.uploaded.Tags)
	assert.Equal(t, "vid-123", result.Outputs["videoId"])
	assert.Equal(t, "private", result.Metadata["state"])
}

func TestExecutePromotesToPublic(t *testing.T) {
	fake := &fakePublisher{}
	_, params := setup(t, fake)
	params["privacyStatus"] = "public"

	result, err := New().Execute(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, yt.StatePublic, fake.promotedTo)
	assert.Equal(t, "public", result.Metadata["state"])
}

func TestExecuteSchedulesIntoNextSlot(t *testing.T) {
	slot := time.Date(2026, 9, 4, 18, 0, 0, 0, time.UTC)
	fake := &fakePublisher{slot: slot}
	_, params := setup(t, fake)
	params["privacyStatus"] = "scheduled"

	result, err := New().Execute(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, slot, fake.scheduledAt)
	assert.Equal(t, "scheduled", result.Metadata["state"])
}

func TestExecuteBlockedVideoStaysPrivate(t *testing.T) {
	fake := &fakePublisher{policyErr: errors.New("rejected: copyright")}
	_, params := setup(t, fake)
	params["privacyStatus"] = "public"

	result, err := New().Execute(context.Background(), params)
	require.NoError(t, err)

	// No promotion happens after a failed policy check.
	assert.Equal(t, yt.State(""), fake.promotedTo)
	assert.Equal(t, "blocked", result.Metadata["state"])
}

func TestValidateRejectsBadPrivacyStatus(t *testing.T) {
	fake := &fakePublisher{}
	_, params := setup(t, fake)
	params["privacyStatus"] = "friends-only"

	err := New().Validate(params)
	assert.ErrorContains(t, err, "privacyStatus")
}
