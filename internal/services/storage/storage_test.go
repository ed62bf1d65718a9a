package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvRequiresCredentials(t *testing.T) {
	for _, key := range []string{"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET"} {
		os.Unsetenv(key)
	}

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ENDPOINT")
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "minio.local:9000")
	t.Setenv("S3_ACCESS_KEY", "test-access")
	t.Setenv("S3_SECRET_KEY", "test-secret")
	t.Setenv("S3_BUCKET", "dreamreel-assets")
	t.Setenv("S3_USE_SSL", "false")
	t.Setenv("S3_CAPACITY_GB", "2")

	store, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "dreamreel-assets", store.bucket)
	assert.Equal(t, int64(2*1024*1024*1024), store.capacity)
}

func TestEvictionPlanUnderCapacity(t *testing.T) {
	objects := []Object{
		{Key: "a.mp4", Size: 100, LastModified: time.Now()},
	}
	assert.Nil(t, evictionPlan(objects, 500))
}

func TestEvictionPlanRemovesOldestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	objects := []Object{
		{Key: "new.mp4", Size: 400, LastModified: base.Add(48 * time.Hour)},
		{Key: "oldest.mp4", Size: 300, LastModified: base},
		{Key: "middle.mp4", Size: 300, LastModified: base.Add(24 * time.Hour)},
	}

	// Total 1000, capacity 500: dropping the two oldest gets to 400.
	victims := evictionPlan(objects, 500)
	assert.Equal(t, []string{"oldest.mp4", "middle.mp4"}, victims)
}

func TestEvictionPlanStopsOnceUnderThreshold(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	objects := []Object{
		{Key: "old.mp4", Size: 600, LastModified: base},
		{Key: "new.mp4", Size: 400, LastModified: base.Add(time.Hour)},
	}

	victims := evictionPlan(objects, 500)
	assert.Equal(t, []string{"old.mp4"}, victims)
}

func TestEvictionPlanZeroObjects(t *testing.T) {
	assert.Nil(t, evictionPlan(nil, 100))
}
