package youtube

import (
	"context"
	"time"

	"google.golang.org/api/youtube/v3"
)

// PublicationService defines the interface for YouTube publication operations
type PublicationService interface {
	// InitializeYouTubeService creates a YouTube service client
	InitializeYouTubeService(ctx context.Context, credentialsPath string) (*youtube.Service, error)

	// UploadVideo performs a resumable upload and returns the tracked publication
	UploadVideo(ctx context.Context, service *youtube.Service, req UploadRequest) (*Publication, error)

	// SetThumbnail attaches a thumbnail image, retrying on transient failures
	SetThumbnail(ctx context.Context, service *youtube.Service, videoID string, imagePath string) error

	// AwaitPolicyCheck waits for YouTube's processing/policy verdict
	AwaitPolicyCheck(ctx context.Context, service *youtube.Service, pub *Publication, wait time.Duration) error

	// Schedule sets a future publish time on a private video
	Schedule(ctx context.Context, service *youtube.Service, pub *Publication, publishAt time.Time) error

	// Promote raises a private video's visibility to unlisted or public
	Promote(ctx context.Context, service *youtube.Service, pub *Publication, target State) error

	// ReadScheduledVideos retrieves all scheduled videos from the channel
	ReadScheduledVideos(ctx context.Context, service *youtube.Service) ([]ScheduledVideo, error)

	// FindAvailability finds open publish slots avoiding already-scheduled videos
	FindAvailability(scheduledVideos []ScheduledVideo, count int, periodicity int, scheduleTime string, maxAttempts int, startDate string) ([]time.Time, error)
}

// Ensure Service implements PublicationService
var _ PublicationService = (*Service)(nil)

// State is a publication lifecycle state.
type State string

const (
	StateUploading State = "uploading"
	StatePrivate   State = "private"
	StateScheduled State = "scheduled"
	StateUnlisted  State = "unlisted"
	StatePublic    State = "public"
	StateBlocked   State = "blocked"
)

// Publication tracks one video through the lifecycle
// uploading -> private -> (scheduled | unlisted | public), with blocked as
// a terminal state when the policy check rejects the video.
type Publication struct {
	VideoID string
	Title   string
	State   State
}

// ScheduledVideo represents a scheduled video on YouTube
type ScheduledVideo struct {
	Title       string
	PublishAt   string
	Description string
	Privacy     string
	VideoID     string
}

// UploadRequest represents the information needed to upload a video
type UploadRequest struct {
	FilePath      string // Local path to the rendered video
	Title         string
	Description   string
	Tags          string // Comma-separated; cleaned before upload
	CategoryID    string
	PlaylistID    string // Optional playlist to add the video to
	ThumbnailPath string // Optional thumbnail image
}
