// Package publish uploads the final video to YouTube as private, waits out
// the policy check, then either schedules it or promotes it to the target
// visibility. The rendered file can also be archived to object storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	modules "github.com/dreamreel/dreamreel/internal/mod"
	"github.com/dreamreel/dreamreel/internal/modules/script"
	"github.com/dreamreel/dreamreel/internal/services/storage"
	yt "github.com/dreamreel/dreamreel/internal/services/youtube"
	"github.com/dreamreel/dreamreel/internal/utils"

	youtubeapi "google.golang.org/api/youtube/v3"
)

// publisher is the slice of the YouTube service this module drives. It
// exists so tests can run without credentials or network.
type publisher interface {
	Init(ctx context.Context, credentialsPath string) error
	Upload(ctx context.Context, req yt.UploadRequest) (*yt.Publication, error)
	AwaitPolicyCheck(ctx context.Context, pub *yt.Publication, wait time.Duration) error
	Schedule(ctx context.Context, pub *yt.Publication, publishAt time.Time) error
	Promote(ctx context.Context, pub *yt.Publication, target yt.State) error
	NextSlot(ctx context.Context, periodicity int, scheduleTime string, maxAttempts int) (time.Time, error)
}

// archiver is the slice of object storage this module uses.
type archiver interface {
	UploadFile(ctx context.Context, key, path, contentType string) (int64, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

var (
	newPublisher = func() publisher { return &livePublisher{svc: &yt.Service{}} }
	newArchiver  = func() (archiver, error) { return storage.NewFromEnv() }
)

// livePublisher binds the publication service to a real API client.
type livePublisher struct {
	svc *yt.Service
	api *youtubeapi.Service
}

func (l *livePublisher) Init(ctx context.Context, credentialsPath string) error {
	api, err := l.svc.InitializeYouTubeService(ctx, credentialsPath)
	if err != nil {
		return err
	}
	l.api = api
	return nil
}

func (l *livePublisher) Upload(ctx context.Context, req yt.UploadRequest) (*yt.Publication, error) {
	return l.svc.UploadVideo(ctx, l.api, req)
}

func (l *livePublisher) AwaitPolicyCheck(ctx context.Context, pub *yt.Publication, wait time.Duration) error {
	return l.svc.AwaitPolicyCheck(ctx, l.api, pub, wait)
}

func (l *livePublisher) Schedule(ctx context.Context, pub *yt.Publication, publishAt time.Time) error {
	return l.svc.Schedule(ctx, l.api, pub, publishAt)
}

func (l *livePublisher) Promote(ctx context.Context, pub *yt.Publication, target yt.State) error {
	return l.svc.Promote(ctx, l.api, pub, target)
}

func (l *livePublisher) NextSlot(ctx context.Context, periodicity int, scheduleTime string, maxAttempts int) (time.Time, error) {
	scheduled, err := l.svc.ReadScheduledVideos(ctx, l.api)
	if err != nil {
		return time.Time{}, err
	}
	slots, err := l.svc.FindAvailability(scheduled, 1, periodicity, scheduleTime, maxAttempts, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		return time.Time{}, err
	}
	return slots[0], nil
}

// Module implements the publication functionality
type Module struct{}

// Params contains the parameters for publication
type Params struct {
	Input         string `json:"input"`         // Path to the final video
	ScriptFile    string `json:"scriptFile"`    // Scene script supplying title/description/tags
	Output        string `json:"output"`        // Path to output directory
	Credentials   string `json:"credentials"`   // Path to OAuth client credentials JSON
	PrivacyStatus string `json:"privacyStatus"` // "private", "unlisted", "public" or "scheduled"
	CategoryID    string `json:"categoryId"`    // YouTube category (default: "22")
	PlaylistID    string `json:"playlistId"`    // Optional playlist
	Thumbnail     string `json:"thumbnail"`     // Optional thumbnail image
	ScheduleTime  string `json:"scheduleTime"`  // HH:MM UTC slot time for scheduled publishing (default: "18:00")
	Periodicity   int    `json:"periodicity"`   // Days between scheduled videos (default: 1)
	PolicyWaitSec int    `json:"policyWaitSec"` // Seconds to wait for the policy check (default: 300)
	Archive       bool   `json:"archive"`       // Also upload the video to object storage
	ArchivePrefix string `json:"archivePrefix"` // Key prefix for archived videos (default: "videos/")
}

// New creates a new publish module
func New() modules.Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string {
	return "publish"
}

// Validate checks if the parameters are valid
func (m *Module) Validate(params map[string]interface{}) error {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return err
	}

	if err := utils.ValidateInputPath(p.Input, p.Output, ""); err != nil {
		return err
	}
	if p.Credentials == "" {
		return fmt.Errorf("credentials is required")
	}
	expandedCredentials, err := utils.ExpandHomeDir(p.Credentials)
	if err != nil {
		return fmt.Errorf("failed to expand credentials path: %w", err)
	}
	if _, err := os.Stat(expandedCredentials); os.IsNotExist(err) {
		return fmt.Errorf("credentials file %s does not exist", p.Credentials)
	}
	switch p.PrivacyStatus {
	case "", "private", "unlisted", "public", "scheduled":
	default:
		return fmt.Errorf("invalid privacyStatus: %s", p.PrivacyStatus)
	}
	if p.Thumbnail != "" {
		if err := utils.ValidateFileExtension(p.Thumbnail, []string{".png", ".jpg", ".jpeg"}); err != nil {
			return err
		}
	}

	return nil
}

// Execute uploads and publishes the video
func (m *Module) Execute(ctx context.Context, params map[string]interface{}) (modules.ModuleResult, error) {
	var p Params
	if err := modules.ParseParams(params, &p); err != nil {
		return modules.ModuleResult{}, err
	}

	// Set default values
	if p.PrivacyStatus == "" {
		p.PrivacyStatus = "private"
	}
	if p.CategoryID == "" {
		p.CategoryID = "22"
	}
	if p.ScheduleTime == "" {
		p.ScheduleTime = "18:00"
	}
	if p.Periodicity == 0 {
		p.Periodicity = 1
	}
	if p.PolicyWaitSec == 0 {
		p.PolicyWaitSec = 300
	}
	if p.ArchivePrefix == "" {
		p.ArchivePrefix = "videos/"
	}

	videoPath := utils.ResolveOutputPath(p.Input, p.Output)
	if _, err := os.Stat(videoPath); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("video file not found: %w", err)
	}

	req := yt.UploadRequest{
		FilePath:      videoPath,
		Title:         filepath.Base(videoPath),
		CategoryID:    p.CategoryID,
		PlaylistID:    p.PlaylistID,
		ThumbnailPath: p.Thumbnail,
	}
	if p.ScriptFile != "" {
		s, err := script.Load(utils.ResolveOutputPath(p.ScriptFile, p.Output))
		if err != nil {
			return modules.ModuleResult{}, err
		}
		req.Title = s.Title
		req.Description = s.Description
		req.Tags = s.Tags
	}

	credentials, err := utils.ExpandHomeDir(p.Credentials)
	if err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to expand credentials path: %w", err)
	}

	pub := newPublisher()
	if err := pub.Init(ctx, credentials); err != nil {
		return modules.ModuleResult{}, fmt.Errorf("failed to initialize YouTube client: %w", err)
	}

	publication, err := pub.Upload(ctx, req)
	if err != nil {
		return modules.ModuleResult{}, err
	}

	if err := pub.AwaitPolicyCheck(ctx, publication, time.Duration(p.PolicyWaitSec)*time.Second); err != nil {
		// A blocked video stays up as private for manual review; the run
		// itself has still produced and uploaded the video.
		utils.LogError("Policy check failed for video %s: %v", publication.VideoID, err)
		return m.result(ctx, p, publication, videoPath)
	}

	switch p.PrivacyStatus {
	case "scheduled":
		slot, err := pub.NextSlot(ctx, p.Periodicity, p.ScheduleTime, 60)
		if err != nil {
			return modules.ModuleResult{}, err
		}
		if err := pub.Schedule(ctx, publication, slot); err != nil {
			return modules.ModuleResult{}, err
		}
	case "unlisted":
		if err := pub.Promote(ctx, publication, yt.StateUnlisted); err != nil {
			return modules.ModuleResult{}, err
		}
	case "public":
		if err := pub.Promote(ctx, publication, yt.StatePublic); err != nil {
			return modules.ModuleResult{}, err
		}
	default:
		utils.LogInfo("Video %s stays private", publication.VideoID)
	}

	return m.result(ctx, p, publication, videoPath)
}

// result archives the video when requested and reports the outcome.
func (m *Module) result(ctx context.Context, p Params, publication *yt.Publication, videoPath string) (modules.ModuleResult, error) {
	metadata := map[string]interface{}{
		"videoId": publication.VideoID,
		"state":   string(publication.State),
	}

	if p.Archive {
		store, err := newArchiver()
		if err != nil {
			utils.LogWarning("Archival skipped: %v", err)
		} else {
			key := p.ArchivePrefix + filepath.Base(videoPath)
			if _, err := store.UploadFile(ctx, key, videoPath, "video/mp4"); err != nil {
				utils.LogWarning("Failed to archive video: %v", err)
			} else if url, err := store.PresignedURL(ctx, key, 7*24*time.Hour); err == nil {
				metadata["archiveUrl"] = url
			}
		}
	}

	return modules.ModuleResult{
		Outputs: map[string]string{
			"videoId": publication.VideoID,
		},
		Metadata: metadata,
	}, nil
}

// GetIO returns the module's input/output specification
func (m *Module) GetIO() modules.ModuleIO {
	return modules.ModuleIO{
		RequiredInputs: []modules.ModuleInput{
			{
				Name:        "input",
				Description: "Path to the final video",
				Patterns:    []string{".mp4"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "credentials",
				Description: "Path to OAuth client credentials JSON",
				Patterns:    []string{".json"},
				Type:        string(modules.InputTypeFile),
			},
		},
		OptionalInputs: []modules.ModuleInput{
			{
				Name:        "scriptFile",
				Description: "Scene script supplying title, description and tags",
				Patterns:    []string{".json"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "privacyStatus",
				Description: "Target visibility (default: private)",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "thumbnail",
				Description: "Thumbnail image",
				Patterns:    []string{".png", ".jpg", ".jpeg"},
				Type:        string(modules.InputTypeFile),
			},
			{
				Name:        "playlistId",
				Description: "Playlist to add the video to",
				Type:        string(modules.InputTypeData),
			},
			{
				Name:        "archive",
				Description: "Also upload the video to object storage",
				Type:        string(modules.InputTypeData),
			},
		},
		ProducedOutputs: []modules.ModuleOutput{
			{
				Name:        "videoId",
				Description: "ID of the uploaded video",
				Type:        string(modules.OutputTypeData),
			},
		},
	}
}
