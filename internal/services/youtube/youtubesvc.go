package youtube

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/dreamreel/dreamreel/internal/utils"
)

// Required OAuth scopes for YouTube API
var requiredScopes = []string{
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube.force-ssl",
}

const (
	uploadChunkSize    = 8 * 1024 * 1024
	thumbnailRetries   = 4
	thumbnailBaseDelay = 2 * time.Second
	policyPollInterval = 15 * time.Second
)

// sleep allows tests to bypass real backoff delays.
var sleep = time.Sleep

// Service implements the PublicationService interface
type Service struct{}

// InitializeYouTubeService creates a YouTube service client
func (m *Service) InitializeYouTubeService(ctx context.Context, credentialsPath string) (*youtube.Service, error) {
	// Read credentials file
	credentials, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	// Create OAuth2 config
	config, err := google.ConfigFromJSON(credentials, requiredScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth config: %w", err)
	}

	// Initialize token storage
	tokenStorage, err := utils.NewTokenStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token storage: %w", err)
	}

	// Try to load existing token
	token, err := tokenStorage.LoadToken("youtube")
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	// If no token exists or it's expired, get a new one
	if token == nil || !token.Valid() {
		// Set up callback server
		callbackServer := utils.NewOAuthCallbackServer()
		if err := callbackServer.Start(8080); err != nil {
			return nil, fmt.Errorf("failed to start callback server: %w", err)
		}
		defer func() {
			if err := callbackServer.Stop(); err != nil {
				utils.LogWarning("Failed to stop callback server: %v", err)
			}
		}()

		// Set redirect URL to localhost
		config.RedirectURL = "http://localhost:8080"

		// Get auth URL
		authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		if err := callbackServer.OpenURL(authURL); err != nil {
			return nil, fmt.Errorf("failed to open auth URL: %w", err)
		}

		// Wait for the authorization code
		code := callbackServer.WaitForCode()

		// Exchange authorization code for token
		token, err = config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		// Save the new token
		if err := tokenStorage.SaveToken("youtube", token); err != nil {
			utils.LogWarning("Failed to save token: %v", err)
		}
	} else {
		utils.LogInfo("Using existing authorization token")
	}

	// Create YouTube service with token
	service, err := youtube.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return service, nil
}

// transition moves the publication to a new state, rejecting edges the
// lifecycle does not allow. Blocked and public are terminal.
func (p *Publication) transition(to State) error {
	allowed := map[State][]State{
		StateUploading: {StatePrivate, StateBlocked},
		StatePrivate:   {StateScheduled, StateUnlisted, StatePublic, StateBlocked},
		StateScheduled: {StatePublic, StateBlocked},
		StateUnlisted:  {StatePublic},
	}

	if p.State == to {
		return nil
	}
	for _, next := range allowed[p.State] {
		if next == to {
			p.State = to
			return nil
		}
	}
	return fmt.Errorf("cannot move video %s from %s to %s", p.VideoID, p.State, to)
}

// Uploaded reports whether the video finished its upload.
func (p *Publication) Uploaded() bool {
	return p.State != StateUploading && p.VideoID != ""
}

// UploadVideo performs a resumable chunked upload to YouTube. The video
// always lands private; scheduling and promotion are separate transitions.
func (m *Service) UploadVideo(ctx context.Context, service *youtube.Service, req UploadRequest) (*Publication, error) {
	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			utils.LogWarning("Failed to close video file: %v", err)
		}
	}()

	// Process and clean tags
	cleanedTags := processTags(req.Tags)

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			CategoryId:  req.CategoryID,
			Tags:        cleanedTags,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "private",
			MadeForKids:   false,
		},
	}

	pub := &Publication{Title: req.Title, State: StateUploading}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	call.NotifySubscribers(false) // Don't notify subscribers for shorts
	call.Media(file, googleapi.ChunkSize(uploadChunkSize))
	call.ProgressUpdater(func(current, total int64) {
		if total > 0 {
			utils.LogProgress("Uploading %s: %d%%", req.Title, current*100/total)
		}
	})

	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}

	pub.VideoID = response.Id
	if err := pub.transition(StatePrivate); err != nil {
		return nil, err
	}
	utils.LogSuccess("Uploaded video %s as private: %s", pub.VideoID, req.Title)

	if req.ThumbnailPath != "" {
		if err := m.SetThumbnail(ctx, service, pub.VideoID, req.ThumbnailPath); err != nil {
			utils.LogWarning("Thumbnail attachment failed: %v", err)
		}
	}

	if req.PlaylistID != "" {
		if err := m.addToPlaylist(service, pub.VideoID, req.PlaylistID); err != nil {
			utils.LogWarning("Failed to add video to playlist: %v", err)
		}
	}

	return pub, nil
}

// SetThumbnail attaches a thumbnail image, retrying with backoff because
// the video may still be processing when the first attempt lands.
func (m *Service) SetThumbnail(ctx context.Context, service *youtube.Service, videoID string, imagePath string) error {
	var lastErr error
	delay := thumbnailBaseDelay

	for attempt := 1; attempt <= thumbnailRetries; attempt++ {
		file, err := os.Open(imagePath)
		if err != nil {
			return fmt.Errorf("failed to open thumbnail: %w", err)
		}

		_, lastErr = service.Thumbnails.Set(videoID).Media(file).Do()
		if closeErr := file.Close(); closeErr != nil {
			utils.LogWarning("Failed to close thumbnail file: %v", closeErr)
		}
		if lastErr == nil {
			utils.LogInfo("Thumbnail set for video %s", videoID)
			return nil
		}

		if attempt < thumbnailRetries {
			utils.LogWarning("Thumbnail attempt %d failed (%v), retrying in %s", attempt, lastErr, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("failed to set thumbnail after %d attempts: %w", thumbnailRetries, lastErr)
}

func (m *Service) addToPlaylist(service *youtube.Service, videoID, playlistID string) error {
	playlistItem := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{
				Kind:    "youtube#video",
				VideoId: videoID,
			},
		},
	}

	if _, err := service.PlaylistItems.Insert([]string{"snippet"}, playlistItem).Do(); err != nil {
		return err
	}
	utils.LogInfo("Added video to playlist: %s", playlistID)
	return nil
}

// AwaitPolicyCheck polls the video's processing status until YouTube
// accepts or rejects it, or until wait elapses. A rejection or a check
// still unresolved after the wait moves the publication to blocked.
func (m *Service) AwaitPolicyCheck(ctx context.Context, service *youtube.Service, pub *Publication, wait time.Duration) error {
	if !pub.Uploaded() {
		return fmt.Errorf("policy check requires a completed upload")
	}

	deadline := time.Now().Add(wait)
	for {
		resp, err := service.Videos.List([]string{"status", "processingDetails"}).Id(pub.VideoID).Do()
		if err != nil {
			return fmt.Errorf("failed to read processing status: %w", err)
		}
		if len(resp.Items) == 0 {
			return fmt.Errorf("video %s not found", pub.VideoID)
		}

		status := resp.Items[0].Status
		switch status.UploadStatus {
		case "rejected":
			if err := pub.transition(StateBlocked); err != nil {
				return err
			}
			return fmt.Errorf("video %s rejected: %s", pub.VideoID, status.RejectionReason)
		case "processed":
			utils.LogInfo("Video %s passed processing checks", pub.VideoID)
			return nil
		}

		if time.Now().After(deadline) {
			if err := pub.transition(StateBlocked); err != nil {
				return err
			}
			return fmt.Errorf("video %s still unverified after %s", pub.VideoID, wait)
		}

		utils.LogDebug("Video %s still processing, polling again", pub.VideoID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sleep(policyPollInterval)
	}
}

// Schedule sets a future publish time on a private video.
func (m *Service) Schedule(ctx context.Context, service *youtube.Service, pub *Publication, publishAt time.Time) error {
	if !pub.Uploaded() {
		return fmt.Errorf("cannot schedule video before its upload completes")
	}

	update := &youtube.Video{
		Id: pub.VideoID,
		Status: &youtube.VideoStatus{
			PrivacyStatus: "private",
			PublishAt:     publishAt.UTC().Format(time.RFC3339),
		},
	}
	if _, err := service.Videos.Update([]string{"status"}, update).Do(); err != nil {
		return fmt.Errorf("failed to schedule video: %w", err)
	}
	if err := pub.transition(StateScheduled); err != nil {
		return err
	}

	utils.LogSuccess("Video %s scheduled for %s", pub.VideoID, publishAt.UTC().Format(time.RFC3339))
	return nil
}

// Promote raises a private or scheduled video to unlisted or public
// visibility. Promoting to the current state is a no-op, so the call is
// safe to repeat.
func (m *Service) Promote(ctx context.Context, service *youtube.Service, pub *Publication, target State) error {
	if target != StateUnlisted && target != StatePublic {
		return fmt.Errorf("invalid promotion target: %s", target)
	}
	if !pub.Uploaded() {
		return fmt.Errorf("cannot promote video before its upload completes")
	}
	if pub.State == target {
		utils.LogDebug("Video %s already %s", pub.VideoID, target)
		return nil
	}

	update := &youtube.Video{
		Id: pub.VideoID,
		Status: &youtube.VideoStatus{
			PrivacyStatus: string(target),
		},
	}
	if _, err := service.Videos.Update([]string{"status"}, update).Do(); err != nil {
		return fmt.Errorf("failed to promote video: %w", err)
	}
	if err := pub.transition(target); err != nil {
		return err
	}

	utils.LogSuccess("Video %s promoted to %s", pub.VideoID, target)
	return nil
}

// PinComment would pin an introductory comment on the published video.
// The Data API offers no pin endpoint, so this only records the intent.
func (m *Service) PinComment(ctx context.Context, service *youtube.Service, videoID, text string) error {
	utils.LogWarning("Comment pinning is not supported by the Data API; skipping for video %s", videoID)
	return nil
}

// ReadScheduledVideos retrieves all scheduled videos from the channel
func (m *Service) ReadScheduledVideos(ctx context.Context, service *youtube.Service) ([]ScheduledVideo, error) {
	// Verify channel access
	channelsResponse, err := service.Channels.List([]string{"id"}).Mine(true).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel info: %w", err)
	}

	if len(channelsResponse.Items) == 0 {
		return nil, fmt.Errorf("no channel found")
	}

	// Get videos using the search API
	searchResponse, err := service.Search.List([]string{"id"}).
		ForMine(true).
		Type("video").
		MaxResults(50).
		Do()

	if err != nil {
		return nil, fmt.Errorf("failed to search for videos: %w", err)
	}

	if len(searchResponse.Items) == 0 {
		return nil, nil
	}

	var videoIds []string
	for _, item := range searchResponse.Items {
		videoIds = append(videoIds, item.Id.VideoId)
	}

	// Get detailed video information
	videosResponse, err := service.Videos.List([]string{"snippet", "status", "contentDetails"}).
		Id(videoIds...).
		Do()

	if err != nil {
		return nil, fmt.Errorf("failed to get video details: %w", err)
	}

	var scheduledVideos []ScheduledVideo
	for _, video := range videosResponse.Items {
		// Only include scheduled videos
		if video.Status.PrivacyStatus == "private" && video.Status.PublishAt != "" {
			scheduledVideos = append(scheduledVideos, ScheduledVideo{
				Title:       video.Snippet.Title,
				PublishAt:   video.Status.PublishAt,
				Description: video.Snippet.Description,
				Privacy:     video.Status.PrivacyStatus,
				VideoID:     video.Id,
			})
		}
	}

	return scheduledVideos, nil
}

// FindAvailability finds count open publish slots, periodicity days apart
// at scheduleTime (HH:MM UTC), skipping slots already taken by scheduled
// videos.
func (m *Service) FindAvailability(scheduledVideos []ScheduledVideo, count int, periodicity int, scheduleTime string, maxAttempts int, startDate string) ([]time.Time, error) {
	scheduleHour, scheduleMinute, err := parseScheduleTime(scheduleTime)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule time format: %w", err)
	}

	startDateTime, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date format: %w", err)
	}

	now := time.Now().UTC()
	reference := startDateTime.UTC()
	if now.After(reference) {
		reference = now
	}

	// Create a map of scheduled times
	taken := make(map[time.Time]bool)
	for _, video := range scheduledVideos {
		publishTime, err := time.Parse(time.RFC3339, video.PublishAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse video publish time: %w", err)
		}
		taken[publishTime.UTC()] = true
	}

	var slots []time.Time
	candidate := reference
	for len(slots) < count {
		found := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			slot := time.Date(
				candidate.Year(), candidate.Month(), candidate.Day(),
				scheduleHour, scheduleMinute, 0, 0, time.UTC,
			)
			candidate = candidate.AddDate(0, 0, periodicity)

			if slot.Before(now) || taken[slot] {
				continue
			}
			taken[slot] = true
			slots = append(slots, slot)
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("no available slot found after %d attempts", maxAttempts)
		}
	}

	return slots, nil
}

// parseScheduleTime parses the schedule time string (HH:MM) into hours and minutes
func parseScheduleTime(timeStr string) (int, int, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format, expected HH:MM")
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour: %s", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute: %s", parts[1])
	}

	return hour, minute, nil
}

// cleanTag removes special characters and converts to lowercase
func cleanTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	replacements := map[string]string{
		"á": "a", "é": "e", "í": "i", "ó": "o", "ú": "u",
		"ñ": "n", "ü": "u",
	}
	for old, new := range replacements {
		tag = strings.ReplaceAll(tag, old, new)
	}
	return tag
}

// processTags splits and cleans tags, ensuring YouTube compatibility
func processTags(tags string) []string {
	rawTags := strings.Split(tags, ",")
	seenTags := make(map[string]bool)
	var cleanedTags []string

	// Clean each tag and ensure uniqueness
	for _, tag := range rawTags {
		cleaned := cleanTag(tag)
		// Skip empty tags or tags that are too long (YouTube has a limit)
		if cleaned != "" && len(cleaned) <= 30 && !seenTags[cleaned] {
			seenTags[cleaned] = true
			cleanedTags = append(cleanedTags, cleaned)
		}
	}

	// YouTube has a limit on the number of tags
	if len(cleanedTags) > 30 {
		cleanedTags = cleanedTags[:30]
	}

	return cleanedTags
}
