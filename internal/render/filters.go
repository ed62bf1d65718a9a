package render

import (
	"fmt"
	"strings"
)

// MixArgs builds the argument list for mixing narration over background
// music with sidechain ducking: the music drops whenever narration is
// present and recovers in its pauses.
func MixArgs(narration, music, output string, musicVolume float64) []string {
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f[bg];[bg][0:a]sidechaincompress=threshold=0.05:ratio=8:attack=50:release=500[ducked];[0:a][ducked]amix=inputs=2:duration=first:dropout_transition=2[a]",
		musicVolume,
	)
	return []string{
		"-y",
		"-i", narration,
		"-i", music,
		"-filter_complex", filter,
		"-map", "[a]",
		"-c:a", "libmp3lame", "-q:a", "2",
		output,
	}
}

// ConcatArgs builds a concat-demuxer invocation joining clips at a forced
// common resolution. listFile must contain `file '<path>'` lines.
func ConcatArgs(listFile, output string, width, height int) []string {
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		width, height, width, height)
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-vf", scale,
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-pix_fmt", "yuv420p",
		"-an",
		output,
	}
}

// CrossfadeArgs builds a filter-graph invocation joining clips with xfade
// transitions. durations holds each clip's length in seconds; fade is the
// transition length. All clips are normalized to width x height first.
func CrossfadeArgs(clips []string, durations []float64, fade float64, output string, width, height int) []string {
	args := []string{"-y"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}

	var filters []string
	for i := range clips {
		filters = append(filters, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=25[s%d]",
			i, width, height, width, height, i))
	}

	// Chain xfades: each transition starts fade seconds before the end of
	// the accumulated head.
	current := "[s0]"
	offset := 0.0
	for i := 1; i < len(clips); i++ {
		offset += durations[i-1] - fade
		out := fmt.Sprintf("[x%d]", i)
		if i == len(clips)-1 {
			out = "[v]"
		}
		filters = append(filters, fmt.Sprintf(
			"%s[s%d]xfade=transition=fade:duration=%.2f:offset=%.2f%s",
			current, i, fade, offset, out))
		current = out
	}
	if len(clips) == 1 {
		filters = append(filters, "[s0]copy[v]")
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[v]",
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-pix_fmt", "yuv420p",
		output,
	)
	return args
}

// KenBurnsArgs animates a still image with a slow zoompan push for the
// given duration.
func KenBurnsArgs(image, output string, duration float64, width, height int) []string {
	frames := int(duration * 25)
	filter := fmt.Sprintf(
		"scale=%d:-1,zoompan=z='min(zoom+0.0015,1.3)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=25",
		width*2, frames, width, height)
	return []string{
		"-y",
		"-loop", "1",
		"-i", image,
		"-vf", filter,
		"-t", fmt.Sprintf("%.2f", duration),
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-pix_fmt", "yuv420p",
		output,
	}
}

// SubtitleArgs burns an SRT file into the video.
func SubtitleArgs(video, srt, output string) []string {
	style := "FontName=Arial,FontSize=14,PrimaryColour=&Hffffff,OutlineColour=&H000000,Outline=2,MarginV=40"
	return []string{
		"-y",
		"-i", video,
		"-vf", fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srt), style),
		"-c:v", "libx264", "-preset", "fast", "-crf", "22",
		"-c:a", "copy",
		output,
	}
}

// AudioConcatArgs joins audio tracks back to back via the concat demuxer.
// listFile must contain `file '<path>'` lines.
func AudioConcatArgs(listFile, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:a", "libmp3lame", "-q:a", "2",
		output,
	}
}

// TrimFadeArgs trims an audio track to exactly duration seconds with a
// fade-out tail of fade seconds.
func TrimFadeArgs(input, output string, duration, fade float64) []string {
	return []string{
		"-y",
		"-i", input,
		"-t", fmt.Sprintf("%.2f", duration),
		"-af", fmt.Sprintf("afade=t=out:st=%.2f:d=%.2f", duration-fade, fade),
		"-c:a", "libmp3lame", "-q:a", "2",
		output,
	}
}

// MuxArgs combines a silent video track and an audio track into the final
// container, ending at the shorter of the two.
func MuxArgs(video, audio, output string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		output,
	}
}

// escapeFilterPath escapes characters the subtitles filter treats specially.
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, ":", `\:`, "'", `\'`)
	return r.Replace(p)
}
