package filehandler

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// VideoProbe holds stream properties reported by ffprobe. It is logged
// before upload so an operator can spot a wrong input early.
type VideoProbe struct {
	Duration   time.Duration
	Width      int
	Height     int
	FrameRate  float64
	Codec      string
	BitRate    int64
	AudioCodec string
}

// IsFFprobeAvailable returns true if ffprobe is available in the system PATH.
func IsFFprobeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// ffprobeOutput represents the JSON structure from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// ProbeVideo runs ffprobe against filePath.
func ProbeVideo(ctx context.Context, filePath string) (*VideoProbe, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	probe, err := parseProbe(output)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Dur("duration", probe.Duration).
		Int("width", probe.Width).
		Int("height", probe.Height).
		Float64("frame_rate", probe.FrameRate).
		Str("codec", probe.Codec).
		Msg("Video probed via ffprobe")
	return probe, nil
}

// parseProbe extracts a VideoProbe from ffprobe JSON output. The first video
// and audio streams win.
func parseProbe(output []byte) (*VideoProbe, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	probe := &VideoProbe{}
	if raw.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			probe.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	if raw.Format.BitRate != "" {
		probe.BitRate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)
	}

	for _, stream := range raw.Streams {
		switch stream.CodecType {
		case "video":
			if probe.Codec == "" {
				probe.Codec = stream.CodecName
				probe.Width = stream.Width
				probe.Height = stream.Height
				probe.FrameRate = parseFrameRate(stream.RFrameRate)
			}
		case "audio":
			if probe.AudioCodec == "" {
				probe.AudioCodec = stream.CodecName
			}
		}
	}
	return probe, nil
}

// parseFrameRate parses frame rate from ffprobe format (e.g., "60/1" -> 60.0)
func parseFrameRate(value string) float64 {
	parts := strings.Split(value, "/")
	if len(parts) == 2 {
		num, _ := strconv.ParseFloat(parts[0], 64)
		den, _ := strconv.ParseFloat(parts[1], 64)
		if den != 0 {
			return num / den
		}
		return 0
	}
	rate, _ := strconv.ParseFloat(value, 64)
	return rate
}

// Resolution returns "WxH", or "" when unknown.
func (p *VideoProbe) Resolution() string {
	if p.Width == 0 || p.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}
