package demux

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/subforge/subex/pkg/log"
)

// FFProbe lists the subtitle tracks of arbitrary media containers and
// extracts text tracks at file granularity by shelling out to
// ffprobe/ffmpeg. Bitmap tracks need a packet-level source such as
// VobSubFile.
type FFProbe struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewFFProbe() *FFProbe {
	return &FFProbe{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
	}
}

// Probe lists the subtitle tracks of the container at path.
func (f *FFProbe) Probe(ctx context.Context, path string) ([]Track, error) {
	cmdPath, err := exec.LookPath(f.ffprobeCmd)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, f.probeArgs(path)...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe: %v", err)
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probeResult struct {
		Streams []struct {
			Index     int64  `json:"index"`
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Tags      struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	tracks := make([]Track, 0, len(probeResult.Streams))
	for _, stream := range probeResult.Streams {
		if stream.CodecType != "subtitle" {
			continue
		}
		lang := stream.Tags.Language
		if lang == "" {
			lang = "und"
		}
		tracks = append(tracks, Track{
			ID:       stream.Index,
			CodecID:  stream.CodecName,
			Language: lang,
			Name:     stream.Tags.Title,
		})
	}
	return tracks, nil
}

// ExtractTextTrack dumps the subtitleIndex-th subtitle track of the
// container to targetPath as SRT.
func (f *FFProbe) ExtractTextTrack(ctx context.Context, path string, subtitleIndex int, targetPath string) error {
	cmdPath, err := exec.LookPath(f.ffmpegCmd)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, cmdPath, f.extractArgs(path, subtitleIndex, targetPath)...)

	if output, err := cmd.CombinedOutput(); err != nil {
		log.Error("Failed to extract subtitle track: %v", err)
		return fmt.Errorf("ffmpeg extract %s track %d: %w (%s)",
			path, subtitleIndex, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (f *FFProbe) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "s",
		path,
	}
}

func (f *FFProbe) extractArgs(path string, subtitleIndex int, targetPath string) []string {
	return []string{
		"-y",
		"-i", path,
		"-map", fmt.Sprintf("0:s:%d", subtitleIndex),
		"-c:s", "srt",
		"-f", "srt",
		targetPath,
	}
}
