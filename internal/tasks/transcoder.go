package tasks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/models"
)

// TranscodeResult is the outcome of a finished transcoding job
type TranscodeResult struct {
	DurationSec  int
	PlaylistPath string
	ThumbnailURL string
}

// Transcoder turns a raw upload into streamable output. The pipeline is
// opaque to the rest of the system: it either produces a result or an error.
type Transcoder interface {
	Transcode(ctx context.Context, video *models.Video) (*TranscodeResult, error)
}

// DefaultTranscoder is the implementation used by the worker. Tests and
// alternative pipelines swap it out.
var DefaultTranscoder Transcoder = &FFmpegTranscoder{
	InputDir:  os.Getenv("VIDEO_UPLOAD_DIR"),
	OutputDir: os.Getenv("VIDEO_OUTPUT_DIR"),
}

// FFmpegTranscoder shells out to ffmpeg to produce an HLS rendition and a
// thumbnail under the video's storage key.
type FFmpegTranscoder struct {
	InputDir  string
	OutputDir string
}

func (t *FFmpegTranscoder) Transcode(ctx context.Context, video *models.Video) (*TranscodeResult, error) {
	input := filepath.Join(t.InputDir, video.StorageKey+".mp4")
	outDir := filepath.Join(t.OutputDir, video.StorageKey)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	thumbnail := filepath.Join(outDir, "thumbnail.jpg")
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", input,
		"-ss", "00:00:05",
		"-vframes", "1",
		"-vf", "scale=640:360",
		thumbnail,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("thumbnail generation failed: %v: %s", err, out)
	}

	playlist := filepath.Join(outDir, "index.m3u8")
	cmd = exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", input,
		"-vf", "scale=1280:720",
		"-c:v", "h264", "-b:v", "2500k",
		"-c:a", "aac",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		playlist,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("hls transcode failed: %v: %s", err, out)
	}

	return &TranscodeResult{
		PlaylistPath: playlist,
		ThumbnailURL: thumbnail,
	}, nil
}
