package encode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// probeInfo is the subset of ffprobe's JSON output used for cover detection
type probeInfo struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Tags      map[string]string `json:"tags"`
}

// placeholderSize is the dimension of the generic artwork some stores embed
const placeholderSize = 849

// probeVideoStreams lists the picture streams embedded in path
func (f *FFmpeg) probeVideoStreams(ctx context.Context, path string) ([]probeStream, error) {
	code, out, err := f.probe(ctx, f.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v",
		path,
	)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("ffprobe exited %d: %s", code, strings.TrimSpace(out))
	}

	var info probeInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return info.Streams, nil
}

// chooseCover picks the stream that looks most like front artwork: the most
// square picture, ignoring logos and very wide banners. It returns -1 when
// nothing qualifies or when the file carries the store placeholder.
func chooseCover(streams []probeStream) int {
	best := -1
	bestDiff := 0
	for _, s := range streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}
		if s.Width == placeholderSize && s.Height == placeholderSize {
			return -1
		}
		if strings.Contains(strings.ToLower(s.Tags["comment"]), "logotype") {
			continue
		}
		if s.Width > 3*s.Height || s.Height > 3*s.Width {
			continue
		}

		diff := s.Width - s.Height
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = s.Index
			bestDiff = diff
		}
	}
	return best
}
