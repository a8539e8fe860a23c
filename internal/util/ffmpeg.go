package util

import (
	"cmp"
	"fmt"
	"os/exec"
)

// ResolveFFmpegPath locates the FFmpeg binary, preferring configured over a
// PATH lookup of "ffmpeg".
func ResolveFFmpegPath(configured string) (string, error) {
	name := cmp.Or(configured, "ffmpeg")
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("ffmpeg %q not usable: %w", name, err)
	}
	return path, nil
}
