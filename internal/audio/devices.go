package audio

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// deviceListing describes how a platform enumerates its capture devices.
type deviceListing struct {
	command []string
	// start and stop delimit the audio section of the output. Empty start
	// means the whole output is scanned.
	start, stop string
	pattern     *regexp.Regexp
	device      func(m []string) Device
	fallback    []Device
}

var (
	// alsaListing parses `arecord -l`: "card 1: Device [USB Audio Device], ...".
	alsaListing = deviceListing{
		command: []string{"arecord", "-l"},
		pattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		device: func(m []string) Device {
			return Device{ID: "default:CARD=" + m[2], Name: m[3]}
		},
		fallback: []Device{{ID: "default:CARD=sndrpihifiberry", Name: "HiFiBerry (default)"}},
	}

	// avfoundationListing parses FFmpeg's AVFoundation device list.
	avfoundationListing = deviceListing{
		command: []string{"ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		start:   "AVFoundation audio devices:",
		stop:    "AVFoundation video devices:",
		pattern: regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		device: func(m []string) Device {
			return Device{ID: ":" + m[1], Name: strings.TrimSpace(m[2])}
		},
	}

	// dshowListing parses FFmpeg's DirectShow device list. Section headers
	// differ between FFmpeg versions, so audio devices are recognized by
	// their "(audio)" suffix instead.
	dshowListing = deviceListing{
		command: []string{"ffmpeg", "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		pattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
		device: func(m []string) Device {
			name := strings.TrimSpace(m[1])
			return Device{ID: "audio=" + name, Name: name}
		},
	}
)

// Devices returns available audio input devices for the current platform.
func Devices() []Device {
	return currentPlatform.listing.list()
}

func (l deviceListing) list() []Device {
	if len(l.command) == 0 {
		return l.fallback
	}
	// Listing commands exit non-zero by design; only empty output is a failure.
	out, err := exec.Command(l.command[0], l.command[1:]...).CombinedOutput()
	if err != nil && len(out) == 0 {
		slog.Warn("failed to list audio devices", "command", l.command[0], "error", err)
		return l.fallback
	}
	return l.parse(string(out))
}

// parse extracts devices from listing output, or returns the fallback
// devices when none are found.
func (l deviceListing) parse(output string) []Device {
	var devices []Device
	inSection := l.start == ""
	for line := range strings.Lines(output) {
		switch {
		case l.start != "" && strings.Contains(line, l.start):
			inSection = true
			continue
		case l.stop != "" && strings.Contains(line, l.stop):
			inSection = false
			continue
		}
		if !inSection || strings.Contains(line, "Alternative name") {
			continue
		}
		if m := l.pattern.FindStringSubmatch(line); m != nil {
			devices = append(devices, l.device(m))
		}
	}
	if len(devices) == 0 {
		return l.fallback
	}
	return devices
}
