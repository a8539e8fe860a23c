//go:build windows

package audio

// DirectShow has no default device; the first listed one is used.
var currentPlatform = platformCapture{
	command:    "ffmpeg",
	usesFFmpeg: true,
	args:       ffmpegCaptureArgs("dshow"),
	listing:    dshowListing,
}
