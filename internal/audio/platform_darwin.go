//go:build darwin

package audio

var currentPlatform = platformCapture{
	command:       "ffmpeg",
	defaultDevice: ":0",
	usesFFmpeg:    true,
	args:          ffmpegCaptureArgs("avfoundation"),
	listing:       avfoundationListing,
}
