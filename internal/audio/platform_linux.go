//go:build linux

package audio

var currentPlatform = platformCapture{
	command:       "arecord",
	defaultDevice: "default:CARD=sndrpihifiberry",
	args:          arecordArgs,
	listing:       alsaListing,
}
