// Package transcode supervises the external ffmpeg process that downscales a
// staged raw video to the configured height.
package transcode
