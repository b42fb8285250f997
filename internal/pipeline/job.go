package pipeline

import (
	"fmt"
	"strings"

	"vidproc/internal/services"
)

// OutputPrefix is prepended to the raw object name to form the published name.
const OutputPrefix = "processed-"

// Job is one request to transcode a raw object. Construct it with NewJob.
type Job struct {
	RawObjectName    string
	VideoID          string
	OwnerID          string
	OutputObjectName string
}

// NewJob derives a job from a raw object name of the form <owner>-<timestamp>.<ext>.
// The video id is the name up to its first dot and the owner id is the video
// id up to its first dash.
func NewJob(name string) (Job, error) {
	if strings.TrimSpace(name) == "" {
		return Job{}, services.Wrap(services.ErrValidation, "intake", "parse", "name is required", nil)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return Job{}, services.Wrap(services.ErrValidation, "intake", "parse", fmt.Sprintf("name %q is not a plain file name", name), nil)
	}
	videoID, _, _ := strings.Cut(name, ".")
	if videoID == "" {
		return Job{}, services.Wrap(services.ErrValidation, "intake", "parse", fmt.Sprintf("name %q has no video id", name), nil)
	}
	ownerID, _, _ := strings.Cut(videoID, "-")
	return Job{
		RawObjectName:    name,
		VideoID:          videoID,
		OwnerID:          ownerID,
		OutputObjectName: OutputPrefix + name,
	}, nil
}
