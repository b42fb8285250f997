package pipeline

// Outcome is the terminal result of admitting or running a job.
type Outcome int

const (
	// Accepted means the job was admitted and will run asynchronously.
	Accepted Outcome = iota
	// Conflict means the video is already processing or processed.
	Conflict
	// InputUnavailable means the raw object was missing or could not be downloaded.
	InputUnavailable
	// TranscodeFailed means the transcoder was missing its input or reported an error.
	TranscodeFailed
	// PublishFailed means the processed output could not be uploaded.
	PublishFailed
	// Failed covers status store errors.
	Failed
	// Completed means the output is published and the record is processed.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Conflict:
		return "conflict"
	case InputUnavailable:
		return "input_unavailable"
	case TranscodeFailed:
		return "transcode_failed"
	case PublishFailed:
		return "publish_failed"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}
