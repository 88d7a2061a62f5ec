package domain

// Video job statuses reported by the synthesis provider.
const (
	JobStatusDone     = "done"
	JobStatusError    = "error"
	JobStatusRejected = "rejected"
)

// AvatarProfile pairs a stored avatar image with a synthesis voice.
type AvatarProfile struct {
	ImageKey string `yaml:"image"`
	VoiceID  string `yaml:"voice"`
}

// TalkRequest is the provider-neutral video submission.
type TalkRequest struct {
	Script    string
	VoiceID   string
	SourceURL string
	Name      string
}

// VideoJob is the latest observed state of a submitted synthesis job.
type VideoJob struct {
	ID           string
	Status       string
	ResultURL    string
	ThumbnailURL string
	// Raw is the undecoded provider payload, kept for diagnostics.
	Raw string
}

// Terminal reports whether polling must stop.
func (j VideoJob) Terminal() bool {
	switch j.Status {
	case JobStatusDone, JobStatusError, JobStatusRejected:
		return true
	}
	return false
}

// VideoResult is a playable video and its preview image.
type VideoResult struct {
	Introduction string
	VideoURL     string
	PreviewURL   string
	JobID        string
}
