package domain

// JobStatus tracks each merge pipeline stage for a single sync job.
type JobStatus string

const (
	JobStatusIdle             JobStatus = "idle"
	JobStatusValidatingInputs JobStatus = "validating_inputs"
	JobStatusAdjustingAudio   JobStatus = "adjusting_audio"
	JobStatusMerging          JobStatus = "merging"
	JobStatusCleaningUp       JobStatus = "cleaning_up"
	JobStatusSucceeded        JobStatus = "succeeded"
	JobStatusFailed           JobStatus = "failed"
	JobStatusCancelled        JobStatus = "cancelled"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir   string `json:"outputDir" yaml:"outputDir"`
	ScratchDir  string `json:"scratchDir" yaml:"scratchDir"`
	AudioCodec  string `json:"audioCodec" yaml:"audioCodec"`
	FFmpegPath  string `json:"ffmpegPath" yaml:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath" yaml:"ffprobePath"`
	VaapiDevice string `json:"vaapiDevice" yaml:"vaapiDevice"`
	LogLevel    string `json:"logLevel" yaml:"logLevel"`
}

// SyncJob is one user request: a video, a separately sourced audio track,
// and the offset text exactly as the user typed it.
type SyncJob struct {
	VideoPath  string `json:"videoPath"`
	AudioPath  string `json:"audioPath"`
	OffsetText string `json:"offset"`
	OutputDir  string `json:"outputDir,omitempty"`
	ScratchDir string `json:"scratchDir,omitempty"`
	AudioCodec string `json:"audioCodec,omitempty"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	VideoPath  string    `json:"videoPath,omitempty"`
	OutputPath string    `json:"outputPath,omitempty"`
}
