package process

// Stage is the orchestrator's position in the resumable pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageDownloaded
	StageCurrentMapLoaded
	StagePreviousMapLoaded
	StageDiffStarted
	StageDiffFinished
	StageUploadStarted
	StageUploadFinished

	// StageToggleRunning is entered out of band by the remap engine; the
	// main pipeline must not start while it is set.
	StageToggleRunning
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageDownloaded:
		return "downloaded"
	case StageCurrentMapLoaded:
		return "current map loaded"
	case StagePreviousMapLoaded:
		return "previous map loaded"
	case StageDiffStarted:
		return "diff started"
	case StageDiffFinished:
		return "diff finished"
	case StageUploadStarted:
		return "upload started"
	case StageUploadFinished:
		return "upload finished"
	case StageToggleRunning:
		return "toggle running"
	default:
		return "unknown"
	}
}
