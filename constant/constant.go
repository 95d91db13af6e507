package constant

type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "not_started"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Rank orders statuses along the session lifecycle. Unknown statuses rank -1.
func (s SessionStatus) Rank() int {
	switch s {
	case SessionStatusNotStarted:
		return 0
	case SessionStatusInProgress:
		return 1
	case SessionStatusProcessing:
		return 2
	case SessionStatusCompleted, SessionStatusFailed:
		return 3
	}
	return -1
}

// Pending reports whether the backend is still producing results for the session.
func (s SessionStatus) Pending() bool {
	return s == SessionStatusInProgress || s == SessionStatusProcessing
}

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

func (s SessionStatus) String() string {
	return string(s)
}

type RecordingStatus string

const (
	RecordingStatusIdle      RecordingStatus = "IDLE"
	RecordingStatusRecording RecordingStatus = "RECORDING"
	RecordingStatusRecorded  RecordingStatus = "RECORDED"
	RecordingStatusUploading RecordingStatus = "UPLOADING"
	RecordingStatusUploaded  RecordingStatus = "UPLOADED"
)

type Category string

const (
	CategoryHighlyRecommended Category = "Highly Recommended"
	CategoryRecommended       Category = "Recommended"
	CategoryAverage           Category = "Average"
	CategoryNotRecommended    Category = "Not Recommended"
)

// Recommended reports whether the category counts towards the roster's recommended total.
func (c Category) Recommended() bool {
	return c == CategoryHighlyRecommended || c == CategoryRecommended
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
