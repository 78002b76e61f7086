package session

// Logout sources reported to Metrics.
const (
	LogoutSourceUser       = "user"
	LogoutSourcePropagated = "propagated"
)

// Metrics observes protocol outcomes.
type Metrics interface {
	RestoreFinished(outcome Outcome)
	LogoutFinished(source string)
	SyncFailed()
}

type nopMetrics struct{}

func (nopMetrics) RestoreFinished(Outcome) {}
func (nopMetrics) LogoutFinished(string)   {}
func (nopMetrics) SyncFailed()             {}
