// Package types defines shared identifiers and enumerations used across
// the engagement monitor.
package types

// JobType identifies the kind of crawl work a job represents.
type JobType string

const (
	JobRetweets JobType = "retweets"
	JobReplies  JobType = "replies"
	JobQuotes   JobType = "quotes"
	JobMetrics  JobType = "metrics"
)

// AllJobTypes lists every job type enqueued for a campaign target.
var AllJobTypes = []JobType{JobMetrics, JobRetweets, JobReplies, JobQuotes}

// IsValid reports whether the job type is one of the known kinds.
func (t JobType) IsValid() bool {
	switch t {
	case JobRetweets, JobReplies, JobQuotes, JobMetrics:
		return true
	}
	return false
}

// DefaultPriority returns the enqueue priority for a job type.
// Priority is a tie-break only; claim ordering is oldest-first.
func (t JobType) DefaultPriority() int {
	switch t {
	case JobMetrics:
		return 1
	case JobRetweets:
		return 2
	default:
		return 3
	}
}

// JobStatus is the state-machine position of a job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ActionType is the kind of engagement an account performed on a target.
type ActionType string

const (
	ActionRetweet ActionType = "retweet"
	ActionReply   ActionType = "reply"
	ActionQuote   ActionType = "quote"
	ActionLike    ActionType = "like"
)

// ActionForJob maps a crawl job type to the engagement action it produces.
func ActionForJob(t JobType) ActionType {
	switch t {
	case JobRetweets:
		return ActionRetweet
	case JobReplies:
		return ActionReply
	default:
		return ActionQuote
	}
}

// AlertStatus is the delivery state of a scheduled alert.
type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertSent    AlertStatus = "sent"
	AlertSkipped AlertStatus = "skipped"
)
