package types

import (
	"testing"
)

func TestJobTypeIsValid(t *testing.T) {
	tests := []struct {
		jobType JobType
		want    bool
	}{
		{JobRetweets, true},
		{JobReplies, true},
		{JobQuotes, true},
		{JobMetrics, true},
		{JobType("likes"), false},
		{JobType(""), false},
	}

	for _, tt := range tests {
		if got := tt.jobType.IsValid(); got != tt.want {
			t.Errorf("JobType(%q).IsValid() = %v, want %v", tt.jobType, got, tt.want)
		}
	}
}

func TestAllJobTypesValid(t *testing.T) {
	for _, jt := range AllJobTypes {
		if !jt.IsValid() {
			t.Errorf("AllJobTypes contains invalid job type %q", jt)
		}
	}
	if len(AllJobTypes) != 4 {
		t.Errorf("AllJobTypes has %d entries, want 4", len(AllJobTypes))
	}
}

func TestDefaultPriority(t *testing.T) {
	if JobMetrics.DefaultPriority() >= JobRetweets.DefaultPriority() {
		t.Error("metrics jobs should outrank retweet jobs")
	}
	if JobRetweets.DefaultPriority() >= JobReplies.DefaultPriority() {
		t.Error("retweet jobs should outrank reply jobs")
	}
	if JobReplies.DefaultPriority() != JobQuotes.DefaultPriority() {
		t.Error("reply and quote jobs should share a priority")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobPending, false},
		{JobProcessing, false},
		{JobRetrying, false},
		{JobCompleted, true},
		{JobFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("JobStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActionForJob(t *testing.T) {
	tests := []struct {
		jobType JobType
		want    ActionType
	}{
		{JobRetweets, ActionRetweet},
		{JobReplies, ActionReply},
		{JobQuotes, ActionQuote},
	}

	for _, tt := range tests {
		if got := ActionForJob(tt.jobType); got != tt.want {
			t.Errorf("ActionForJob(%q) = %q, want %q", tt.jobType, got, tt.want)
		}
	}
}
