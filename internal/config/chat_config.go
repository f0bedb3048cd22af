package config

import "time"

const (
	// Rooms
	RoomIDSeparator = "_"

	// Process
	ProcessStepCount = 10

	// Messages
	SystemSenderName     = "System"
	MaxMessageLength     = 4000
	DeletedMessageNotice = "This message was deleted"
	RoomSummaryMaxLength = 140

	// Device token registration is the only retried side effect.
	TokenRegisterAttempts = 3
	TokenRegisterBackoff  = 200 * time.Millisecond

	// Notifications
	DefaultDedupeTTL = 24 * time.Hour
	MemoryDedupeSize = 10000

	// Shared presence entries outlive a missed ping or two.
	DefaultPresenceTTL = 2 * time.Minute
)

// ProcessStepTitles names the ten ordinal steps of one adoption cycle.
var ProcessStepTitles = [ProcessStepCount]string{
	"Application submitted",
	"Document review",
	"Background check",
	"Interview",
	"Home study",
	"Parenting course",
	"Matching",
	"Pre-placement visits",
	"Placement",
	"Post-placement follow-up",
}

// StepTitle returns the title of a 1-based step, or "" when out of range.
func StepTitle(step int) string {
	if step < 1 || step > ProcessStepCount {
		return ""
	}
	return ProcessStepTitles[step-1]
}
