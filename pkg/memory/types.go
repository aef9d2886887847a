package memory

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultMaxHistory is the number of entries kept per user.
	DefaultMaxHistory = 20

	// TimestampLayout matches the ISO-8601 form already present in
	// existing user_log files.
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

// Entry is one turn in a user's conversation log.
type Entry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}
