// Package platform defines the adapter contract the core depends on to
// receive inbound messages and send replies, independent of which chat or
// issue-tracker surface is wired up (GitHub, Slack, Telegram, ...).
package platform

// StreamMode controls how the orchestrator fans out assistant chunks to an
// adapter.
type StreamMode string

const (
	// Stream sends assistant and tool chunks to the platform as they
	// arrive.
	Stream StreamMode = "stream"
	// Batch buffers assistant chunks, silently logs tool chunks, and
	// sends one cleaned final message per turn.
	Batch StreamMode = "batch"
)

// IsolationHint carries platform-side metadata that tells the orchestrator
// an isolation environment is needed (or should be torn down) for this
// message.
type IsolationHint struct {
	WorkflowType string
	Identifier   string
	PRBranch     string
	PRSha        string
	IsForkPR     bool
	// Close, when true, means this message represents a close event
	// (issue closed, PR merged/closed) and the environment should be
	// destroyed rather than created.
	Close bool
}

// Adapter is the contract an integration implements so the core can send
// replies without knowing which platform originated a conversation.
type Adapter interface {
	SendMessage(conversationID, text string) error
	StreamingMode() StreamMode
	PlatformType() string
	// EnsureThread returns a conversation id to continue replying into.
	// Adapters without threading just return the input unchanged.
	EnsureThread(conversationID string, hint *IsolationHint) (string, error)
}
