// Package intent classifies incoming comments into the small set of actions the bot
// understands.
package intent

import (
	"fmt"
	"regexp"
)

// Type tags the classification of a comment. Classification is total: every comment maps to
// exactly one type, with Design as the default
type Type int

const (
	// Status marks the bot's own queued/processing acknowledgment comments
	Status Type = iota
	// Approve marks an explicit "@bot APPROVED" instruction to execute the discussed work
	Approve
	// Design marks everything else: a free-form design or refinement request
	Design
)

func (t Type) String() string {
	switch t {
	case Status:
		return "status"
	case Approve:
		return "approve"
	case Design:
		return "design"
	}
	return fmt.Sprintf("intent(%d)", int(t))
}

// Action is the classification of one comment
type Action struct {
	Type Type
	Body string
}

// The acknowledgment phrases the bot posts when accepting and starting work on an event.
// The classifier matches against these so the bot's own scaffolding comments are never
// treated as conversation
const (
	StatusQueued     = "Queued for processing..."
	StatusProcessing = "Processing this now"
)

var statusPattern = regexp.MustCompile(`(?i)(Queued for processing\.\.\.|Processing this now)`)

// Classifier classifies comments relative to a bot identity
type Classifier struct {
	botName        string
	approvePattern *regexp.Regexp
}

// NewClassifier creates a Classifier for the given bot account name
func NewClassifier(botName string) Classifier {
	return Classifier{
		botName:        botName,
		approvePattern: regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botName) + `\s*APPROVED`),
	}
}

// Classify maps a comment body and its author to exactly one Action. Rule order, first match
// wins: the bot's own status acknowledgments, then approval, then design by default
func (c Classifier) Classify(body string, author string) Action {
	if author == c.botName && statusPattern.MatchString(body) {
		return Action{Type: Status, Body: body}
	}

	if c.approvePattern.MatchString(body) {
		return Action{Type: Approve, Body: body}
	}

	return Action{Type: Design, Body: body}
}
