// Package conversation implements the chat prompt-resolution state machine.
//
// Step is pure: it takes a session and an event and returns the next session
// plus the effects the caller must run (replies, classification, generation).
// Results of effects come back as events.
package conversation

import (
	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/ashureev/reelbot/internal/domain"
)

// Event is an input to Step.
type Event interface {
	event()
}

// Message is inbound text from the user.
type Message struct {
	Text string
}

// Classified carries the classifier verdict for a prompt requested by a Classify effect.
type Classified struct {
	Prompt         string
	Classification classifier.Classification
}

// GenerationDone reports that generation ID was delivered.
type GenerationDone struct {
	ID    string
	Entry domain.HistoryEntry
}

// GenerationFailed reports that generation ID ended without delivery.
type GenerationFailed struct {
	ID     string
	Reason string
}

func (Message) event()          {}
func (Classified) event()       {}
func (GenerationDone) event()   {}
func (GenerationFailed) event() {}

// Effect is an action requested by Step.
type Effect interface {
	effect()
}

// Reply sends text to the user.
type Reply struct {
	Text string
}

// Classify asks the classifier about Prompt and feeds back a Classified event.
type Classify struct {
	Prompt string
}

// StartGeneration launches generation ID for Prompt.
type StartGeneration struct {
	ID     string
	Prompt domain.ResolvedPrompt
}

// AbortGeneration cancels generation ID. Completion may still arrive and is ignored.
type AbortGeneration struct {
	ID string
}

func (Reply) effect()           {}
func (Classify) effect()        {}
func (StartGeneration) effect() {}
func (AbortGeneration) effect() {}
