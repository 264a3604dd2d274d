package live

import (
	"unicode"
	"unicode/utf8"
)

type speaker int

const (
	speakerIdle speaker = iota
	speakerUser
	speakerAgent
)

func (s speaker) String() string {
	switch s {
	case speakerUser:
		return "user"
	case speakerAgent:
		return "agent"
	default:
		return "idle"
	}
}

// turnAccumulator builds the running transcript of the current turn for
// both sides. Not safe for concurrent use; the session's read loop owns it.
type turnAccumulator struct {
	mode  speaker
	agent string
	user  string
}

// addUser appends an input transcription fragment and returns the
// cumulative user text.
func (a *turnAccumulator) addUser(fragment string) string {
	if a.mode == speakerAgent {
		if a.agent != "" {
			a.user = ""
		}
		a.agent = ""
	}
	a.mode = speakerUser
	a.user = joinWithSpace(a.user, fragment)
	return a.user
}

// addAgent appends an output transcription fragment and returns the
// cumulative agent text.
func (a *turnAccumulator) addAgent(fragment string) string {
	if a.mode != speakerAgent {
		if a.user != "" {
			a.agent = ""
		}
		a.user = ""
	}
	a.mode = speakerAgent
	a.agent = joinWithSpace(a.agent, fragment)
	return a.agent
}

// addAgentText appends model-turn text without changing who is speaking.
func (a *turnAccumulator) addAgentText(fragment string) string {
	a.agent = joinWithSpace(a.agent, fragment)
	return a.agent
}

func (a *turnAccumulator) reset() {
	a.mode = speakerIdle
	a.agent = ""
	a.user = ""
}

// joinWithSpace concatenates two fragments, inserting a single space only
// when neither side already provides whitespace at the boundary.
func joinWithSpace(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	last, _ := utf8.DecodeLastRuneInString(a)
	first, _ := utf8.DecodeRuneInString(b)
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return a + b
	}
	return a + " " + b
}
