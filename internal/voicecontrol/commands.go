package voicecontrol

import (
	"fmt"
	"strings"
)

// Intent names the action a recognized phrase maps to.
type Intent string

const (
	IntentNavigateHome Intent = "navigate_home"
)

const (
	ListeningMessage     = "Listening..."
	NotUnderstoodMessage = "I did not understand. Please try again."
	HomeDestination      = "HomeScreen"
	DefaultUserName      = "Jun"
	DefaultLanguageCode  = "en"

	// DefaultSimulatedTranscript is what the simulated recognizer "hears".
	DefaultSimulatedTranscript = "Smart help me navigate to home page"
)

// Command maps one or more literal phrases to an intent. A transcript matches
// when it contains any phrase, compared case-insensitively.
type Command struct {
	Intent      Intent
	Phrases     []string
	Destination string
	Acknowledge func(userName string) string
}

// DefaultCommands returns the built-in command table.
func DefaultCommands() []Command {
	return []Command{
		{
			Intent:      IntentNavigateHome,
			Phrases:     []string{"navigate to home", "pulang ke rumah"},
			Destination: HomeDestination,
			Acknowledge: func(userName string) string {
				return fmt.Sprintf("Ok noted %s, Now i will redirect to Home Page.", userName)
			},
		},
	}
}

// Match returns the first command whose phrase occurs in transcript.
func Match(commands []Command, transcript string) (Command, bool) {
	text := strings.ToLower(transcript)
	if strings.TrimSpace(text) == "" {
		return Command{}, false
	}
	for _, cmd := range commands {
		for _, phrase := range cmd.Phrases {
			p := strings.ToLower(strings.TrimSpace(phrase))
			if p == "" {
				continue
			}
			if strings.Contains(text, p) {
				return cmd, true
			}
		}
	}
	return Command{}, false
}

func (c Command) acknowledgement(userName string) string {
	if c.Acknowledge == nil {
		return ""
	}
	return c.Acknowledge(userName)
}
