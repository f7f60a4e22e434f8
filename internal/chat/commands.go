package chat

import "strings"

// CommandPrefix marks a prompt as a local command that never reaches the
// completion provider.
const CommandPrefix = "/"

const unknownCommandReply = "Command not recognized. Type 'help' for a list of commands."

var commandReplies = map[string]string{
	"help": "Available commands:\n" +
		"1. help - Show this help message.\n" +
		"2. info - Get information about Computational Fluid Dynamics.\n" +
		"3. exit - End the conversation.",
	"info": "Computational Fluid Dynamics (CFD) is a branch of fluid mechanics that uses " +
		"numerical analysis and algorithms to solve problems involving fluid flows.",
	"exit": "Ending the conversation. You can start a new one anytime.",
}

// IsCommand reports whether a trimmed prompt is a slash command.
func IsCommand(prompt string) bool {
	return strings.HasPrefix(prompt, CommandPrefix)
}

// HandleCommand returns the canned reply for a command name (without the
// prefix). Matching is case-insensitive; surrounding spaces are significant.
func HandleCommand(name string) (reply string, known bool) {
	reply, known = commandReplies[strings.ToLower(name)]
	if !known {
		return unknownCommandReply, false
	}
	return reply, true
}
