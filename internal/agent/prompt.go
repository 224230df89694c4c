package agent

import (
	"fmt"
	"strings"

	"laserlens/internal/state"
)

const toolPreamble = `You are a "Laser Lens" recursive agent with the following capabilities:
  * Embed directives of the form [[COMMAND: NAME key="value" ...]] to run local
    handlers. Values must be quoted and may span lines. Results are shown to you
    in the next loop.
  * File handlers read and write only inside the sandbox output directory.
    EXEC and RUN_PYTHON run there too, with a timeout.
  * Emit [[COMMAND: HELP]] to list every available directive.
  * Emit [[COMMAND: PAUSE reason="..."]] to stop after this loop, or
    [[COMMAND: CANCEL reason="..."]] to end the run.
  * Uploaded context and partial output from earlier runs appear below.
  * Your full response is kept in history and becomes your last thought.
`

const thinkingPreamble = `You are a "Laser Lens" recursive thinking agent.
  * Reason step by step and refine your previous thought each loop.
  * Uploaded context appears below when available.
  * Your full response becomes your last thought in the next loop.
`

// snippetLen caps each history entry shown in the prompt.
const snippetLen = 500

// BuildPrompt assembles the prompt for the current loop from the rendered
// context and the session.
func BuildPrompt(sess *state.Session, contextText string, thinking bool, historyWindow int) string {
	var b strings.Builder

	if thinking {
		b.WriteString(thinkingPreamble)
	} else {
		b.WriteString(toolPreamble)
	}
	if contextText != "" {
		b.WriteString("\n---\n")
		b.WriteString(contextText)
		b.WriteString("\n\n")
	} else {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "You are a recursive agent analyzing: %s\n", sess.Topic)
	fmt.Fprintf(&b, "Loop %d of %d. ", sess.CurrentLoopIndex, sess.TotalLoops)
	b.WriteString("Decide whether to expand on your previous thought or to summarize.\n")

	if recent := recentHistory(sess.History, historyWindow); len(recent) > 0 {
		b.WriteString("\nRecent history:\n")
		offset := len(sess.History) - len(recent)
		for i, turn := range recent {
			fmt.Fprintf(&b, "[Turn %d] %s\n", offset+i+1, snippet(turn.Response))
		}
	}

	if len(sess.CommandResults) > 0 && !thinking {
		b.WriteString("\nCommand results from the previous loop:\n")
		for _, r := range sess.CommandResults {
			fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Result)
		}
	}

	if sess.LastThought != "" {
		fmt.Fprintf(&b, "\nYour last thought:\n%s\n\n", sess.LastThought)
	}
	return b.String()
}

func recentHistory(history []state.Turn, window int) []state.Turn {
	if window <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > window {
		return history[len(history)-window:]
	}
	return history
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
