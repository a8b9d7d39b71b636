package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harun/chanbridge/pkg/agent"
)

const (
	maxErrorLength = 500
	maxDiffLength  = 3900
	truncateMarker = "\n... (truncated)"
)

const usageText = "No active session for this channel.\n" +
	"• `/projects` lists the available projects\n" +
	"• `/new <path>` starts an agent session in a project\n" +
	"• `/diff` shows uncommitted changes in the session's project\n" +
	"Once a session is active, every message here is sent to the agent."

const noSessionText = "No active session. Start one with `/new <path>`."

// truncate shortens s to at most limit bytes (marker included) without
// splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncateMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + truncateMarker
}

// formatAgentError renders an agent failure for the channel
func formatAgentError(err error) string {
	var detail string
	var agentErr *agent.Error
	if errors.As(err, &agentErr) {
		detail = agentErr.Detail
	} else {
		detail = err.Error()
	}
	detail = truncate(strings.TrimSpace(detail), maxErrorLength)

	if agentErr != nil && agentErr.Retryable() {
		return fmt.Sprintf("The agent is temporarily unavailable (%d attempts). Try again in a moment.\n%s", agentErr.Attempt+1, codeBlock(detail))
	}
	return "The agent failed.\n" + codeBlock(detail)
}

func codeBlock(s string) string {
	return "```\n" + s + "\n```"
}
