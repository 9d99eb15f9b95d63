package agent

import (
	"regexp"
	"strings"
)

// toolMentionHallucinationThreshold is the number of distinct available tool
// names that must appear in a tool-call-free reply before it is treated as a
// hallucinated tool-use narration.
const toolMentionHallucinationThreshold = 3

// actionClaimRe matches phrases where the assistant claims to have performed
// an action (first-person past tense, passive voice, or a terminal status
// line) without having actually issued a tool call this turn.
var actionClaimRe = regexp.MustCompile(`(?i)` +
	`(?:\b(?:I(?:'ve| have) (?:updated|written|created|set up|configured|saved|deleted|removed|added|modified|changed|installed|fixed|applied|edited|committed|deployed|sent|scheduled|enabled|disabled|tested|ran|executed|fetched|searched|checked|verified|completed|performed|called|started|listed|read)` +
	`|I (?:updated|wrote|created|set up|configured|saved|deleted|removed|added|modified|changed|installed|fixed|applied|edited|committed|deployed|sent|scheduled|enabled|disabled|tested|ran|executed|fetched|searched|checked|verified|completed|performed|called|started|listed|read)` +
	`|(?:Changes|Updates|Modifications) (?:have been|were) (?:made|applied|saved|committed)` +
	`|(?:File|Config|Settings?) (?:has been|was) (?:updated|written|created|modified|saved|deleted)` +
	`|All (?:tools?|tests?|checks?) (?:are |were |have been )?(?:fully )?(?:working|functional|successful|passing|passed|completed)` +
	`|(?:Successfully|Already) (?:tested|executed|completed|verified|fetched|ran|performed|called|created|updated|sent|deleted))\b` +
	`|(?:^|\n)(?:Created|Updated|Deleted|Removed|Added|Saved|Sent|Scheduled|Completed|Done|Configured|Fixed|Applied|Deployed|Executed|Started|Enabled|Disabled|Marked(?: as)? (?:complete|done)) *[:—!])`)

// falseNoToolsRe matches phrases where the assistant falsely claims it has no
// tools available, when in fact tools were offered to the provider.
var falseNoToolsRe = regexp.MustCompile(`(?i)` +
	`(?:I (?:don't|do not|cannot|can't) have (?:access to )?(?:any )?tools` +
	`|(?:no tools|tools (?:are|aren't) (?:not )?available)` +
	`|I(?:'m| am) (?:not able|unable) to (?:use|access|call) tools)`)

// ContainsActionClaims reports whether text contains phrasing claiming an
// action was performed, used to catch a hallucinated tool-use narration when
// no tool call actually accompanied the reply.
func ContainsActionClaims(text string) bool {
	return actionClaimRe.MatchString(text)
}

// IsFalseNoToolsClaim reports whether text falsely claims no tools are
// available, despite tools having been offered to the provider this turn.
func IsFalseNoToolsClaim(text string) bool {
	return falseNoToolsRe.MatchString(text)
}

// MentionsMultipleTools reports whether text mentions at least
// toolMentionHallucinationThreshold distinct tool names, which suggests the
// assistant narrated tool results it never actually produced via a call.
func MentionsMultipleTools(text string, toolNames []string) bool {
	lower := strings.ToLower(text)
	count := 0
	for _, name := range toolNames {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			count++
			if count >= toolMentionHallucinationThreshold {
				return true
			}
		}
	}
	return false
}

// IsHallucinatedToolUse reports whether a tool-call-free reply should be
// treated as a hallucination and corrected rather than accepted as a final
// answer, per the loop's per-call any_tools_called tracking.
func IsHallucinatedToolUse(text string, toolNames []string, anyToolsCalledThisTurn bool) bool {
	if anyToolsCalledThisTurn {
		return false
	}
	if text == "" {
		return false
	}
	return ContainsActionClaims(text) || IsFalseNoToolsClaim(text) || MentionsMultipleTools(text, toolNames)
}

// correctiveMessage is appended to the conversation when a hallucination is
// detected, prompting the model to retry with an actual tool call.
const correctiveMessage = "You did not use any tools this turn but your reply describes taking action. " +
	"If you need to perform an action, call the appropriate tool. Otherwise, clarify that nothing was actually done."

// emptyResponseFallback is returned when the provider yields an empty
// response emptyResponseRetries times in a row.
const emptyResponseFallback = "No response generated."

// emptyResponseRetries bounds how many times the loop re-calls the provider
// after receiving an empty completion (no text, no tool calls) before giving
// up and returning emptyResponseFallback.
const emptyResponseRetries = 3
