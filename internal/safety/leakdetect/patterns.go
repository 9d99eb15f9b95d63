package leakdetect

import "regexp"

// namedPattern is a single named secret signature: a literal prefix usable
// for Aho-Corasick prefiltering (empty when no reliable prefix exists) and
// the full regex checked once the prefix is known to occur.
type namedPattern struct {
	name   string
	prefix string
	re     *regexp.Regexp
}

// builtinPatterns mirrors the fixed signature set: Anthropic, OpenAI, Slack
// bot/app, GitHub PAT classic and fine-grained, AWS access key, Groq,
// Telegram bot, Discord bot.
var builtinPatterns = mustBuildPatterns([]namedPattern{
	{name: "anthropic_api_key", prefix: "sk-ant-api", re: regexp.MustCompile(`sk-ant-api\d{2}-[\w-]{90,}`)},
	{name: "openai_api_key", prefix: "sk-", re: regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{name: "slack_bot_token", prefix: "xoxb-", re: regexp.MustCompile(`xoxb-[0-9]+-[0-9]+-[A-Za-z0-9]+`)},
	{name: "slack_app_token", prefix: "xapp-", re: regexp.MustCompile(`xapp-[0-9]+-[A-Za-z0-9]+-[A-Za-z0-9]+`)},
	{name: "github_pat", prefix: "ghp_", re: regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`)},
	{name: "github_fine_grained_pat", prefix: "github_pat_", re: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{70,}`)},
	{name: "aws_access_key", prefix: "AKIA", re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{name: "groq_api_key", prefix: "gsk_", re: regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`)},
	{name: "telegram_bot_token", prefix: "", re: regexp.MustCompile(`[0-9]{8,10}:[A-Za-z0-9_-]{35}`)},
	{name: "discord_bot_token", prefix: "", re: regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,25}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,}`)},
})

// mustBuildPatterns is a pass-through validation step: a pattern whose regex
// failed to compile is warned and skipped at construction time rather than
// failing detector construction, matching the "detector construction never
// fails" failure semantics.
func mustBuildPatterns(patterns []namedPattern) []namedPattern {
	out := make([]namedPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.re == nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

var (
	base64CandidateRe = regexp.MustCompile(`[A-Za-z0-9+/]{20,500}={0,3}`)
	hexCandidateRe    = regexp.MustCompile(`[0-9a-fA-F]{40,512}`)
)
