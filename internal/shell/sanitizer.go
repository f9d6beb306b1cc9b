package shell

import (
	"regexp"
	"strings"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`), // anthropic
	regexp.MustCompile(`sk-[a-zA-Z0-9]{48,}`),        // openai
	regexp.MustCompile(`bot\d+:[a-zA-Z0-9_-]{35}`),   // telegram
	regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),     // google
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),           // aws access key
	regexp.MustCompile(`(?i)aws_secret_access_key\s*=\s*\S+`),
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),          // github pat
	regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{22,}`), // github fine-grained
	regexp.MustCompile(`(?i)password\s*[:=]\s*["']?[^\s"']+`),
	regexp.MustCompile(`(?i)api_key\s*[:=]\s*["']?[^\s"']+`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*["']?[^\s"']+`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`),
}

// Redact masks credentials in command output before it leaves the host.
func Redact(input string) string {
	output := input
	for _, pat := range patterns {
		output = pat.ReplaceAllString(output, "[REDACTED]")
	}
	return output
}

var fence = regexp.MustCompile("(?s)^```(?:[a-zA-Z0-9_-]*\n)?\\s*(.*?)\\s*```$")

// StripFences unwraps a command the model returned inside a code fence or
// inline backticks, and drops a leading prompt marker.
func StripFences(s string) string {
	s = strings.TrimSpace(s)

	if m := fence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	if len(s) >= 2 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		s = strings.TrimSpace(strings.Trim(s, "`"))
	}

	s = strings.TrimPrefix(s, "$ ")
	return strings.TrimSpace(s)
}
