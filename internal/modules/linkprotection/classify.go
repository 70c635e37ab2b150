package linkprotection

import (
	"regexp"
	"strings"

	"securitybot/internal/settings"
	"securitybot/internal/utils"
)

const (
	RuleWhitelisted    = "whitelisted"
	RuleMedia          = "media"
	RuleSuspicious     = "suspicious"
	RuleNotWhitelisted = "not_whitelisted"
	RuleNoHost         = "no_host"
)

var mediaExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".mp3", ".wav", ".pdf"}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bit\.ly|tinyurl|t\.co|goo\.gl|ow\.ly|short\.link`),
	regexp.MustCompile(`(?i)discord\.gg/[a-zA-Z0-9]+`),
	regexp.MustCompile(`(?i)free.*nitro|discord.*gift`),
}

type Verdict struct {
	Blocked bool
	Rule    string
	Host    string
}

// Classify decides a single URL. Whitelisted domains win over every other
// rule, and anything that is neither whitelisted nor an allowed media link
// is blocked.
func Classify(rawURL string, cfg settings.LinkConfig) Verdict {
	host := utils.HostOf(rawURL)
	if host == "" {
		return Verdict{Rule: RuleNoHost}
	}
	for _, domain := range cfg.WhitelistDomains {
		if utils.DomainMatch(host, domain) {
			return Verdict{Rule: RuleWhitelisted, Host: host}
		}
	}
	if cfg.AllowMediaLinks && isMedia(rawURL) {
		return Verdict{Rule: RuleMedia, Host: host}
	}
	if cfg.BlockSuspicious && IsSuspicious(rawURL) {
		return Verdict{Blocked: true, Rule: RuleSuspicious, Host: host}
	}
	return Verdict{Blocked: true, Rule: RuleNotWhitelisted, Host: host}
}

func IsSuspicious(rawURL string) bool {
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(rawURL) {
			return true
		}
	}
	return false
}

func isMedia(rawURL string) bool {
	path := utils.PathOf(rawURL)
	for _, ext := range mediaExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
