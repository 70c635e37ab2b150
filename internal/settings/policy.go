package settings

import (
	"strings"
)

type Punishment string

const (
	PunishDelete     Punishment = "delete"
	PunishDeleteWarn Punishment = "delete_warn"
	PunishTimeout    Punishment = "timeout"
	PunishKick       Punishment = "kick"
	PunishBan        Punishment = "ban"
)

// ParsePunishment maps stored values (including the legacy "timeout_10m"
// alias) onto a level. Unknown values fall back to delete.
func ParsePunishment(value string) Punishment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "delete_warn":
		return PunishDeleteWarn
	case "timeout", "timeout_10m":
		return PunishTimeout
	case "kick":
		return PunishKick
	case "ban":
		return PunishBan
	default:
		return PunishDelete
	}
}

func (p Punishment) Severity() int {
	switch p {
	case PunishDeleteWarn:
		return 1
	case PunishTimeout:
		return 2
	case PunishKick:
		return 3
	case PunishBan:
		return 4
	default:
		return 0
	}
}

// NotifiesMember reports whether the offending member gets a direct message.
func (p Punishment) NotifiesMember() bool {
	return p.Severity() >= PunishDeleteWarn.Severity()
}

const (
	PermAdministrator   = "ADMINISTRATOR"
	PermManageMessages  = "MANAGE_MESSAGES"
	PermManageGuild     = "MANAGE_GUILD"
	PermModerateMembers = "MODERATE_MEMBERS"
	PermKickMembers     = "KICK_MEMBERS"
	PermBanMembers      = "BAN_MEMBERS"
)

const DefaultWarnMessage = "Links are not allowed in this server."

type LinkConfig struct {
	WhitelistDomains  []string   `json:"whitelist_domains"`
	WhitelistUsers    []string   `json:"whitelist_users"`
	WhitelistRoles    []string   `json:"whitelist_roles"`
	BlockSuspicious   bool       `json:"block_suspicious"`
	ScanEmbeds        bool       `json:"scan_embeds"`
	CheckRedirects    bool       `json:"check_redirects"`
	AllowMediaLinks   bool       `json:"allow_media_links"`
	Punishment        Punishment `json:"punishment"`
	WarnMessage       string     `json:"warn_message"`
	LogViolations     bool       `json:"log_violations"`
	BypassPermissions []string   `json:"bypass_permissions"`
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		WhitelistDomains:  []string{},
		WhitelistUsers:    []string{},
		WhitelistRoles:    []string{},
		BlockSuspicious:   true,
		ScanEmbeds:        true,
		CheckRedirects:    true,
		AllowMediaLinks:   true,
		Punishment:        PunishDelete,
		WarnMessage:       DefaultWarnMessage,
		LogViolations:     true,
		BypassPermissions: []string{PermAdministrator, PermManageMessages},
	}
}

func (c LinkConfig) Normalize() LinkConfig {
	c.WhitelistDomains = cleanList(c.WhitelistDomains, true)
	c.WhitelistUsers = cleanList(c.WhitelistUsers, false)
	c.WhitelistRoles = cleanList(c.WhitelistRoles, false)
	c.Punishment = ParsePunishment(string(c.Punishment))
	if strings.TrimSpace(c.WarnMessage) == "" {
		c.WarnMessage = DefaultWarnMessage
	}
	if c.BypassPermissions == nil {
		c.BypassPermissions = []string{PermAdministrator, PermManageMessages}
	}
	perms := make([]string, 0, len(c.BypassPermissions))
	for _, perm := range c.BypassPermissions {
		perm = strings.ToUpper(strings.TrimSpace(perm))
		if perm != "" {
			perms = append(perms, perm)
		}
	}
	c.BypassPermissions = perms
	return c
}

type SpamConfig struct {
	MaxMessages          int        `json:"max_messages"`
	TimeWindow           int        `json:"time_window"`
	DuplicateThreshold   int        `json:"duplicate_threshold"`
	MentionsPerMessage   int        `json:"mentions_per_message"`
	SameUserTagThreshold int        `json:"same_user_tag_threshold"`
	WhitelistUsers       []string   `json:"whitelist_users"`
	WhitelistRoles       []string   `json:"whitelist_roles"`
	Punishment           Punishment `json:"punishment"`
}

func DefaultSpamConfig() SpamConfig {
	return SpamConfig{
		MaxMessages:          5,
		TimeWindow:           5,
		DuplicateThreshold:   3,
		MentionsPerMessage:   5,
		SameUserTagThreshold: 5,
		WhitelistUsers:       []string{},
		WhitelistRoles:       []string{},
		Punishment:           PunishDelete,
	}
}

func (c SpamConfig) Normalize() SpamConfig {
	c.MaxMessages = clamp(c.MaxMessages, 1, 50)
	c.TimeWindow = clamp(c.TimeWindow, 5, 120)
	c.DuplicateThreshold = clamp(c.DuplicateThreshold, 1, 10)
	c.MentionsPerMessage = clamp(c.MentionsPerMessage, 0, 20)
	c.SameUserTagThreshold = clamp(c.SameUserTagThreshold, 1, 50)
	c.WhitelistUsers = cleanList(c.WhitelistUsers, false)
	c.WhitelistRoles = cleanList(c.WhitelistRoles, false)
	c.Punishment = ParsePunishment(string(c.Punishment))
	return c
}

const VerificationSimple = "simple"

type VerificationConfig struct {
	VerificationType  string `json:"verification_type,omitempty"`
	MemberRoleID      string `json:"member_role_id,omitempty"`
	ChannelID         string `json:"channel_id,omitempty"`
	MessageID         string `json:"message_id,omitempty"`
	UnverifiedRoleID  string `json:"unverified_role_id,omitempty"`
	AutoCreateChannel bool   `json:"auto_create_channel,omitempty"`
	PendingDisable    bool   `json:"pending_disable,omitempty"`
	ManualDisable     bool   `json:"manual_disable,omitempty"`
}

func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{VerificationType: VerificationSimple}
}

// HasLeftovers reports whether a disabled config still references platform
// resources or carries a disable request that has not been processed. A
// member role reference counts as well even though purging never deletes it.
func (c VerificationConfig) HasLeftovers() bool {
	return c.MessageID != "" || c.ChannelID != "" || c.UnverifiedRoleID != "" || c.MemberRoleID != "" || c.PendingDisable
}

func (c VerificationConfig) IsManualDisable() bool {
	return c.ManualDisable || c.PendingDisable
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func cleanList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
