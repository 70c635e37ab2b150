package enforcement

import "github.com/bwmarrin/discordgo"

// Whitelisted reports whether userID is listed in users or member holds
// one of roles.
func Whitelisted(userID string, member *discordgo.Member, users, roles []string) bool {
	for _, id := range users {
		if id == userID {
			return true
		}
	}
	if member == nil || len(roles) == 0 {
		return false
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, id := range roles {
		roleSet[id] = struct{}{}
	}
	for _, id := range member.Roles {
		if _, ok := roleSet[id]; ok {
			return true
		}
	}
	return false
}

// MessageMember returns the member attached to a guild message with its
// user filled in from the author.
func MessageMember(msg *discordgo.Message) *discordgo.Member {
	if msg == nil || msg.Member == nil {
		return nil
	}
	member := *msg.Member
	if member.User == nil {
		member.User = msg.Author
	}
	if member.GuildID == "" {
		member.GuildID = msg.GuildID
	}
	return &member
}
