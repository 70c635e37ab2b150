package platform

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound reports that a channel, role, message or member no longer
// exists on the platform.
var ErrNotFound = errors.New("platform: resource not found")

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Client is the subset of the chat platform that the moderation modules use.
type Client interface {
	Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
	SendMessage(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error

	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	MemberPermissions(ctx context.Context, guildID string, member *discordgo.Member) (int64, error)
	TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error
	KickMember(ctx context.Context, guildID, userID, reason string) error
	BanMember(ctx context.Context, guildID, userID, reason string) error
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
	MembersWithRole(ctx context.Context, guildID, roleID string) ([]string, error)

	Role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error)
	CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error)
	DeleteRole(ctx context.Context, guildID, roleID string) error

	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	RespondInteraction(ctx context.Context, interaction *discordgo.Interaction, response *discordgo.InteractionResponse) error
	GuildIDs() []string
}

// HasAny reports whether perms carries at least one of the wanted bits.
// Administrator implies every permission.
func HasAny(perms int64, wanted ...int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, bit := range wanted {
		if perms&bit != 0 {
			return true
		}
	}
	return false
}

// ComputePermissions folds the @everyone role and the member roles of guild
// into a permission bitset. The guild owner receives Administrator.
func ComputePermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	if member.User != nil && guild.OwnerID == member.User.ID {
		return discordgo.PermissionAdministrator
	}
	perms := int64(0)
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
		if role.ID == guild.ID {
			perms |= role.Permissions
		}
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms
}
