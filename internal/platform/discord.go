package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord adapts a discordgo session to Client. Reads go to the gateway
// state cache first and fall back to REST.
type Discord struct {
	session *discordgo.Session
}

var _ Client = (*Discord)(nil)

func NewDiscord(session *discordgo.Session, httpTimeout time.Duration) *Discord {
	if session.Client == nil {
		session.Client = &http.Client{}
	}
	if httpTimeout > 0 {
		session.Client.Timeout = httpTimeout
	}
	return &Discord{session: session}
}

func (d *Discord) Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg, err := d.session.State.Message(channelID, messageID); err == nil && msg != nil {
		return msg, nil
	}
	msg, err := d.session.ChannelMessage(channelID, messageID)
	return msg, wrap(err)
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := d.session.ChannelMessageSendComplex(channelID, data)
	return msg, wrap(err)
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.ChannelMessageDelete(channelID, messageID))
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return wrap(err)
	}
	_, err = d.session.ChannelMessageSendEmbed(channel.ID, embed)
	return wrap(err)
}

func (d *Discord) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if member, err := d.session.State.Member(guildID, userID); err == nil && member != nil {
		return member, nil
	}
	member, err := d.session.GuildMember(guildID, userID)
	return member, wrap(err)
}

func (d *Discord) MemberPermissions(ctx context.Context, guildID string, member *discordgo.Member) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	guild, err := d.session.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, err = d.session.Guild(guildID)
		if err != nil {
			return 0, wrap(err)
		}
	}
	return ComputePermissions(guild, member), nil
}

func (d *Discord) TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildMemberTimeout(guildID, userID, &until))
}

func (d *Discord) KickMember(ctx context.Context, guildID, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildMemberDeleteWithReason(guildID, userID, reason))
}

func (d *Discord) BanMember(ctx context.Context, guildID, userID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildBanCreateWithReason(guildID, userID, reason, 0))
}

func (d *Discord) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	roles := append([]string(nil), roleIDs...)
	_, err := d.session.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{Roles: &roles})
	return wrap(err)
}

func (d *Discord) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (d *Discord) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildMemberRoleRemove(guildID, userID, roleID))
}

// MembersWithRole pages through the guild member list. It needs the
// privileged members intent.
func (d *Discord) MembersWithRole(ctx context.Context, guildID, roleID string) ([]string, error) {
	var ids []string
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		members, err := d.session.GuildMembers(guildID, after, 1000)
		if err != nil {
			return ids, wrap(err)
		}
		for _, member := range members {
			if member.User == nil {
				continue
			}
			for _, id := range member.Roles {
				if id == roleID {
					ids = append(ids, member.User.ID)
					break
				}
			}
		}
		if len(members) < 1000 {
			return ids, nil
		}
		after = members[len(members)-1].User.ID
	}
}

func (d *Discord) Role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if role, err := d.session.State.Role(guildID, roleID); err == nil && role != nil {
		return role, nil
	}
	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return nil, wrap(err)
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
}

func (d *Discord) CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	role, err := d.session.GuildRoleCreate(guildID, params)
	return role, wrap(err)
}

func (d *Discord) DeleteRole(ctx context.Context, guildID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.GuildRoleDelete(guildID, roleID))
}

func (d *Discord) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if channel, err := d.session.State.Channel(channelID); err == nil && channel != nil {
		return channel, nil
	}
	channel, err := d.session.Channel(channelID)
	return channel, wrap(err)
}

func (d *Discord) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	channel, err := d.session.GuildChannelCreateComplex(guildID, data)
	return channel, wrap(err)
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.session.ChannelDelete(channelID)
	return wrap(err)
}

func (d *Discord) RespondInteraction(ctx context.Context, interaction *discordgo.Interaction, response *discordgo.InteractionResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(d.session.InteractionRespond(interaction, response))
}

func (d *Discord) GuildIDs() []string {
	if d.session.State == nil {
		return nil
	}
	d.session.State.RLock()
	defer d.session.State.RUnlock()
	ids := make([]string, 0, len(d.session.State.Guilds))
	for _, guild := range d.session.State.Guilds {
		ids = append(ids, guild.ID)
	}
	return ids
}

var unknownResourceCodes = map[int]struct{}{
	discordgo.ErrCodeUnknownChannel: {},
	discordgo.ErrCodeUnknownMember:  {},
	discordgo.ErrCodeUnknownMessage: {},
	discordgo.ErrCodeUnknownRole:    {},
}

// wrap maps REST 404 responses and unknown-resource codes onto ErrNotFound.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		if _, ok := unknownResourceCodes[restErr.Message.Code]; ok {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
