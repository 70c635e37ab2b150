// Package platformtest provides an in-memory chat platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"securitybot/internal/platform"
)

// Mutating operation names recorded in Calls.
const (
	OpSendMessage   = "send_message"
	OpDeleteMessage = "delete_message"
	OpSendDM        = "send_dm"
	OpTimeout       = "timeout"
	OpKick          = "kick"
	OpBan           = "ban"
	OpSetRoles      = "set_roles"
	OpAddRole       = "add_role"
	OpRemoveRole    = "remove_role"
	OpCreateRole    = "create_role"
	OpDeleteRole    = "delete_role"
	OpCreateChannel = "create_channel"
	OpDeleteChannel = "delete_channel"
	OpRespond       = "respond"
)

type Call struct {
	Op     string
	Target string
	Detail string
}

type DM struct {
	UserID string
	Embed  *discordgo.MessageEmbed
}

type Fake struct {
	mu        sync.Mutex
	nextID    int
	guilds    []string
	channels  map[string]*discordgo.Channel
	messages  map[string]map[string]*discordgo.Message
	roles     map[string]map[string]*discordgo.Role
	members   map[string]map[string]*discordgo.Member
	perms     map[string]int64
	calls     []Call
	dms       []DM
	responses []*discordgo.InteractionResponse
	timeouts  map[string]time.Time

	// Fail makes the named operation (one of the Op constants, or "fetch"
	// for every read) return the given error.
	Fail map[string]error
}

var _ platform.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		channels: make(map[string]*discordgo.Channel),
		messages: make(map[string]map[string]*discordgo.Message),
		roles:    make(map[string]map[string]*discordgo.Role),
		members:  make(map[string]map[string]*discordgo.Member),
		perms:    make(map[string]int64),
		timeouts: make(map[string]time.Time),
		Fail:     make(map[string]error),
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *Fake) record(op, target, detail string) error {
	f.calls = append(f.calls, Call{Op: op, Target: target, Detail: detail})
	return f.Fail[op]
}

func (f *Fake) fetchErr() error {
	return f.Fail["fetch"]
}

// Seeding helpers. They do not record calls.

func (f *Fake) AddGuild(guildID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds = append(f.guilds, guildID)
}

func (f *Fake) AddChannel(guildID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[channelID] = &discordgo.Channel{ID: channelID, GuildID: guildID, Type: discordgo.ChannelTypeGuildText}
}

func (f *Fake) AddRole(guildID, roleID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolesFor(guildID)[roleID] = &discordgo.Role{ID: roleID, Name: name}
}

func (f *Fake) AddMessage(channelID, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesFor(channelID)[messageID] = &discordgo.Message{ID: messageID, ChannelID: channelID}
}

func (f *Fake) AddMember(guildID, userID string, roles ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	member := &discordgo.Member{GuildID: guildID, User: &discordgo.User{ID: userID}, Roles: append([]string(nil), roles...)}
	f.membersFor(guildID)[userID] = member
	return member
}

func (f *Fake) SetPermissions(guildID, userID string, perms int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms[guildID+":"+userID] = perms
}

// External deletions, as if an operator removed the resource by hand.

func (f *Fake) RemoveChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, channelID)
	delete(f.messages, channelID)
}

func (f *Fake) RemoveMessage(channelID, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messagesFor(channelID), messageID)
}

func (f *Fake) RemoveRole(guildID, roleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rolesFor(guildID), roleID)
}

// Inspection helpers.

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) CallsOf(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, call := range f.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Mutations returns every recorded call except interaction replies.
func (f *Fake) Mutations() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, call := range f.calls {
		if call.Op != OpRespond {
			out = append(out, call)
		}
	}
	return out
}

func (f *Fake) DMs() []DM {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DM(nil), f.dms...)
}

func (f *Fake) Responses() []*discordgo.InteractionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), f.responses...)
}

func (f *Fake) MemberRoles(guildID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	member := f.membersFor(guildID)[userID]
	if member == nil {
		return nil
	}
	roles := append([]string(nil), member.Roles...)
	sort.Strings(roles)
	return roles
}

func (f *Fake) HasChannel(channelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[channelID]
	return ok
}

func (f *Fake) HasRole(guildID, roleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rolesFor(guildID)[roleID]
	return ok
}

func (f *Fake) ChannelByID(channelID string) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[channelID]
}

func (f *Fake) TimeoutUntil(guildID, userID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.timeouts[guildID+":"+userID]
	return until, ok
}

// Client implementation.

func (f *Fake) Message(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return nil, err
	}
	msg := f.messagesFor(channelID)[messageID]
	if msg == nil {
		return nil, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	return msg, nil
}

func (f *Fake) SendMessage(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpSendMessage, channelID, data.Content); err != nil {
		return nil, err
	}
	if _, ok := f.channels[channelID]; !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	msg := &discordgo.Message{ID: f.id("m"), ChannelID: channelID, Content: data.Content, Embeds: data.Embeds, Components: data.Components}
	f.messagesFor(channelID)[msg.ID] = msg
	return msg, nil
}

func (f *Fake) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteMessage, channelID, messageID); err != nil {
		return err
	}
	delete(f.messagesFor(channelID), messageID)
	return nil
}

func (f *Fake) SendDirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpSendDM, userID, ""); err != nil {
		return err
	}
	f.dms = append(f.dms, DM{UserID: userID, Embed: embed})
	return nil
}

func (f *Fake) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return nil, err
	}
	member := f.membersFor(guildID)[userID]
	if member == nil {
		return nil, fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	copied := *member
	copied.Roles = append([]string(nil), member.Roles...)
	return &copied, nil
}

func (f *Fake) MemberPermissions(ctx context.Context, guildID string, member *discordgo.Member) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return 0, err
	}
	if member == nil || member.User == nil {
		return 0, nil
	}
	return f.perms[guildID+":"+member.User.ID], nil
}

func (f *Fake) TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpTimeout, userID, until.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	f.timeouts[guildID+":"+userID] = until
	return nil
}

func (f *Fake) KickMember(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpKick, userID, reason); err != nil {
		return err
	}
	delete(f.membersFor(guildID), userID)
	return nil
}

func (f *Fake) BanMember(ctx context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpBan, userID, reason); err != nil {
		return err
	}
	delete(f.membersFor(guildID), userID)
	return nil
}

func (f *Fake) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpSetRoles, userID, fmt.Sprint(roleIDs)); err != nil {
		return err
	}
	member := f.membersFor(guildID)[userID]
	if member == nil {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	member.Roles = append([]string(nil), roleIDs...)
	return nil
}

func (f *Fake) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpAddRole, userID, roleID); err != nil {
		return err
	}
	member := f.membersFor(guildID)[userID]
	if member == nil {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	for _, id := range member.Roles {
		if id == roleID {
			return nil
		}
	}
	member.Roles = append(member.Roles, roleID)
	return nil
}

func (f *Fake) RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpRemoveRole, userID, roleID); err != nil {
		return err
	}
	member := f.membersFor(guildID)[userID]
	if member == nil {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	kept := member.Roles[:0]
	for _, id := range member.Roles {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	member.Roles = kept
	return nil
}

func (f *Fake) MembersWithRole(ctx context.Context, guildID, roleID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return nil, err
	}
	var ids []string
	for userID, member := range f.membersFor(guildID) {
		for _, id := range member.Roles {
			if id == roleID {
				ids = append(ids, userID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *Fake) Role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return nil, err
	}
	role := f.rolesFor(guildID)[roleID]
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
	}
	return role, nil
}

func (f *Fake) CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateRole, guildID, params.Name); err != nil {
		return nil, err
	}
	role := &discordgo.Role{ID: f.id("r"), Name: params.Name}
	f.rolesFor(guildID)[role.ID] = role
	return role, nil
}

func (f *Fake) DeleteRole(ctx context.Context, guildID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteRole, guildID, roleID); err != nil {
		return err
	}
	if _, ok := f.rolesFor(guildID)[roleID]; !ok {
		return fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
	}
	delete(f.rolesFor(guildID), roleID)
	for _, member := range f.membersFor(guildID) {
		kept := member.Roles[:0]
		for _, id := range member.Roles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		member.Roles = kept
	}
	return nil
}

func (f *Fake) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr(); err != nil {
		return nil, err
	}
	channel := f.channels[channelID]
	if channel == nil {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	return channel, nil
}

func (f *Fake) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpCreateChannel, guildID, data.Name); err != nil {
		return nil, err
	}
	channel := &discordgo.Channel{
		ID:                   f.id("c"),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.channels[channel.ID] = channel
	return channel, nil
}

func (f *Fake) DeleteChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpDeleteChannel, channelID, ""); err != nil {
		return err
	}
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	delete(f.channels, channelID)
	delete(f.messages, channelID)
	return nil
}

func (f *Fake) RespondInteraction(ctx context.Context, interaction *discordgo.Interaction, response *discordgo.InteractionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpRespond, interaction.ID, ""); err != nil {
		return err
	}
	f.responses = append(f.responses, response)
	return nil
}

func (f *Fake) GuildIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.guilds...)
}

func (f *Fake) rolesFor(guildID string) map[string]*discordgo.Role {
	roles := f.roles[guildID]
	if roles == nil {
		roles = make(map[string]*discordgo.Role)
		f.roles[guildID] = roles
	}
	return roles
}

func (f *Fake) membersFor(guildID string) map[string]*discordgo.Member {
	members := f.members[guildID]
	if members == nil {
		members = make(map[string]*discordgo.Member)
		f.members[guildID] = members
	}
	return members
}

func (f *Fake) messagesFor(channelID string) map[string]*discordgo.Message {
	messages := f.messages[channelID]
	if messages == nil {
		messages = make(map[string]*discordgo.Message)
		f.messages[channelID] = messages
	}
	return messages
}
