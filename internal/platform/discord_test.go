package platform

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code},
	}
}

func TestWrapMapsUnknownResources(t *testing.T) {
	if !IsNotFound(wrap(restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel))) {
		t.Fatalf("expected unknown channel to map to not found")
	}
	if !IsNotFound(wrap(restError(http.StatusBadRequest, discordgo.ErrCodeUnknownMessage))) {
		t.Fatalf("expected unknown message code to map to not found")
	}
	if IsNotFound(wrap(restError(http.StatusForbidden, 50013))) {
		t.Fatalf("missing permissions must not look like drift")
	}
	other := errors.New("boom")
	if wrap(other) != other || wrap(nil) != nil {
		t.Fatalf("unexpected wrapping of plain errors")
	}
}

func TestComputePermissions(t *testing.T) {
	guild := &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Permissions: discordgo.PermissionSendMessages},
			{ID: "mods", Permissions: discordgo.PermissionManageMessages},
		},
	}
	member := &discordgo.Member{User: &discordgo.User{ID: "u1"}, Roles: []string{"mods"}}
	perms := ComputePermissions(guild, member)
	if !HasAny(perms, discordgo.PermissionManageMessages) {
		t.Fatalf("expected manage messages from role")
	}
	if HasAny(perms, discordgo.PermissionBanMembers) {
		t.Fatalf("unexpected ban permission")
	}
	owner := &discordgo.Member{User: &discordgo.User{ID: "owner"}}
	if !HasAny(ComputePermissions(guild, owner), discordgo.PermissionBanMembers) {
		t.Fatalf("owner should hold every permission")
	}
}
