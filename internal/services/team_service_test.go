package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
)

type teamFixture struct {
	db            *gorm.DB
	teams         *TeamService
	invitations   *InvitationService
	notifications *NotificationService
	publisher     *recordingPublisher
	captain       *models.User
	player        *models.User
	outsider      *models.User
}

func newTeamFixture(t *testing.T, opts ...InvitationOption) teamFixture {
	t.Helper()
	db := openServiceTestDB(t)
	publisher := &recordingPublisher{}

	notifications, err := NewNotificationService(db, publisher)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	teams, err := NewTeamService(db, notifications, publisher, audit)
	require.NoError(t, err)
	invitations, err := NewInvitationService(db, notifications, publisher, audit, opts...)
	require.NoError(t, err)

	return teamFixture{
		db:            db,
		teams:         teams,
		invitations:   invitations,
		notifications: notifications,
		publisher:     publisher,
		captain:       createTestUser(t, db, "Captain"),
		player:        createTestUser(t, db, "Player"),
		outsider:      createTestUser(t, db, "Outsider"),
	}
}

func (f teamFixture) addMember(t *testing.T, teamID string, user *models.User) {
	t.Helper()
	ctx := context.Background()
	invite, err := f.invitations.Invite(ctx, InviteInput{TeamID: teamID, FromUserID: f.captain.ID, Gamertag: user.Gamertag})
	require.NoError(t, err)
	_, err = f.invitations.Accept(ctx, invite.ID, user.ID)
	require.NoError(t, err)
}

func TestTeamServiceCreate(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: " Night Owls ", Tag: "NOWL"})
	require.NoError(t, err)
	require.Equal(t, "Night Owls", team.Name)
	require.Equal(t, f.captain.ID, team.CaptainID)
	require.Equal(t, "Captain", team.CaptainGamertag)
	require.Len(t, team.Members, 1)
	require.True(t, team.Members[0].IsCaptain)
	require.Equal(t, "Captain", team.Members[0].Gamertag)

	_, err = f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "X", Tag: "X"})
	require.Error(t, err)
	_, err = f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Valid", Tag: "TOOLONG"})
	require.Error(t, err)
	_, err = f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Valid", Tag: ""})
	require.Error(t, err)

	mine, err := f.teams.ListForUser(ctx, f.captain.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	none, err := f.teams.ListForUser(ctx, f.player.ID)
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = f.teams.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrTeamNotFound)
}

func TestTeamServiceLeaveAndRemove(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Raiders", Tag: "RDR"})
	require.NoError(t, err)
	f.addMember(t, team.ID, f.player)
	f.addMember(t, team.ID, f.outsider)

	require.ErrorIs(t, f.teams.Leave(ctx, team.ID, f.captain.ID), ErrTeamCaptainCannotLeave)
	require.NoError(t, f.teams.Leave(ctx, team.ID, f.player.ID))
	require.ErrorIs(t, f.teams.Leave(ctx, team.ID, f.player.ID), ErrTeamMemberNotFound)

	require.ErrorIs(t, f.teams.RemoveMember(ctx, team.ID, f.outsider.ID, f.captain.ID), ErrTeamForbidden)
	require.ErrorIs(t, f.teams.RemoveMember(ctx, team.ID, f.captain.ID, f.captain.ID), ErrTeamCannotRemoveCaptain)
	require.NoError(t, f.teams.RemoveMember(ctx, team.ID, f.captain.ID, f.outsider.ID))

	view, err := f.teams.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, view.Members, 1)

	notes, _, err := f.notifications.ListForUser(ctx, ListNotificationsInput{UserID: f.outsider.ID})
	require.NoError(t, err)
	require.Equal(t, "You have been removed from the team: Raiders", notes[0].Message)
}

func TestTeamServiceDelete(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Doomed", Tag: "DOOM"})
	require.NoError(t, err)
	f.addMember(t, team.ID, f.player)
	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "outsider"})
	require.NoError(t, err)

	require.ErrorIs(t, f.teams.Delete(ctx, team.ID, f.player.ID), ErrTeamForbidden)
	require.NoError(t, f.teams.Delete(ctx, team.ID, f.captain.ID))

	_, err = f.teams.Get(ctx, team.ID)
	require.ErrorIs(t, err, ErrTeamNotFound)

	pending, err := f.invitations.ListPending(ctx, f.outsider.ID)
	require.NoError(t, err)
	require.Empty(t, pending)

	var members int64
	require.NoError(t, f.teams.db.Model(&models.TeamMember{}).Where("team_id = ?", team.ID).Count(&members).Error)
	require.Zero(t, members)

	require.Contains(t, f.publisher.events(realtime.StreamTeams), "team.deleted")
}
