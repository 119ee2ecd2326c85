package services

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
	"github.com/charlesng35/arenahub/pkg/mail"
)

func TestInvitationServiceInviteValidation(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Sentinels", Tag: "SEN"})
	require.NoError(t, err)

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.player.ID, Gamertag: "outsider"})
	require.ErrorIs(t, err, ErrTeamForbidden)

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "nobody-here"})
	require.ErrorIs(t, err, ErrPlayerNotFound)
	require.Equal(t, "No player found with that gamertag.", ErrPlayerNotFound.Message)

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "captain"})
	require.ErrorIs(t, err, ErrTeamMemberAlreadyExists)

	invite, err := f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "PLAYER"})
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusPending, invite.Status)
	require.Equal(t, "Sentinels", invite.TeamName)
	require.Equal(t, "Captain", invite.FromGamertag)

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.ErrorIs(t, err, ErrInvitationPending)

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: "missing", FromUserID: f.captain.ID, Gamertag: "player"})
	require.ErrorIs(t, err, ErrTeamNotFound)

	notes, _, err := f.notifications.ListForUser(ctx, ListNotificationsInput{UserID: f.player.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "You have been invited to join the team: Sentinels", notes[0].Message)
	require.Equal(t, "/invitations", notes[0].Link)

	pending, err := f.invitations.ListPending(ctx, f.player.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "SEN", pending[0].TeamTag)
	require.Equal(t, "Captain", pending[0].FromGamertag)
	require.Equal(t, "Player", pending[0].ToGamertag)

	forTeam, err := f.invitations.ListForTeam(ctx, team.ID, f.captain.ID)
	require.NoError(t, err)
	require.Len(t, forTeam, 1)
	_, err = f.invitations.ListForTeam(ctx, team.ID, f.player.ID)
	require.ErrorIs(t, err, ErrTeamForbidden)

	require.Equal(t, []string{"invitation.created"}, f.publisher.events(realtime.StreamInvitations))
}

func TestInvitationServiceAccept(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Cloud Nine", Tag: "C9"})
	require.NoError(t, err)
	invite, err := f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.NoError(t, err)

	_, err = f.invitations.Accept(ctx, invite.ID, f.outsider.ID)
	require.ErrorIs(t, err, ErrInvitationForbidden)

	accepted, err := f.invitations.Accept(ctx, invite.ID, f.player.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.RespondedAt)

	_, err = f.invitations.Accept(ctx, invite.ID, f.player.ID)
	require.ErrorIs(t, err, ErrInvitationAlreadyResponded)

	member, err := f.teams.IsMember(ctx, team.ID, f.player.ID)
	require.NoError(t, err)
	require.True(t, member)

	view, err := f.teams.Get(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, view.Members, 2)

	notes, _, err := f.notifications.ListForUser(ctx, ListNotificationsInput{UserID: f.captain.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "'Player' has joined your team: Cloud Nine.", notes[0].Message)
	require.Equal(t, "/teams/"+team.ID, notes[0].Link)

	pending, err := f.invitations.ListPending(ctx, f.player.ID)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.Contains(t, f.publisher.events(realtime.StreamTeams), "team.member_joined")
}

func TestInvitationServiceDeclineAndRevoke(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Fnatic", Tag: "FNC"})
	require.NoError(t, err)

	declined, err := f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.NoError(t, err)
	result, err := f.invitations.Decline(ctx, declined.ID, f.player.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusDeclined, result.Status)
	_, err = f.invitations.Accept(ctx, declined.ID, f.player.ID)
	require.ErrorIs(t, err, ErrInvitationAlreadyResponded)

	member, err := f.teams.IsMember(ctx, team.ID, f.player.ID)
	require.NoError(t, err)
	require.False(t, member)

	// a declined invitation does not block a fresh one
	revoked, err := f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.NoError(t, err)
	require.ErrorIs(t, f.invitations.Revoke(ctx, revoked.ID, f.player.ID), ErrInvitationNotFound)
	require.NoError(t, f.invitations.Revoke(ctx, revoked.ID, f.captain.ID))
	require.ErrorIs(t, f.invitations.Revoke(ctx, revoked.ID, f.captain.ID), ErrInvitationNotFound)

	_, err = f.invitations.Accept(ctx, revoked.ID, f.player.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationServiceEmailsInvitee(t *testing.T) {
	recorder := &mail.Recorder{}
	f := newTeamFixture(t, WithInvitationMailer(recorder, "https://arena.example.com/"))
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Liquid", Tag: "TL"})
	require.NoError(t, err)
	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.NoError(t, err)

	messages := recorder.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, []string{"player@example.com"}, messages[0].To)
	require.Contains(t, messages[0].Subject, "Liquid")
	require.Contains(t, messages[0].Body, "https://arena.example.com/invitations")
	require.Contains(t, messages[0].Body, "Captain invited you")
}

func TestInvitationServicePendingIndexRejectsDuplicates(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Fnatic", Tag: "FNC"})
	require.NoError(t, err)

	pending := func() *models.Invitation {
		return &models.Invitation{
			TeamID:     team.ID,
			TeamName:   team.Name,
			FromUserID: f.captain.ID,
			ToUserID:   f.player.ID,
			Status:     models.InvitationStatusPending,
		}
	}

	require.NoError(t, f.db.Create(pending()).Error)
	err = f.db.Create(pending()).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))

	// answered invitations do not hold the slot
	declined := pending()
	declined.Status = models.InvitationStatusDeclined
	require.NoError(t, f.db.Create(declined).Error)
}

func TestInvitationServiceConcurrentInviteReportsPending(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "Team Liquid", Tag: "TL"})
	require.NoError(t, err)

	// Slip a competing pending row in after the duplicate check has passed.
	raced := false
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:competing_invite", func(tx *gorm.DB) {
		inv, ok := tx.Statement.Dest.(*models.Invitation)
		if !ok || raced {
			return
		}
		raced = true
		now := time.Now().UTC()
		_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"INSERT INTO invitations (id, created_at, updated_at, team_id, team_name, from_user_id, to_user_id, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			uuid.NewString(), now, now, inv.TeamID, inv.TeamName, inv.FromUserID, inv.ToUserID, models.InvitationStatusPending,
		)
		if err != nil {
			_ = tx.AddError(err)
		}
	}))

	_, err = f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.ErrorIs(t, err, ErrInvitationPending)
	require.True(t, raced)

	notes, _, err := f.notifications.ListForUser(ctx, ListNotificationsInput{UserID: f.player.ID})
	require.NoError(t, err)
	require.Empty(t, notes)
	require.Empty(t, f.publisher.events(realtime.StreamInvitations))
}

func TestInvitationServiceInviteLogsInviterLookupFailure(t *testing.T) {
	f := newTeamFixture(t)
	ctx := context.Background()

	core, recorded := observer.New(zap.DebugLevel)
	f.invitations.log = zap.New(core)

	team, err := f.teams.Create(ctx, CreateTeamInput{CaptainID: f.captain.ID, Name: "G2 Esports", Tag: "G2"})
	require.NoError(t, err)

	// Only the inviter lookup narrows its columns to id and gamertag.
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:inviter_unavailable", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" && slices.Equal(tx.Statement.Selects, []string{"id", "gamertag"}) {
			_ = tx.AddError(errors.New("replica unavailable"))
		}
	}))

	invite, err := f.invitations.Invite(ctx, InviteInput{TeamID: team.ID, FromUserID: f.captain.ID, Gamertag: "player"})
	require.NoError(t, err)
	require.Empty(t, invite.FromGamertag)
	require.Equal(t, "Player", invite.ToGamertag)

	entries := recorded.FilterMessage("load inviter failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.DebugLevel, entries[0].Level)
	require.Equal(t, f.captain.ID, entries[0].ContextMap()["from_user_id"])
	require.Equal(t, "replica unavailable", entries[0].ContextMap()["error"])
}
