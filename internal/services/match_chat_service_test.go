package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
)

func TestMatchChatServicePostAndList(t *testing.T) {
	f := newChallengeFixture(t)
	ctx := context.Background()

	chat, err := NewMatchChatService(f.svc.db, f.svc, f.publisher)
	require.NoError(t, err)

	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chat.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	challenge, err := f.svc.Create(ctx, CreateChallengeInput{CreatorID: f.creator.ID, Game: "Halo"})
	require.NoError(t, err)

	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.creator.ID, Text: "anyone?"})
	require.ErrorIs(t, err, ErrMatchNotFound)

	_, err = f.svc.Accept(ctx, challenge.ID, f.rival.ID)
	require.NoError(t, err)

	first, err := chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.creator.ID, Text: "  <b>glhf</b>  "})
	require.NoError(t, err)
	require.Equal(t, "&lt;b&gt;glhf&lt;/b&gt;", first.Text)
	require.Equal(t, "Creator", first.SenderGamertag)

	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.rival.ID, Text: "you too"})
	require.NoError(t, err)

	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.bystander.ID, Text: "hi"})
	require.ErrorIs(t, err, ErrMatchForbidden)
	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.rival.ID, Text: "   "})
	require.Error(t, err)
	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.rival.ID, Text: strings.Repeat("é", MaxChatMessageLength+1)})
	require.Error(t, err)
	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.rival.ID, Text: strings.Repeat("é", MaxChatMessageLength)})
	require.NoError(t, err)

	messages, err := chat.List(ctx, challenge.ID, f.rival.ID, ListMessagesInput{})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, first.ID, messages[0].ID)
	require.Equal(t, "you too", messages[1].Text)

	before := messages[2].CreatedAt
	older, err := chat.List(ctx, challenge.ID, f.creator.ID, ListMessagesInput{Limit: 1, Before: &before})
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, "you too", older[0].Text)

	_, err = chat.List(ctx, challenge.ID, f.bystander.ID, ListMessagesInput{})
	require.ErrorIs(t, err, ErrMatchForbidden)

	require.Len(t, f.publisher.events(realtime.StreamMatchChat), 3)

	_, err = f.svc.Complete(ctx, challenge.ID, f.creator.ID)
	require.NoError(t, err)
	_, err = chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.creator.ID, Text: "gg"})
	require.ErrorIs(t, err, ErrMatchClosed)

	history, err := chat.List(ctx, challenge.ID, f.creator.ID, ListMessagesInput{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, models.ChallengeStatusCompleted, mustGet(t, f.svc, challenge.ID).Status)
}

func TestMatchChatServiceListPagesThroughSharedTimestamps(t *testing.T) {
	f := newChallengeFixture(t)
	ctx := context.Background()

	chat, err := NewMatchChatService(f.svc.db, f.svc, f.publisher)
	require.NoError(t, err)

	// every message lands on the same instant
	frozen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chat.now = func() time.Time { return frozen }

	challenge, err := f.svc.Create(ctx, CreateChallengeInput{CreatorID: f.creator.ID, Game: "Rocket League"})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, challenge.ID, f.rival.ID)
	require.NoError(t, err)

	posted := make(map[string]struct{})
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		msg, err := chat.Post(ctx, PostMessageInput{MatchID: challenge.ID, SenderID: f.creator.ID, Text: text})
		require.NoError(t, err)
		posted[msg.ID] = struct{}{}
	}

	seen := make(map[string]struct{})
	input := ListMessagesInput{Limit: 2}
	for page := 0; page < 5; page++ {
		messages, err := chat.List(ctx, challenge.ID, f.rival.ID, input)
		require.NoError(t, err)
		if len(messages) == 0 {
			break
		}
		for i, msg := range messages {
			if i > 0 {
				require.Less(t, messages[i-1].ID, msg.ID)
			}
			_, dup := seen[msg.ID]
			require.False(t, dup, "message %s returned twice", msg.ID)
			seen[msg.ID] = struct{}{}
		}
		oldest := messages[0]
		input.Before = &oldest.CreatedAt
		input.BeforeID = oldest.ID
	}
	require.Equal(t, posted, seen)

	// without an id the timestamp alone excludes the whole tied group
	onlyTime, err := chat.List(ctx, challenge.ID, f.rival.ID, ListMessagesInput{Before: &frozen})
	require.NoError(t, err)
	require.Empty(t, onlyTime)
}

func mustGet(t *testing.T, svc *ChallengeService, id string) *models.Challenge {
	t.Helper()
	challenge, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	return challenge
}
