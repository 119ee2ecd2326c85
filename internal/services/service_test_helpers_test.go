package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbtestutil "github.com/charlesng35/arenahub/internal/database/testutil"
	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
	"github.com/charlesng35/arenahub/pkg/crypto"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return dbtestutil.MustOpenTestDB(t, dbtestutil.WithAutoMigrate())
}

func createTestUser(t *testing.T, db *gorm.DB, gamertag string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("p@ssw0rd")
	require.NoError(t, err)

	user := &models.User{
		Gamertag: gamertag,
		Email:    gamertag + "@example.com",
		Password: hashed,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type publishedMessage struct {
	Stream  string
	UserIDs []string
	Message realtime.Message
}

// recordingPublisher captures realtime broadcasts for assertions.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (p *recordingPublisher) BroadcastToUser(stream, userID string, message realtime.Message) {
	p.record(stream, []string{userID}, message)
}

func (p *recordingPublisher) BroadcastToUsers(stream string, userIDs []string, message realtime.Message) {
	p.record(stream, append([]string(nil), userIDs...), message)
}

func (p *recordingPublisher) BroadcastStream(stream string, message realtime.Message) {
	p.record(stream, nil, message)
}

func (p *recordingPublisher) record(stream string, userIDs []string, message realtime.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{Stream: stream, UserIDs: userIDs, Message: message})
}

func (p *recordingPublisher) events(stream string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages {
		if m.Stream == stream {
			out = append(out, m.Message.Event)
		}
	}
	return out
}
