package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamChallenges    = "challenges"
	StreamInvitations   = "invitations"
	StreamTeams         = "teams"
	StreamMatchChat     = "match.chat"
)

// Streams lists every stream a client may subscribe to.
var Streams = []string{
	StreamNotifications,
	StreamChallenges,
	StreamInvitations,
	StreamTeams,
	StreamMatchChat,
}

// Publisher delivers realtime messages. Services depend on this rather than on Hub.
type Publisher interface {
	BroadcastToUser(stream, userID string, message Message)
	BroadcastToUsers(stream string, userIDs []string, message Message)
	BroadcastStream(stream string, message Message)
}
