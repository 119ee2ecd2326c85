package services

import (
	"errors"
	"net/http"

	"github.com/charlesng35/arenahub/internal/database"
	apperrors "github.com/charlesng35/arenahub/pkg/errors"
)

var (
	ErrUserNotFound       = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	ErrPlayerNotFound     = apperrors.New("PLAYER_NOT_FOUND", "No player found with that gamertag.", http.StatusNotFound)
	ErrEmailInUse         = apperrors.New("EMAIL_IN_USE", "That email address is already registered.", http.StatusConflict)
	ErrGamertagInUse      = apperrors.New("GAMERTAG_IN_USE", "That gamertag is already taken.", http.StatusConflict)
	ErrWeakPassword       = apperrors.New("WEAK_PASSWORD", "Password must be at least 6 characters.", http.StatusBadRequest)
	ErrInvalidGamertag    = apperrors.New("INVALID_GAMERTAG", "Gamertags are 3-32 letters, digits, '.', '_' or '-'.", http.StatusBadRequest)
	ErrAvatarTooLarge     = apperrors.New("AVATAR_TOO_LARGE", "Profile pictures must be 2 MiB or smaller.", http.StatusRequestEntityTooLarge)
	ErrAvatarType         = apperrors.New("AVATAR_UNSUPPORTED_TYPE", "Profile pictures must be PNG, JPEG, GIF or WebP.", http.StatusUnsupportedMediaType)
	ErrAvatarNotFound     = apperrors.New("AVATAR_NOT_FOUND", "No profile picture uploaded", http.StatusNotFound)
	ErrStorageUnavailable = apperrors.New("STORAGE_UNAVAILABLE", "File storage is not configured", http.StatusServiceUnavailable)

	// ErrChallengeNotFound indicates the challenge does not exist.
	ErrChallengeNotFound   = apperrors.New("CHALLENGE_NOT_FOUND", "Challenge not found", http.StatusNotFound)
	ErrChallengeSelfAccept = apperrors.New("CHALLENGE_SELF_ACCEPT", "You cannot accept your own challenge.", http.StatusConflict)
	// ErrChallengeNotOpen is returned when another player got there first or the challenge was withdrawn.
	ErrChallengeNotOpen     = apperrors.New("CHALLENGE_NOT_OPEN", "This challenge is no longer open.", http.StatusConflict)
	ErrChallengeNotAccepted = apperrors.New("CHALLENGE_NOT_ACCEPTED", "Only accepted matches can be completed.", http.StatusConflict)
	ErrChallengeForbidden   = apperrors.New("CHALLENGE_FORBIDDEN", "Only the challenge creator can do that.", http.StatusForbidden)
	ErrInvalidChallengeType = apperrors.New("INVALID_CHALLENGE_TYPE", "Challenge type must be 1v1, 2v2 or 5v5 Team.", http.StatusBadRequest)

	ErrMatchNotFound  = apperrors.New("MATCH_NOT_FOUND", "Match not found", http.StatusNotFound)
	ErrMatchForbidden = apperrors.New("MATCH_FORBIDDEN", "Only the two players in this match can view it.", http.StatusForbidden)
	ErrMatchClosed    = apperrors.New("MATCH_CLOSED", "This match is no longer accepting messages.", http.StatusConflict)

	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrTeamForbidden is returned when a non-captain attempts a captain action.
	ErrTeamForbidden = apperrors.New("TEAM_FORBIDDEN", "Only the team captain can do that.", http.StatusForbidden)
	// ErrTeamMemberAlreadyExists signals the player is already on the team.
	ErrTeamMemberAlreadyExists = apperrors.New("TEAM_MEMBER_EXISTS", "That player is already on the team.", http.StatusConflict)
	// ErrTeamMemberNotFound indicates the requested membership does not exist.
	ErrTeamMemberNotFound      = apperrors.New("TEAM_MEMBER_NOT_FOUND", "Player is not a member of the team", http.StatusNotFound)
	ErrTeamCaptainCannotLeave  = apperrors.New("TEAM_CAPTAIN_CANNOT_LEAVE", "The captain cannot leave the team. Delete the team instead.", http.StatusConflict)
	ErrTeamCannotRemoveCaptain = apperrors.New("TEAM_CANNOT_REMOVE_CAPTAIN", "The captain cannot be removed from the team.", http.StatusConflict)

	ErrInvitationNotFound         = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	ErrInvitationPending          = apperrors.New("INVITATION_PENDING", "That player already has a pending invitation to this team.", http.StatusConflict)
	ErrInvitationAlreadyResponded = apperrors.New("INVITATION_ALREADY_RESPONDED", "This invitation has already been answered.", http.StatusConflict)
	ErrInvitationForbidden        = apperrors.New("INVITATION_FORBIDDEN", "This invitation is not addressed to you.", http.StatusForbidden)

	ErrNotificationNotFound = apperrors.New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
)

func isUniqueConstraintError(err error) bool {
	return database.IsUniqueViolation(err)
}

// isDomainError reports whether err is one of the AppError sentinels above,
// which should reach the caller unwrapped.
func isDomainError(err error) bool {
	var appErr *apperrors.AppError
	return errors.As(err, &appErr)
}
