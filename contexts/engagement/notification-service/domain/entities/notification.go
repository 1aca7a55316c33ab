package entities

import "time"

type NotificationKind string

const (
	NotificationKindVideoLiked      NotificationKind = "video.liked"
	NotificationKindCommentCreated  NotificationKind = "comment.created"
	NotificationKindCommentReply    NotificationKind = "comment.reply"
	NotificationKindUserMentioned   NotificationKind = "user.mentioned"
	NotificationKindUserFollowed    NotificationKind = "user.followed"
	NotificationKindVideoPublished  NotificationKind = "video.published"
	NotificationKindPayoutCompleted NotificationKind = "payout.completed"
)

// Notification is the durable in-app record shown to one recipient.
type Notification struct {
	NotificationID string
	UserID         string
	Kind           NotificationKind
	ActorIDs       []string
	ActorCount     int
	SubjectUserID  string
	VideoID        string
	CommentID      string
	Data           map[string]string
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// FanoutEvent is the typed business event handed to the planner: the kind
// plus the immutable facts needed to compute audience and payload.
type FanoutEvent struct {
	Kind             NotificationKind
	ActorID          string
	SubjectUserID    string
	VideoID          string
	CommentID        string
	MentionedUserIDs []string
	Data             map[string]string
}

// NotificationPayload is the ephemeral channel-agnostic value the planner
// derives once per event. It is never persisted itself; it seeds both the
// persist message and the queued push/email work.
type NotificationPayload struct {
	Kind          NotificationKind
	ActorIDs      []string
	ActorCount    int
	SubjectUserID string
	VideoID       string
	CommentID     string
	Data          map[string]string
}
