package services

import "clipfeed/contexts/engagement/notification-service/domain/entities"

// AudienceSource names how a rule computes its recipient set.
type AudienceSource string

const (
	AudienceSubjectUser AudienceSource = "subject_user"
	AudienceFollowers   AudienceSource = "followers"
	AudienceMentioned   AudienceSource = "mentioned_users"
)

// FanoutRule is the per-kind configuration the planner runs on. Adding a
// notification kind means adding a row here, not a new code path.
type FanoutRule struct {
	Kind     entities.NotificationKind
	Audience AudienceSource

	RequiresVideo   bool
	RequiresComment bool
	RequiresSubject bool

	// AllowActor keeps the acting user in the audience. Only sensible for
	// self-directed kinds like payout confirmations.
	AllowActor bool
	// SuppressMentioned drops recipients who were already mentioned in the
	// same interaction, so they get one mention notification instead of two.
	SuppressMentioned bool

	Push          bool
	Email         bool
	EmailTemplate string
	Hook          bool

	PushTitle string
}

var fanoutRules = map[entities.NotificationKind]FanoutRule{
	entities.NotificationKindVideoLiked: {
		Kind:            entities.NotificationKindVideoLiked,
		Audience:        AudienceSubjectUser,
		RequiresVideo:   true,
		RequiresSubject: true,
		Push:            true,
		Hook:            true,
		PushTitle:       "New like on your video",
	},
	entities.NotificationKindCommentCreated: {
		Kind:            entities.NotificationKindCommentCreated,
		Audience:        AudienceSubjectUser,
		RequiresVideo:   true,
		RequiresComment: true,
		RequiresSubject: true,
		Push:            true,
		PushTitle:       "New comment on your video",
	},
	entities.NotificationKindCommentReply: {
		Kind:              entities.NotificationKindCommentReply,
		Audience:          AudienceSubjectUser,
		RequiresComment:   true,
		RequiresSubject:   true,
		SuppressMentioned: true,
		Push:              true,
		PushTitle:         "New reply to your comment",
	},
	entities.NotificationKindUserMentioned: {
		Kind:      entities.NotificationKindUserMentioned,
		Audience:  AudienceMentioned,
		Push:      true,
		PushTitle: "You were mentioned",
	},
	entities.NotificationKindUserFollowed: {
		Kind:            entities.NotificationKindUserFollowed,
		Audience:        AudienceSubjectUser,
		RequiresSubject: true,
		Push:            true,
		PushTitle:       "You have a new follower",
	},
	entities.NotificationKindVideoPublished: {
		Kind:          entities.NotificationKindVideoPublished,
		Audience:      AudienceFollowers,
		RequiresVideo: true,
		Push:          true,
		PushTitle:     "New video from a creator you follow",
	},
	entities.NotificationKindPayoutCompleted: {
		Kind:            entities.NotificationKindPayoutCompleted,
		Audience:        AudienceSubjectUser,
		RequiresSubject: true,
		AllowActor:      true,
		Email:           true,
		EmailTemplate:   "payout_completed",
		PushTitle:       "Your payout is on its way",
	},
}

func RuleFor(kind entities.NotificationKind) (FanoutRule, bool) {
	rule, ok := fanoutRules[kind]
	return rule, ok
}
