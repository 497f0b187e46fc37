package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ActivityType is the kind of entry in a session's activity log
type ActivityType string

const (
	ActivityJoined       ActivityType = "joined"
	ActivityLeft         ActivityType = "left"
	ActivityPlayedVideo  ActivityType = "played"
	ActivityPausedVideo  ActivityType = "paused"
	ActivitySeeked       ActivityType = "seeked"
	ActivityChangedVideo ActivityType = "changed_video"
	ActivitySentReaction ActivityType = "sent_reaction"
)

// ParticipantActivity records something a participant did during the session
type ParticipantActivity struct {
	ID            uuid.UUID    `json:"id"`
	ParticipantID string       `json:"participant_id"`
	Type          ActivityType `json:"type"`
	At            time.Time    `json:"at"`
	Details       string       `json:"details,omitempty"`
}

// NewParticipantActivity creates an activity entry stamped with a fresh id
func NewParticipantActivity(participantID string, kind ActivityType, details string, now time.Time) ParticipantActivity {
	return ParticipantActivity{
		ID:            uuid.New(),
		ParticipantID: participantID,
		Type:          kind,
		At:            now,
		Details:       details,
	}
}

// ActivityForAction maps a playback action to its log entry. Rate changes are not logged.
func ActivityForAction(action PlaybackAction) (ActivityType, string, bool) {
	switch action.Kind {
	case ActionPlay:
		return ActivityPlayedVideo, "", true
	case ActionPause:
		return ActivityPausedVideo, "", true
	case ActionSeek:
		return ActivitySeeked, fmt.Sprintf("%.1fs", action.Time), true
	case ActionLoad:
		if action.Video == nil {
			return "", "", false
		}
		title := action.Video.Title
		if title == "" {
			title = action.Video.URL
		}
		return ActivityChangedVideo, title, true
	}
	return "", "", false
}

// AppendActivity appends entry and keeps at most limit entries. A limit of zero keeps everything.
func AppendActivity(log []ParticipantActivity, entry ParticipantActivity, limit int) []ParticipantActivity {
	log = append(log, entry)
	if limit > 0 && len(log) > limit {
		log = append([]ParticipantActivity(nil), log[len(log)-limit:]...)
	}
	return log
}

// MergeActivities combines activity logs into one, oldest first
func MergeActivities(logs ...[]ParticipantActivity) []ParticipantActivity {
	var out []ParticipantActivity
	for _, l := range logs {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
