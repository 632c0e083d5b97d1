package segment

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/segmentio/analytics-go/v3"

	"github.com/gitreportshq/gitreports/models"
)

var client analytics.Client = nil

func getClient() analytics.Client {
	segmentApiKey := os.Getenv("SEGMENT_API_KEY")
	if segmentApiKey == "" {
		slog.Debug("Not initializing segment because SEGMENT_API_KEY is missing")
		return nil
	}
	if client == nil {
		client = analytics.New(segmentApiKey)
	}
	return client
}

func CloseClient() {
	if client == nil {
		return
	}
	client.Close()
}

// IdentifyUser registers the logged-in user with analytics after a
// successful identity refresh.
func IdentifyUser(user *models.User) {
	getClient()
	if client == nil {
		return
	}
	userId := strconv.FormatUint(uint64(user.ID), 10)
	slog.Debug("Identifying user", "userId", userId)
	client.Enqueue(analytics.Identify{
		UserId: userId,
		Traits: analytics.NewTraits().
			SetName(user.Name).
			SetUsername(user.Username).
			SetEmail(user.Email).
			SetAvatar(user.AvatarUrl),
	})
}

// Track records a product event for a user id, with optional extra
// properties.
func Track(userId uint, action string, extraProps map[string]string) {
	getClient()
	if client == nil {
		return
	}

	props := analytics.NewProperties()
	for k, v := range extraProps {
		props.Set(k, v)
	}

	slog.Debug("Tracking user action", "userId", userId, "action", action)
	client.Enqueue(analytics.Track{
		Event:      action,
		UserId:     strconv.FormatUint(uint64(userId), 10),
		Properties: props,
	})
}
