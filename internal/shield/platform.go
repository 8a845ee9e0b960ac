package shield

import (
	"fmt"

	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/aegismod/aegis/internal/setup/config"
)

// Platforms lists every platform with a native action catalog.
var Platforms = []string{"twitter", "discord", "twitch", "youtube"}

// PlatformActionsFor resolves how each supported platform realizes the
// chosen primary action. Platforms without a native equivalent report the
// raw action as unavailable so downstream workers can skip them.
func PlatformActionsFor(action enum.Action, cfg *config.Shield) map[string]PlatformAction {
	actions := make(map[string]PlatformAction, len(Platforms))

	for _, platform := range Platforms {
		actions[platform] = PlatformActionFor(platform, action, cfg)
	}

	return actions
}

// PlatformActionFor resolves one platform's realization of a primary action.
func PlatformActionFor(platform string, action enum.Action, cfg *config.Shield) PlatformAction {
	switch platform {
	case "twitter":
		return twitterAction(action, cfg)
	case "discord":
		return discordAction(action)
	case "twitch":
		return twitchAction(action)
	case "youtube":
		return youtubeAction(action)
	default:
		return PlatformAction{Action: action.String(), Available: false}
	}
}

func twitterAction(action enum.Action, cfg *config.Shield) PlatformAction {
	switch action {
	case enum.ActionWarn:
		return PlatformAction{Action: "reply_warning", Available: true}
	case enum.ActionMuteTemp:
		return PlatformAction{Action: "mute_user", Duration: muteDuration(cfg), Available: true}
	case enum.ActionMutePermanent:
		return PlatformAction{Action: "mute_user", Duration: "permanent", Available: true}
	case enum.ActionBlock:
		return PlatformAction{Action: "block_user", Available: true}
	case enum.ActionReport:
		return PlatformAction{Action: "report_user", Available: true}
	case enum.ActionEscalate:
	}

	return PlatformAction{Action: action.String(), Available: false}
}

func discordAction(action enum.Action) PlatformAction {
	switch action {
	case enum.ActionWarn:
		return PlatformAction{Action: "send_warning_dm", Available: true}
	case enum.ActionMuteTemp:
		return PlatformAction{Action: "timeout_user", Duration: "1h", Available: true}
	case enum.ActionMutePermanent:
		return PlatformAction{Action: "remove_voice_permissions", Available: true}
	case enum.ActionBlock:
		return PlatformAction{Action: "kick_user", Available: true}
	case enum.ActionReport:
		return PlatformAction{Action: "report_to_moderators", Available: true}
	case enum.ActionEscalate:
	}

	return PlatformAction{Action: action.String(), Available: false}
}

func twitchAction(action enum.Action) PlatformAction {
	switch action {
	case enum.ActionWarn:
		return PlatformAction{Action: "timeout_user", Duration: "60s", Available: true}
	case enum.ActionMuteTemp:
		return PlatformAction{Action: "timeout_user", Duration: "10m", Available: true}
	case enum.ActionMutePermanent:
		return PlatformAction{Action: "ban_user", Available: true}
	case enum.ActionBlock:
		return PlatformAction{Action: "ban_user", Available: true}
	case enum.ActionReport:
		return PlatformAction{Action: "report_to_twitch", Available: true}
	case enum.ActionEscalate:
	}

	return PlatformAction{Action: action.String(), Available: false}
}

func youtubeAction(action enum.Action) PlatformAction {
	switch action {
	case enum.ActionWarn:
		return PlatformAction{Action: "reply_warning", Available: true}
	case enum.ActionMuteTemp:
		// Not available through the API
		return PlatformAction{Action: "hide_user_comments", Duration: "24h", Available: false}
	case enum.ActionMutePermanent:
		// Limited API access
		return PlatformAction{Action: "ban_user_from_channel", Available: false}
	case enum.ActionBlock:
		return PlatformAction{Action: "block_user", Available: false}
	case enum.ActionReport:
		return PlatformAction{Action: "report_comment", Available: true}
	case enum.ActionEscalate:
	}

	return PlatformAction{Action: action.String(), Available: false}
}

func muteDuration(cfg *config.Shield) string {
	hours := cfg.MuteDurationHours
	if hours <= 0 {
		hours = 24
	}

	return fmt.Sprintf("%dh", hours)
}
