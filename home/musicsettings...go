package home

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	managePerm := discord.PermissionManageGuild

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "musicsettings",
		Description:              "Music settings for this server",
		DefaultMemberPermissions: omit.New(&managePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Default volume for new sessions",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "percent",
						Description: "0 to 200",
						Required:    true,
						MinValue:    sys.IntPtr(0),
						MaxValue:    sys.IntPtr(200),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playnext-deferred",
				Description: "Allow playlists and catalog links with /music playnext",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "allowed",
						Description: "Whether playnext accepts them",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "show",
				Description: "Show the current settings",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}
		if event.GuildID() == nil {
			replyEphemeral(event, sys.MsgMusicGuildOnly)
			return
		}
		guildID := *event.GuildID()

		ctx, cancel := context.WithTimeout(sys.AppContext, 5*time.Second)
		defer cancel()

		var err error
		switch *data.SubCommandName {
		case "volume":
			pct := data.Int("percent")
			if err = sys.SetGuildVolume(ctx, guildID, pct); err == nil {
				replyEphemeral(event, fmt.Sprintf(sys.MsgSettingsVolume, pct))
			}
		case "playnext-deferred":
			allowed := data.Bool("allowed")
			if err = sys.SetGuildPlayNextDeferred(ctx, guildID, allowed); err == nil {
				replyEphemeral(event, fmt.Sprintf(sys.MsgSettingsDeferred, allowedLabel(allowed)))
			}
		case "show":
			var s *sys.MusicSettings
			if s, err = sys.GetMusicSettings(ctx, guildID); err == nil {
				replyEphemeral(event, settingsSummary(s, sys.GlobalConfig))
			}
		}

		if err != nil {
			sys.LogError(sys.MsgSettingsSaveFail, guildID, err)
			replyEphemeral(event, sys.ErrMusicSettingsFailed)
		}
	})
}

func allowedLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "blocked"
}

func settingsSummary(s *sys.MusicSettings, cfg *sys.Config) string {
	return fmt.Sprintf(sys.MsgSettingsShow,
		s.EffectiveVolume(cfg.DefaultVolume),
		allowedLabel(s.AllowsDeferred(cfg.PlayNextAllowsDeferred)),
	)
}
