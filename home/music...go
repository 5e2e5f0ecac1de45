package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	queryOption := []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:         "query",
			Description:  "A link, playlist or search terms",
			Required:     true,
			Autocomplete: true,
		},
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music Player",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Queue a song or playlist",
				Options:     queryOption,
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playnext",
				Description: "Queue a song to play next",
				Options:     queryOption,
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "nowplaying",
				Description: "Show the now playing card in this channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "fastforward",
				Description: "Jump ahead in the current song",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "seconds",
						Description: "How far to jump (default 15)",
						Required:    false,
						MinValue:    sys.IntPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "seek",
				Description: "Jump to a position in the current song",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "timestamp",
						Description: "Seconds or mm:ss",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the queue fairly between requesters",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Clear the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playnum",
				Description: "Play a queued song right away",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "index",
						Description: "Position in the queue",
						Required:    true,
						MinValue:    sys.IntPtr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "repeat",
				Description: "Toggle repeating the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a song, or every song someone queued",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "index",
						Description: "Position in the queue",
						Required:    false,
						MinValue:    sys.IntPtr(1),
					},
					discord.ApplicationCommandOptionUser{
						Name:        "user",
						Description: "Remove everything this user queued",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the playback volume",
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
				Name:        "disconnect",
				Description: "Stop, clear the queue and leave",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		c := callFor(event)
		if c == nil {
			return
		}

		switch *data.SubCommandName {
		case "play":
			c.handlePlay(data, false)
		case "playnext":
			c.handlePlay(data, true)
		case "pause":
			c.handlePause()
		case "resume":
			c.handleResume()
		case "skip":
			c.handleSkip()
		case "nowplaying":
			c.handleNowPlaying()
		case "fastforward":
			c.handleFastForward(data)
		case "seek":
			c.handleSeek(data)
		case "queue":
			c.handleQueue()
		case "shuffle":
			c.handleShuffle()
		case "clear":
			c.handleClear()
		case "playnum":
			c.handlePlayNum(data)
		case "repeat":
			c.handleRepeat()
		case "remove":
			c.handleRemove(data)
		case "volume":
			c.handleVolume(data)
		case "disconnect":
			c.handleDisconnect()
		}
	})

	sys.RegisterAutocompleteHandler("music", handleMusicAutocomplete)
	sys.RegisterComponentHandler("music:queue:", handleQueuePage)
	sys.RegisterComponentHandler("music:confirm:", handleConfirm)
}
