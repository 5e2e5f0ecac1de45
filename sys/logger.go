package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor  = color.New()
	musicColor     = color.New(color.FgMagenta)
	voiceColor     = color.New(color.FgMagenta)
	queueColor     = color.New(color.FgBlue)
	presenterColor = color.New(color.FgBlue)
	catalogColor   = color.New(color.FgGreen)
	statusColor    = color.New(color.FgGreen)

	// Global state
	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	// Internal state
	logFile *os.File
	logMu   sync.Mutex
)

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		logName := os.Getenv("LOG_FILE")
		if logName == "" {
			logName = GetProjectName() + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// LogFatal logs and panics so deferred cleanup in main still runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogMusic(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "music"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogQueue(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "queue"))
}

func LogPresenter(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "presenter"))
}

func LogCatalog(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "catalog"))
}

func LogStatus(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "status"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	default:
		levelStr = "DEBUG"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
		if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
			if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
				displayMsg = r.Message
			}
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "MUSIC":
		return musicColor
	case "VOICE":
		return voiceColor
	case "QUEUE":
		return queueColor
	case "PRESENTER":
		return presenterColor
	case "CATALOG":
		return catalogColor
	case "STATUS":
		return statusColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	clean := s.re.ReplaceAll(p, []byte(""))
	_, err = s.w.Write(clean)
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidValue  = "invalid %s: %v"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotAPIStatusError   = "discord API returned status %d"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Voice ---
	MsgVoiceJoined         = "Joined channel %s in guild %s"
	MsgVoiceLeft           = "Left voice in guild %s"
	MsgVoiceJoinRetry      = "Voice connect attempt %d/%d failed in guild %s: %v"
	MsgVoiceAloneTeardown  = "Alone in guild %s for %s, disconnecting"
	MsgVoiceTranscodeError = "Transcode failed for %q: %v"
	MsgVoicePipeError      = "yt-dlp exited for %q: %v"

	// --- Catalog & Media ---
	MsgCatalogResolveFail  = "Failed to resolve %q: %v"
	MsgCatalogSearchFail   = "Search via %s failed for %q: %v"
	MsgCatalogSegmentsFail = "Segment lookup failed for %s: %v"
	MsgCatalogRetry        = "Request to %s failed (attempt %d/%d): %v"
	MsgCatalogCacheBackend = "Query cache backend: %s"
	MsgCatalogPlaylist     = "Expanded %q into %d tracks"

	// --- Status endpoint ---
	MsgStatusListening = "Listening on %s"
	MsgStatusStopped   = "Status server stopped: %v"

	// --- Music (user facing) ---
	MsgMusicGuildOnly        = "This command can only be used in a server."
	MsgMusicNotInVoice       = "You need to be in a voice channel to use this."
	MsgMusicWrongChannel     = "You need to be in <#%s> to control playback."
	MsgMusicNotConnected     = "I'm not connected to a voice channel."
	MsgMusicNothingPlaying   = "Nothing is playing right now."
	MsgMusicQueueEmpty       = "The queue is empty."
	MsgMusicNoResults        = "No results for `%s`."
	MsgMusicAdded            = "Added **%s** to the queue at position %d."
	MsgMusicAddedNext        = "**%s** will play next."
	MsgMusicAddedBatch       = "Added **%d** tracks from %s to the queue."
	MsgMusicStarted          = "Now playing **%s**."
	MsgMusicPaused           = "Paused **%s**."
	MsgMusicResumed          = "Resumed **%s**."
	MsgMusicAlreadyPaused    = "Playback is already paused."
	MsgMusicAlreadyPlaying   = "Playback is not paused."
	MsgMusicSkipped          = "Skipped **%s**."
	MsgMusicSkippedUpNext    = "Skipped **%s**. Up next: **%s**."
	MsgMusicSeeked           = "Jumped to `%s` in **%s**."
	MsgMusicInvalidTimestamp = "Invalid timestamp `%s`. Use seconds or mm:ss."
	MsgMusicShuffled         = "Shuffled **%d** tracks. (shuffle #%d)"
	MsgMusicClearConfirm     = "Clear **%d** tracks from the queue?"
	MsgMusicCleared          = "Cleared **%d** tracks from the queue."
	MsgMusicClearCancelled   = "Clear cancelled."
	MsgMusicPlayNum          = "Jumping to **%s**."
	MsgMusicLoopOn           = "Repeat is now **on**."
	MsgMusicLoopOff          = "Repeat is now **off**."
	MsgMusicRemoved          = "Removed **%s** from the queue."
	MsgMusicRemoveUserNone   = "<@%s> has no tracks in the queue."
	MsgMusicRemoveUserAsk    = "Remove **%d** tracks queued by <@%s>?"
	MsgMusicRemovedUser      = "Removed **%d** tracks queued by <@%s>."
	MsgMusicRemoveCancelled  = "Removal cancelled."
	MsgMusicRemoveNeedsArg   = "Give either an index or a user to remove."
	MsgMusicVolumeSet        = "Volume set to **%d%%**."
	MsgMusicDisconnected     = "Disconnected and cleared the queue."
	MsgMusicPlayNextDeferred = "Playlists and catalog links can't be queued with playnext in this server."
	MsgMusicTrackFailed      = "Couldn't play **%s**: %s"
	MsgMusicQueueEnded       = "End of queue reached."
	MsgMusicPromptExpired    = "This prompt has expired."
	MsgMusicPromptNotYours   = "Only the person who asked can answer this."
	MsgMusicQueueHeader      = "**Queue** (%d tracks, page %d/%d)"
	MsgMusicQueueLine        = "`%d.` **%s** `%s` <@%s>"
	MsgMusicQueueFooter      = "Repeat: **%s** | Volume: **%d%%**"
	MsgMusicJoinFailed       = "Failed to join your voice channel: %v"
	MsgMusicCommandFail      = "Music command %s failed in guild %s: %v"

	// --- Music settings ---
	MsgSettingsVolume        = "Default volume for this server is now **%d%%**."
	MsgSettingsDeferred      = "Playlists and catalog links with playnext are now **%s**."
	MsgSettingsShow          = "**Music settings**\n> Default volume: **%d%%**\n> Playnext accepts playlists: **%s**"
	MsgSettingsSaveFail      = "Failed to save music settings for guild %s: %v"
	ErrMusicGeneric          = "Something went wrong. Please try again."
	ErrMusicSettingsFailed   = "Failed to save the music settings."
	ErrMusicResolveFailed    = "Couldn't find anything playable for that query."
	ErrMusicConfirmTimedOut  = "No answer in time, nothing was changed."
	ErrMusicIndexOutOfRange  = "There is no track at that position."
	ErrMusicCatalogNotConfig = "Catalog links need catalog credentials or a public page."
)
