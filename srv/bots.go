package srv

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/webframp/relnotes/widget"
)

// MaxBotMessageLen is the longest reply chat bots will relay.
const MaxBotMessageLen = 400

// BotSource identifies which bot sent the request
type BotSource string

const (
	BotSourceNightbot BotSource = "nightbot"
	BotSourceMoobot   BotSource = "moobot"
	BotSourceNone     BotSource = ""
)

// BotChannel contains channel information extracted from bot headers
type BotChannel struct {
	Name   string
	Source BotSource
}

// GetBotChannel extracts the calling bot's channel from request headers.
// Priority: Nightbot header > Moobot header. Returns nil for other clients.
func GetBotChannel(r *http.Request) *BotChannel {
	if nb := ParseNightbotChannel(r.Header.Get("Nightbot-Channel")); nb != nil && nb.Name != "" {
		return &BotChannel{Name: nb.Name, Source: BotSourceNightbot}
	}
	if moobotChannel := r.Header.Get("Moobot-channel-name"); moobotChannel != "" {
		return &BotChannel{Name: strings.ToLower(moobotChannel), Source: BotSourceMoobot}
	}
	return nil
}

// NightbotChannel represents parsed Nightbot-Channel header data
type NightbotChannel struct {
	Name        string
	DisplayName string
	Provider    string
	ProviderID  string
}

// ParseNightbotChannel parses the Nightbot-Channel header
// Format: name=night&displayName=Night&provider=twitch&providerId=11785491
func ParseNightbotChannel(header string) *NightbotChannel {
	if header == "" {
		return nil
	}
	values, err := url.ParseQuery(header)
	if err != nil {
		return nil
	}
	return &NightbotChannel{
		Name:        values.Get("name"),
		DisplayName: values.Get("displayName"),
		Provider:    values.Get("provider"),
		ProviderID:  values.Get("providerId"),
	}
}

// AddBotAttributes records the calling bot on the request span.
func AddBotAttributes(r *http.Request, bot *BotChannel) {
	if bot == nil {
		return
	}
	span := trace.SpanFromContext(r.Context())
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("bot.source", string(bot.Source)),
		attribute.String("bot.channel", bot.Name),
	)
}

// BotSummary renders versions as a single chat line of at most maxLen
// characters, e.g. "2.0 Big Update: Fixed bug; New feature".
func BotSummary(versions []widget.PreparedVersion, maxLen int) string {
	var parts []string
	for _, v := range versions {
		head := v.Label
		if v.Source.Info.Title != "" {
			head += " " + v.Source.Info.Title
		}
		changes := make([]string, len(v.Source.Changes))
		for i, c := range v.Source.Changes {
			changes[i] = c.Content
		}
		if len(changes) > 0 {
			head += ": " + strings.Join(changes, "; ")
		}
		parts = append(parts, head)
	}
	return truncate(strings.Join(parts, " | "), maxLen)
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}
