package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/buygag/claimdesk/internal/upstream"
)

const (
	embedColor  = 0x6e40c9
	embedFooter = "New BuyGaG Claim Submitted"
)

// DiscordNotifier posts claim records to a webhook as a single embed.
type DiscordNotifier struct {
	client     *upstream.Client
	webhookURL string
	profileURL string
	logger     *slog.Logger
	now        func() time.Time
}

// NewDiscordNotifier builds a notifier for webhookURL. profileURL is the base
// of account profile links.
func NewDiscordNotifier(webhookURL, profileURL string, logger *slog.Logger, opts ...upstream.Option) *DiscordNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordNotifier{
		client:     upstream.New("discord-webhook", opts...),
		webhookURL: webhookURL,
		profileURL: strings.TrimRight(profileURL, "/"),
		logger:     logger,
		now:        time.Now,
	}
}

type webhookPayload struct {
	Content string  `json:"content"`
	Embeds  []embed `json:"embeds"`
}

type embed struct {
	Color       int            `json:"color"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	Description string         `json:"description"`
	Thumbnail   embedThumbnail `json:"thumbnail"`
	Footer      embedFooterObj `json:"footer"`
	Timestamp   string         `json:"timestamp"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embedFooterObj struct {
	Text string `json:"text"`
}

func (n *DiscordNotifier) buildEmbed(record ClaimRecord) embed {
	displayName := record.Identity.DisplayName
	if displayName == "" {
		displayName = record.Handle
	}
	username := record.Identity.Username
	if username == "" {
		username = record.Handle
	}
	submitted := record.SubmittedAt
	if submitted.IsZero() {
		submitted = n.now()
	}
	order := record.OrderNumber
	if !strings.HasPrefix(order, "#") {
		order = "#" + order
	}

	return embed{
		Color: embedColor,
		Title: displayName,
		URL:   fmt.Sprintf("%s/%d/profile", n.profileURL, record.Identity.NumericID),
		Description: strings.Join([]string{
			"**Roblox Username:** " + username,
			"**Display Name:** " + displayName,
			"**Order #:** " + order,
			"**Email:** " + record.Email,
		}, "\n\n"),
		Thumbnail: embedThumbnail{URL: record.Identity.AvatarRef},
		Footer:    embedFooterObj{Text: embedFooter},
		Timestamp: submitted.UTC().Format(time.RFC3339),
	}
}

// Send implements Notifier. Any non-2xx reply is an error.
func (n *DiscordNotifier) Send(ctx context.Context, record ClaimRecord) error {
	if n.webhookURL == "" {
		return fmt.Errorf("discord webhook url is not configured")
	}
	_, err := n.client.JSON(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    n.webhookURL,
		Body:   webhookPayload{Content: "", Embeds: []embed{n.buildEmbed(record)}},
	}, nil)
	if err != nil {
		// Transport errors embed the request URL, which carries the webhook secret.
		msg := strings.ReplaceAll(err.Error(), n.webhookURL, "[webhook]")
		n.logger.Error("discord webhook failed", slog.String("session_id", record.SessionID), slog.String("error", msg))
		return fmt.Errorf("discord webhook: %s", msg)
	}
	return nil
}
