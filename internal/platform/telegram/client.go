package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adboard-backend/internal/common/config"
	"adboard-backend/internal/common/logger"

	"github.com/rs/zerolog"
)

// ErrMessageNotFound is returned when the Bot API reports that the referenced
// message no longer exists. Callers treat it as a permanent condition.
var ErrMessageNotFound = errors.New("telegram: message not found")

// ErrTooManyRequests signals an API rate limit; callers should back off.
type ErrTooManyRequests struct {
	RetryAfter time.Duration
}

func (e *ErrTooManyRequests) Error() string {
	return fmt.Sprintf("telegram: too many requests, retry after %s", e.RetryAfter)
}

// Chat is the subset of the Bot API chat object the system needs.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// Client talks to the Telegram Bot API over HTTP. It implements the channel
// messaging and channel info collaborators for the deal engine.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	probeChatID int64
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     "https://api.telegram.org/bot" + cfg.Telegram.BotToken,
		probeChatID: cfg.Telegram.ProbeChatID,
		log:         logger.With("telegram"),
	}
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("telegram %s: decode: %w", method, err)
	}

	if !out.Ok {
		if out.ErrorCode == http.StatusTooManyRequests {
			retryAfter := time.Second
			if out.Parameters != nil {
				retryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
			}
			return nil, &ErrTooManyRequests{RetryAfter: retryAfter}
		}
		if isMessageGone(out.Description) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("telegram %s: %s (code %d)", method, out.Description, out.ErrorCode)
	}

	return out.Result, nil
}

// isMessageGone matches Bot API descriptions for a missing message. The API
// has no dedicated error code for this case.
func isMessageGone(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "message to delete not found") ||
		strings.Contains(d, "message to copy not found") ||
		strings.Contains(d, "message to pin not found") ||
		strings.Contains(d, "message not found")
}

// Publish posts text to a channel and returns the Telegram message id.
func (c *Client) Publish(ctx context.Context, channelID int64, content string) (int64, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(channelID, 10))
	params.Set("text", content)
	params.Set("parse_mode", "HTML")

	result, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, err
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &msg); err != nil {
		return 0, fmt.Errorf("telegram sendMessage: decode result: %w", err)
	}
	return msg.MessageID, nil
}

// MessageExists probes whether a channel message is still present by copying
// it into the probe chat and deleting the copy. The Bot API has no direct
// "get message" method for bots.
func (c *Client) MessageExists(ctx context.Context, channelID, messageID int64) (bool, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(c.probeChatID, 10))
	params.Set("from_chat_id", strconv.FormatInt(channelID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("disable_notification", "true")

	result, err := c.call(ctx, "copyMessage", params)
	if errors.Is(err, ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var copied struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &copied); err == nil && copied.MessageID != 0 {
		// Best effort cleanup of the probe copy.
		if err := c.DeleteMessage(ctx, c.probeChatID, copied.MessageID); err != nil {
			c.log.Warn().Err(err).Int64("message_id", copied.MessageID).Msg("failed to delete probe copy")
		}
	}
	return true, nil
}

// DeleteMessage removes a message. Returns ErrMessageNotFound if it is
// already gone.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))

	_, err := c.call(ctx, "deleteMessage", params)
	return err
}

func (c *Client) PinMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("disable_notification", "true")

	_, err := c.call(ctx, "pinChatMessage", params)
	return err
}

func (c *Client) UnpinMessage(ctx context.Context, chatID, messageID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))

	_, err := c.call(ctx, "unpinChatMessage", params)
	if errors.Is(err, ErrMessageNotFound) {
		return nil
	}
	return err
}

// GetChat returns basic channel info.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))

	result, err := c.call(ctx, "getChat", params)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(result, &chat); err != nil {
		return nil, fmt.Errorf("telegram getChat: decode result: %w", err)
	}
	return &chat, nil
}

// GetChatTitle returns just the channel title.
func (c *Client) GetChatTitle(ctx context.Context, chatID int64) (string, error) {
	chat, err := c.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	return chat.Title, nil
}

// GetChatMemberCount returns the channel subscriber count.
func (c *Client) GetChatMemberCount(ctx context.Context, chatID int64) (int64, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))

	result, err := c.call(ctx, "getChatMemberCount", params)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("telegram getChatMemberCount: decode result: %w", err)
	}
	return count, nil
}

// SendNotification delivers a private message to a user. Failures are the
// caller's concern; notification delivery is always best effort.
func (c *Client) SendNotification(ctx context.Context, userID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")

	_, err := c.call(ctx, "sendMessage", params)
	return err
}
