package deadrat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/exelus-space/deadrat-go/pkg/constants"
)

// DefaultBaseURL is the official bot API endpoint.
const DefaultBaseURL = "https://s1.deadrat.exelus.space/api/bot"

// Update is the wire representation of a single message as returned by
// the updates endpoint. A reply carries the replied-to message embedded
// under replyToMessage; the server guarantees the nesting is a tree.
type Update struct {
	ID        string  `json:"id"`
	AuthorID  string  `json:"author_id"`
	Username  string  `json:"username"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
	ReplyTo   *Update `json:"replyToMessage,omitempty"`
}

// Client is an authenticated HTTP client for the bot API. It keeps no
// state beyond the credentials; every method is a single blocking
// request/response exchange.
type Client struct {
	apiKey     string
	baseURL    string
	rootURL    string // uploads live under the API root, not the bot prefix
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient creates a client for the given API key. An empty baseURL
// selects the official endpoint.
func NewClient(apiKey, baseURL string, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		rootURL:    strings.TrimSuffix(baseURL, "/bot"),
		httpClient: &http.Client{},
		log:        log,
	}
}

// newRequest builds a request with the API key attached.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	return req, nil
}

// classifyTransportError maps a failed round trip onto the error
// taxonomy the dispatch loop understands. Caller cancellation is passed
// through untouched so the loop can tell shutdown from a flaky network.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrPollTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// FetchUpdates retrieves all messages newer than afterTS, ascending by
// timestamp. The timeout bounds the long poll on the client side; an
// elapsed poll returns ErrPollTimeout.
func (c *Client) FetchUpdates(ctx context.Context, afterTS float64, timeout time.Duration) ([]Update, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query := url.Values{}
	query.Set("after_ts", strconv.FormatFloat(afterTS, 'f', -1, 64))

	req, err := c.newRequest(reqCtx, http.MethodGet, c.baseURL+"/updates?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var updates []Update
		if err := json.NewDecoder(resp.Body).Decode(&updates); err != nil {
			return nil, fmt.Errorf("failed to decode updates: %w", err)
		}
		return updates, nil
	case http.StatusForbidden:
		return nil, ErrInvalidAPIKey
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
}

type sendRequest struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

type sendResponse struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
}

// SendMessage posts a new message. Text and imageURL may each be empty,
// replyTo links the message to an earlier one. A failure means no
// message was sent; the client never retries.
func (c *Client) SendMessage(ctx context.Context, text, imageURL, replyTo string) (*SentMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, constants.DefaultRequestTimeout)
	defer cancel()

	body, err := json.Marshal(sendRequest{Text: text, ImageURL: imageURL, ReplyTo: replyTo})
	if err != nil {
		return nil, fmt.Errorf("failed to encode send request: %w", err)
	}

	req, err := c.newRequest(reqCtx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithField("error", err).Error("send-message-failed")
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
		}).Error("send-message-rejected")
		return nil, statusErr
	}

	var sent sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}

	return &SentMessage{ID: sent.ID, Timestamp: sent.Timestamp, Text: text, client: c}, nil
}

// EditMessage replaces the text of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, id, newText string) bool {
	if id == "" {
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, constants.DefaultRequestTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": newText})
	if err != nil {
		return false
	}

	req, err := c.newRequest(reqCtx, http.MethodPut, c.baseURL+"/edit/"+id, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"id": id, "error": err}).Error("edit-message-failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, constants.DefaultRequestTimeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodDelete, c.baseURL+"/delete/"+id, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"id": id, "error": err}).Error("delete-message-failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// UploadFile uploads a local file and returns its hosted URL.
func (c *Client) UploadFile(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read upload file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, constants.DefaultUploadTimeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodPost, c.rootURL+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"file": filePath, "error": err}).Error("upload-failed")
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var uploaded struct {
		FileURL string `json:"file_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return uploaded.FileURL, nil
}

// readErrorBody captures a bounded slice of an error response for logs.
func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(body))
}

// maskKey masks the API key for logging
func maskKey(key string) string {
	if len(key) <= constants.MinKeyLengthForMasking {
		return "***"
	}
	return key[:constants.KeyMaskPrefixLength] + "***" + key[len(key)-constants.KeyMaskSuffixLength:]
}
