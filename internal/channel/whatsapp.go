package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
)

// Client talks to the WhatsApp Cloud API (Graph API) for one business phone number.
type Client struct {
	baseURL       string
	version       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

// NewClient creates a Cloud API client with a bounded request timeout.
func NewClient(cfg config.WhatsAppSettings) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = config.HTTPTimeout
	}
	base := cfg.BaseURL
	if base == "" {
		base = config.WhatsAppBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = config.WhatsAppAPIVersion
	}
	return &Client{
		baseURL:       strings.TrimRight(base, "/"),
		version:       version,
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.Token,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// graphError is the error envelope returned by the Graph API.
type graphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type mediaResponse struct {
	ID string `json:"id"`
}

type imagePayload struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type messageRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Image            imagePayload `json:"image"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// UploadMedia posts the image bytes as multipart form data and returns the media handle.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField(config.FormFieldProduct, config.WhatsAppProduct); err != nil {
		return "", c.requestError(OpUpload, err)
	}
	if err := w.WriteField(config.FormFieldType, mimeType); err != nil {
		return "", c.requestError(OpUpload, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, config.FormFieldFile, filename))
	h.Set(config.HeaderContentType, mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", c.requestError(OpUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", c.requestError(OpUpload, err)
	}
	if err := w.Close(); err != nil {
		return "", c.requestError(OpUpload, err)
	}

	url := fmt.Sprintf(config.WhatsAppMediaPath, c.baseURL, c.version, c.phoneNumberID)
	var resp mediaResponse
	if err := c.do(ctx, OpUpload, url, w.FormDataContentType(), &body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &SendError{Kind: Fatal, Reason: ReasonResponse, Op: OpUpload, Message: config.ErrAPIResponse}
	}

	slog.Debug(config.MsgUploaded,
		config.LogKeyComponent, config.CompChannel,
		config.LogKeyMediaID, resp.ID,
		config.LogKeySizeBytes, len(data),
	)
	return resp.ID, nil
}

// SendImage sends a captioned image message referencing an uploaded media handle.
func (c *Client) SendImage(ctx context.Context, to, mediaID, caption string) (string, error) {
	payload, err := json.Marshal(messageRequest{
		MessagingProduct: config.WhatsAppProduct,
		RecipientType:    config.WhatsAppRecipient,
		To:               to,
		Type:             config.WhatsAppTypeImage,
		Image:            imagePayload{ID: mediaID, Caption: caption},
	})
	if err != nil {
		return "", c.requestError(OpSend, err)
	}

	url := fmt.Sprintf(config.WhatsAppMessagesPath, c.baseURL, c.version, c.phoneNumberID)
	var resp messageResponse
	if err := c.do(ctx, OpSend, url, config.MimeJSON, bytes.NewReader(payload), &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", &SendError{Kind: Fatal, Reason: ReasonResponse, Op: OpSend, Message: config.ErrAPIResponse}
	}
	return resp.Messages[0].ID, nil
}

// do executes one POST and decodes a 2xx JSON body into out. Every failure is a *SendError.
func (c *Client) do(ctx context.Context, op, url, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return c.requestError(op, err)
	}
	req.Header.Set(config.HeaderAuthorization, config.BearerPrefix+c.token)
	req.Header.Set(config.HeaderContentType, contentType)
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled run is not a channel failure worth retrying.
		if ctx.Err() != nil {
			return &SendError{Kind: Fatal, Reason: ReasonNetwork, Op: op, Err: ctx.Err()}
		}
		return &SendError{Kind: Transient, Reason: ReasonNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxAPIResponseSize))
	if err != nil {
		return &SendError{Kind: Transient, Reason: ReasonNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(op, resp, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &SendError{Kind: Fatal, Reason: ReasonResponse, Op: op, Status: resp.StatusCode,
			Message: config.ErrAPIResponse, Err: err}
	}
	return nil
}

func apiError(op string, resp *http.Response, raw []byte) *SendError {
	var ge graphError
	_ = json.Unmarshal(raw, &ge)

	kind, reason := classify(resp.StatusCode, ge.Error.Code)
	msg := ge.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &SendError{
		Kind:       kind,
		Reason:     reason,
		Op:         op,
		Status:     resp.StatusCode,
		Code:       ge.Error.Code,
		Message:    msg,
		RetryAfter: parseRetryAfter(resp.Header.Get(config.HeaderRetryAfter)),
	}
}

func (c *Client) requestError(op string, err error) *SendError {
	return &SendError{Kind: Fatal, Reason: ReasonRequest, Op: op, Err: err}
}

// parseRetryAfter understands the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
