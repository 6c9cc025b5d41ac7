package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"guidebook/internal/conversation"
	"guidebook/internal/domain/entity"
	"guidebook/pkg/errors"
	"guidebook/pkg/logger"
)

const messagePageSize = 100

// APIClient calls the guidebook HTTP API on behalf of one signed-in user.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

var (
	_ conversation.Actions       = (*APIClient)(nil)
	_ conversation.MediaUploader = (*APIClient)(nil)
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	// echo's own HTTP errors carry only a message
	Message string `json:"message"`
}

type page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func (c *APIClient) CreateRoom(ctx context.Context, counterpartID, contextRef string) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	body := map[string]string{"counterpart_id": counterpartID, "context_ref": contextRef}
	if err := c.do(ctx, http.MethodPost, "/v1/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *APIClient) GetRoom(ctx context.Context, roomID string) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListMessages reads the whole room history, oldest first.
func (c *APIClient) ListMessages(ctx context.Context, roomID string) ([]entity.Message, error) {
	var all []entity.Message
	for p := 1; ; p++ {
		var pg page[entity.Message]
		path := fmt.Sprintf("/v1/rooms/%s/messages?page=%d&limit=%d", url.PathEscape(roomID), p, messagePageSize)
		if err := c.do(ctx, http.MethodGet, path, nil, &pg); err != nil {
			return nil, err
		}
		all = append(all, pg.Items...)
		if len(pg.Items) < messagePageSize || int64(len(all)) >= pg.Total {
			return all, nil
		}
	}
}

func (c *APIClient) SendMessage(ctx context.Context, m entity.Message) (*entity.Message, error) {
	body := map[string]interface{}{
		"type":           m.Type,
		"text":           m.Text,
		"attachments":    m.Attachments,
		"client_temp_id": m.ClientTempID,
	}
	var sent entity.Message
	if err := c.do(ctx, http.MethodPost, "/v1/rooms/"+url.PathEscape(m.RoomID)+"/messages", body, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

func (c *APIClient) CreateQuote(ctx context.Context, roomID string, draft conversation.QuoteDraft) (*entity.Quote, error) {
	body := map[string]interface{}{
		"room_id":      roomID,
		"session_date": draft.SessionDate,
		"session_time": draft.SessionTime,
		"timezone":     draft.Timezone,
		"hours":        draft.Hours,
		"location":     draft.Location,
		"notes":        draft.Notes,
	}
	var quote entity.Quote
	if err := c.do(ctx, http.MethodPost, "/v1/quotes", body, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *APIClient) GetQuote(ctx context.Context, quoteID string) (*entity.Quote, error) {
	var quote entity.Quote
	if err := c.do(ctx, http.MethodGet, "/v1/quotes/"+url.PathEscape(quoteID), nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (c *APIClient) AcceptQuote(ctx context.Context, quoteID string) (*entity.Booking, error) {
	var booking entity.Booking
	if err := c.do(ctx, http.MethodPost, "/v1/quotes/"+url.PathEscape(quoteID)+"/accept", nil, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *APIClient) DeclineQuote(ctx context.Context, quoteID string) (*entity.Quote, error) {
	var quote entity.Quote
	if err := c.do(ctx, http.MethodPost, "/v1/quotes/decline", map[string]string{"quote_id": quoteID}, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetBookingByChatRoom returns nil without error while the room has no booking.
func (c *APIClient) GetBookingByChatRoom(ctx context.Context, roomID string) (*entity.Booking, error) {
	var booking *entity.Booking
	if err := c.do(ctx, http.MethodGet, "/v1/rooms/"+url.PathEscape(roomID)+"/booking", nil, &booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (c *APIClient) PayAdvance(ctx context.Context, bookingID string, amount float64) (*entity.Receipt, error) {
	return c.pay(ctx, "/v1/bookings/pay-advance", bookingID, amount)
}

func (c *APIClient) PayFull(ctx context.Context, bookingID string, amount float64) (*entity.Receipt, error) {
	return c.pay(ctx, "/v1/bookings/pay-full", bookingID, amount)
}

func (c *APIClient) pay(ctx context.Context, path, bookingID string, amount float64) (*entity.Receipt, error) {
	var receipt entity.Receipt
	body := map[string]interface{}{"booking_id": bookingID, "amount": amount}
	if err := c.do(ctx, http.MethodPost, path, body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *APIClient) MarkServiceComplete(ctx context.Context, bookingID string) (*entity.Booking, error) {
	var booking entity.Booking
	if err := c.do(ctx, http.MethodPost, "/v1/bookings/complete", map[string]string{"booking_id": bookingID}, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *APIClient) SearchPlaces(ctx context.Context, query string, limit int) ([]entity.Place, error) {
	var places []entity.Place
	path := fmt.Sprintf("/v1/places/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &places); err != nil {
		return nil, err
	}
	return places, nil
}

// Upload sends files as one multipart request and returns their attachments.
func (c *APIClient) Upload(ctx context.Context, files []conversation.File) ([]entity.Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.FileName)
		if err != nil {
			return nil, errors.Internal("failed to build upload", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, errors.Validation(fmt.Sprintf("unable to read %s", f.FileName), err)
		}
	}
	for _, f := range files {
		if err := w.WriteField("duration", strconv.FormatFloat(f.Duration, 'f', -1, 64)); err != nil {
			return nil, errors.Internal("failed to build upload", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Internal("failed to build upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", &buf)
	if err != nil {
		return nil, errors.Internal("failed to build upload", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var attachments []entity.Attachment
	if err := c.send(req, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Internal("failed to encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Internal("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and unwraps the response envelope. Server failures come
// back as AppErrors carrying the server's code; network failures are
// transport failures.
func (c *APIClient) send(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return errors.Timeout("request cancelled", err)
		}
		return errors.TransportFailure("request failed", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		logger.Warn("Client: undecodable %s %s response (status %d): %v", req.Method, req.URL.Path, resp.StatusCode, err)
		return errors.TransportFailure(fmt.Sprintf("unexpected response (status %d)", resp.StatusCode), err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		if env.Error == nil {
			message := env.Message
			if message == "" {
				message = http.StatusText(resp.StatusCode)
			}
			return errors.FromInfo(codeForStatus(resp.StatusCode), message, resp.StatusCode)
		}
		return errors.FromInfo(env.Error.Code, env.Error.Message, resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.TransportFailure("failed to decode response", err)
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return errors.CodeUnauthorized
	case http.StatusForbidden:
		return errors.CodeForbidden
	case http.StatusNotFound:
		return errors.CodeNotFound
	case http.StatusTooManyRequests:
		return errors.CodeTooManyRequests
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return errors.CodeTransportFailure
	case http.StatusGatewayTimeout:
		return errors.CodeTimeout
	}
	if status < http.StatusInternalServerError {
		return errors.CodeBadRequest
	}
	return errors.CodeInternal
}
