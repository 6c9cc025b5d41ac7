package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/adapter/api"
	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
	"guidebook/internal/adapter/api/router"
	"guidebook/internal/adapter/repository"
	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/service"
	"guidebook/internal/infrastructure/firebase"
	"guidebook/internal/infrastructure/ratelimit"
	"guidebook/internal/infrastructure/storage"
	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
)

const serverKey = "test-server-key"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	e      *echo.Echo
	ledger *service.SimplifiedLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	users := store.Users()
	require.NoError(t, users.Create(ctx, &entity.User{ID: "trav-1", DisplayName: "Tara", Role: entity.UserRoleTraveller}))
	require.NoError(t, users.Create(ctx, &entity.User{ID: "guide-1", DisplayName: "Gita", Role: entity.UserRoleGuide, HourlyRate: 500}))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	limiter := ratelimit.NewRateLimiter(clock, 100, 100)
	ledger := service.NewSimplifiedLedger()

	files, err := storage.NewLocalFileStore(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	chatUC := usecase.NewChatUseCase(store.Chats(), users, service.NewMediaUploader(files), nil, limiter, clock)
	quoteUC := usecase.NewQuoteUseCase(store.Quotes(), store.Chats(), usecase.NewUserRateSource(users), chatUC, nil, limiter, clock, usecase.DefaultQuotePolicy())
	bookingUC := usecase.NewBookingUseCase(store.Bookings(), users, ledger, chatUC, nil, nil, limiter, clock)

	handler.Setup(chatUC, quoteUC, bookingUC, usecase.NewUserUseCase(users, clock), service.NewNominatimPlaceLookup("http://127.0.0.1:1"))
	handler.SetupHealthHandler(nil)

	e := echo.New()
	e.Validator = api.NewValidator()
	authMiddleware := middleware.NewAuthMiddleware(firebase.NewDevTokenVerifier(nil))
	adminMiddleware := middleware.NewAdminMiddleware(users)

	router.Setup(e, authMiddleware, adminMiddleware)
	router.SetupFileRouter(e, handler.NewFileHandler(chatUC, 0), authMiddleware, limiter)
	router.SetupPaymentRoutes(e, handler.NewPaymentHandler(bookingUC, serverKey, "production"), limiter)

	return &testServer{e: e, ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, uid string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if uid != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+firebase.DevToken(uid))
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server is running")
}

func TestRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/v1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNegotiationOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/v1/rooms", "trav-1", map[string]string{"counterpart_id": "guide-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var room entity.ChatRoom
	decodeData(t, env, &room)

	rec, env = s.do(t, http.MethodGet, "/v1/rooms/"+room.ID+"/booking", "trav-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(env.Data))

	rec, env = s.do(t, http.MethodPost, "/v1/quotes", "trav-1", map[string]interface{}{
		"room_id": room.ID, "session_date": "2025-03-10", "session_time": "09:00", "hours": 2,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)

	rec, env = s.do(t, http.MethodPost, "/v1/quotes", "guide-1", map[string]interface{}{
		"room_id": room.ID, "session_date": "2025-03-10", "session_time": "09:00", "hours": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var quote entity.Quote
	decodeData(t, env, &quote)
	assert.Equal(t, 1000.0, quote.TotalAmount)

	rec, env = s.do(t, http.MethodPost, "/v1/quotes/"+quote.ID+"/accept", "trav-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var booking entity.Booking
	decodeData(t, env, &booking)
	assert.Equal(t, 300.0, booking.AdvancePayment.Amount)
	assert.Equal(t, 700.0, booking.FullPayment.Amount)

	rec, env = s.do(t, http.MethodPost, "/v1/quotes/decline", "trav-1", map[string]string{"quote_id": quote.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.CodeInvalidState, env.Error.Code)

	rec, env = s.do(t, http.MethodPost, "/v1/bookings/pay-advance", "trav-1", map[string]interface{}{
		"booking_id": booking.ID, "amount": 300,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt entity.Receipt
	decodeData(t, env, &receipt)
	assert.Equal(t, "paid", receipt.Status)

	rec, env = s.do(t, http.MethodGet, "/v1/rooms/"+room.ID+"/booking", "guide-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, env, &booking)
	assert.Equal(t, entity.BookingConfirmed, booking.Status)

	rec, env = s.do(t, http.MethodGet, "/v1/rooms/"+room.ID+"/messages", "guide-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []entity.Message `json:"items"`
		Total int64            `json:"total"`
	}
	decodeData(t, env, &page)
	require.EqualValues(t, 3, page.Total)
	assert.Equal(t, entity.MessageTypeQuote, page.Items[0].Type)
	assert.Equal(t, entity.EventAdvancePaid, page.Items[2].Notice().Event)
}

func TestAdminRouteRejectsParticipants(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/v1/admin/bookings/b-1/complete", "trav-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentNotificationChecksSignature(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{
		"order_id":           "b-1-advance",
		"status_code":        "200",
		"gross_amount":       "300.00",
		"transaction_status": "settlement",
		"signature_key":      "forged",
	}

	rec, _ := s.do(t, http.MethodPost, "/v1/payments/notification", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body["signature_key"] = handler.NotificationSignature("b-1-advance", "200", "300.00", serverKey)
	rec, _ = s.do(t, http.MethodPost, "/v1/payments/notification", "", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERROR_PROCESSED")
}

func TestUploadReturnsAttachments(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", "note.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("meet at the north gate"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+firebase.DevToken("trav-1"))
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var attachments []entity.Attachment
	decodeData(t, env, &attachments)
	require.Len(t, attachments, 1)
	assert.Equal(t, entity.AttachmentFile, attachments[0].Type)
	assert.Equal(t, "note.txt", attachments[0].FileName)
	assert.NotEmpty(t, attachments[0].URL)
}

func TestProfileRoutes(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/v1/users/me", "guide-2", map[string]interface{}{
		"display_name": "Gede", "role": "guide", "hourly_rate": 350, "email": "gede@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodPost, "/v1/users/me", "ops-1", map[string]interface{}{"display_name": "Ops", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)

	rec, env = s.do(t, http.MethodPatch, "/v1/users/me", "guide-2", map[string]interface{}{"hourly_rate": 420})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user entity.User
	decodeData(t, env, &user)
	assert.Equal(t, 420.0, user.HourlyRate)

	rec, env = s.do(t, http.MethodGet, "/v1/users/guide-2", "trav-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user = entity.User{}
	decodeData(t, env, &user)
	assert.Equal(t, "Gede", user.DisplayName)
	assert.Empty(t, user.Email)
}
