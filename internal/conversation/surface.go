package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"guidebook/internal/domain/entity"
	apperrors "guidebook/pkg/errors"
	"guidebook/pkg/logger"
)

const (
	DefaultOptimisticTimeout = 3 * time.Second
	DefaultMatchWindow       = 5 * time.Second
	DefaultCountdownInterval = time.Second
)

var (
	ErrClosed        = errors.New("conversation surface is closed")
	ErrChannelClosed = errors.New("real-time channel closed")
)

// File is a local file queued for upload before a media message is sent.
type File struct {
	FileName string
	Size     int64
	Duration float64
	Content  io.Reader
}

type QuoteDraft struct {
	SessionDate string // YYYY-MM-DD
	SessionTime string // HH:MM
	Timezone    string
	Hours       float64
	Location    *entity.Location
	Notes       string
}

// Actions are the request/response calls the surface makes against the server.
type Actions interface {
	ListMessages(ctx context.Context, roomID string) ([]entity.Message, error)
	SendMessage(ctx context.Context, message entity.Message) (*entity.Message, error)
	CreateQuote(ctx context.Context, roomID string, draft QuoteDraft) (*entity.Quote, error)
	GetQuote(ctx context.Context, quoteID string) (*entity.Quote, error)
	AcceptQuote(ctx context.Context, quoteID string) (*entity.Booking, error)
	DeclineQuote(ctx context.Context, quoteID string) (*entity.Quote, error)
	GetBookingByChatRoom(ctx context.Context, roomID string) (*entity.Booking, error)
	PayAdvance(ctx context.Context, bookingID string, amount float64) (*entity.Receipt, error)
	PayFull(ctx context.Context, bookingID string, amount float64) (*entity.Receipt, error)
	MarkServiceComplete(ctx context.Context, bookingID string) (*entity.Booking, error)
}

type MediaUploader interface {
	Upload(ctx context.Context, files []File) ([]entity.Attachment, error)
}

// Subscription is the open room on the real-time channel.
type Subscription interface {
	Events() <-chan entity.NewMessageEvent
}

type Notice struct {
	Code    string
	Message string
}

// Notifier is the shared place user-visible failures go.
type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type logNotifier struct{}

func (logNotifier) Notify(n Notice) {
	logger.Warn("Conversation: %s: %s", n.Code, n.Message)
}

type Option func(*Surface)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Surface) { s.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(s *Surface) { s.notifier = n }
}

// WithRenderer registers a callback that receives a fresh View after every
// event the loop handles. It runs on the loop and must not call back into
// the surface.
func WithRenderer(fn func(View)) Option {
	return func(s *Surface) { s.onRender = fn }
}

func WithOptimisticTimeout(d time.Duration) Option {
	return func(s *Surface) { s.optimisticTimeout = d }
}

func WithMatchWindow(d time.Duration) Option {
	return func(s *Surface) { s.matchWindow = d }
}

func WithCountdownInterval(d time.Duration) Option {
	return func(s *Surface) { s.countdownInterval = d }
}

type countdown struct {
	ticker clockwork.Ticker
	stop   chan struct{}
}

// Surface is the negotiation thread for one open room. Every state change
// runs on the goroutine executing Run; the exported methods hand work to it
// and make their network calls from the caller's goroutine.
type Surface struct {
	room     entity.ChatRoom
	self     entity.Participant
	actions  Actions
	uploader MediaUploader
	sub      Subscription

	clock             clockwork.Clock
	notifier          Notifier
	onRender          func(View)
	optimisticTimeout time.Duration
	matchWindow       time.Duration
	countdownInterval time.Duration

	inbox chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	// owned by the loop
	runCtx     context.Context
	loading    bool
	log        *Log
	quotes     map[string]*entity.Quote
	booking    *entity.Booking
	timeouts   map[string]clockwork.Timer
	countdowns map[string]*countdown
}

func NewSurface(room *entity.ChatRoom, selfID string, actions Actions, uploader MediaUploader, sub Subscription, opts ...Option) (*Surface, error) {
	if room == nil || actions == nil || sub == nil {
		return nil, apperrors.Validation("room, actions and subscription are required", nil)
	}
	self, ok := room.Participant(selfID)
	if !ok {
		return nil, apperrors.Forbidden("not a participant of this room", nil)
	}

	s := &Surface{
		room:              *room,
		self:              self,
		actions:           actions,
		uploader:          uploader,
		sub:               sub,
		clock:             clockwork.NewRealClock(),
		notifier:          logNotifier{},
		optimisticTimeout: DefaultOptimisticTimeout,
		matchWindow:       DefaultMatchWindow,
		countdownInterval: DefaultCountdownInterval,
		inbox:             make(chan func()),
		done:              make(chan struct{}),
		quotes:            make(map[string]*entity.Quote),
		timeouts:          make(map[string]clockwork.Timer),
		countdowns:        make(map[string]*countdown),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = NewLog(room.ID, s.matchWindow)
	return s, nil
}

// Run loads the room and processes events until ctx is cancelled or the
// subscription closes. It tears down every timer before returning.
func (s *Surface) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.runCtx = ctx
	defer func() {
		cancel()
		s.teardown()
		s.wg.Wait()
	}()

	history, err := s.actions.ListMessages(ctx, s.room.ID)
	if err != nil {
		return err
	}
	booking, err := s.actions.GetBookingByChatRoom(ctx, s.room.ID)
	if err != nil {
		return err
	}

	s.loading = true
	for _, m := range history {
		s.ingest(m)
	}
	s.loading = false
	s.setBooking(booking)
	s.publish()

	events := s.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrChannelClosed
			}
			s.receive(ev)
		case fn := <-s.inbox:
			fn()
		}
		s.publish()
	}
}

// View returns the current rendering of the room.
func (s *Surface) View(ctx context.Context) (View, error) {
	var v View
	err := s.call(ctx, func() { v = s.render() })
	return v, err
}

// Send shows the message immediately and then dispatches it. Files are
// uploaded first; an upload failure removes the message and is returned as is.
func (s *Surface) Send(ctx context.Context, text string, files ...File) error {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return apperrors.Validation("message must have text or attachments", entity.ErrEmptyMessage)
	}
	if len(files) > 0 && s.uploader == nil {
		return apperrors.Validation("media upload is not available", nil)
	}

	draft := entity.Message{
		RoomID:       s.room.ID,
		SenderID:     s.self.UserID,
		SenderRole:   s.self.Role,
		Type:         entity.MessageTypeText,
		Text:         text,
		ClientTempID: NewTempID(),
	}
	if len(files) > 0 {
		draft.Type = entity.MessageTypeMedia
		draft.Attachments = placeholders(files)
	}

	var tempID string
	err := s.call(ctx, func() {
		draft.CreatedAt = s.clock.Now()
		tempID = s.log.AppendOptimistic(draft)
		if len(files) == 0 {
			s.armTimeout(tempID)
		}
	})
	if err != nil {
		return err
	}

	if len(files) > 0 {
		attachments, err := s.uploader.Upload(ctx, files)
		if err != nil {
			s.post(func() { s.discard(tempID) })
			s.notify(apperrors.CodeTransportFailure, err.Error())
			return err
		}
		draft.Attachments = attachments
		s.post(func() { s.armTimeout(tempID) })
	}

	sent, err := s.actions.SendMessage(ctx, draft)
	if err != nil {
		if soft(err) {
			logger.Warn("Conversation: send of %s failed, waiting for echo: %v", tempID, err)
			return err
		}
		s.post(func() { s.discard(tempID) })
		s.fail(err)
		return err
	}

	confirmed := *sent
	s.post(func() { s.ingest(confirmed) })
	return nil
}

func (s *Surface) CreateQuote(ctx context.Context, draft QuoteDraft) (*entity.Quote, error) {
	if s.self.Role != entity.RoleGuide {
		return nil, apperrors.Validation("only the guide can create a quote", nil)
	}
	if strings.TrimSpace(draft.SessionDate) == "" || strings.TrimSpace(draft.SessionTime) == "" {
		return nil, apperrors.Validation("session date and time are required", nil)
	}
	if draft.Hours <= 0 {
		return nil, apperrors.Validation("hours must be positive", nil)
	}

	quote, err := s.actions.CreateQuote(ctx, s.room.ID, draft)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	q := *quote
	s.post(func() { s.trackQuote(&q) })
	return quote, nil
}

func (s *Surface) AcceptQuote(ctx context.Context, quoteID string) (*entity.Booking, error) {
	if err := s.checkResponder(ctx, quoteID); err != nil {
		return nil, err
	}

	booking, err := s.actions.AcceptQuote(ctx, quoteID)
	if err != nil {
		s.handleFailure(ctx, quoteID, err)
		return nil, err
	}

	b := *booking
	s.post(func() {
		s.resolveQuote(quoteID, entity.QuoteStatusAccepted)
		s.setBooking(&b)
	})
	return booking, nil
}

func (s *Surface) DeclineQuote(ctx context.Context, quoteID string) error {
	if err := s.checkResponder(ctx, quoteID); err != nil {
		return err
	}

	if _, err := s.actions.DeclineQuote(ctx, quoteID); err != nil {
		s.handleFailure(ctx, quoteID, err)
		return err
	}
	s.post(func() { s.resolveQuote(quoteID, entity.QuoteStatusDeclined) })
	return nil
}

func (s *Surface) PayAdvance(ctx context.Context) (*entity.Receipt, error) {
	return s.pay(ctx, entity.InstallmentAdvance)
}

func (s *Surface) PayFull(ctx context.Context) (*entity.Receipt, error) {
	return s.pay(ctx, entity.InstallmentFull)
}

// pay sends the installment amount recorded on the booking. The server owns
// the gate; a rejection refreshes the local copy.
func (s *Surface) pay(ctx context.Context, kind entity.InstallmentKind) (*entity.Receipt, error) {
	if s.self.Role != entity.RoleTraveller {
		return nil, apperrors.Validation("only the traveller can pay", nil)
	}
	booking, err := s.currentBooking(ctx)
	if err != nil {
		return nil, err
	}

	amount := booking.Installment(kind).Amount
	var receipt *entity.Receipt
	if kind == entity.InstallmentFull {
		receipt, err = s.actions.PayFull(ctx, booking.ID, amount)
	} else {
		receipt, err = s.actions.PayAdvance(ctx, booking.ID, amount)
	}
	if err != nil {
		s.handleFailure(ctx, "", err)
		return nil, err
	}

	s.refreshBooking(ctx)
	return receipt, nil
}

func (s *Surface) MarkServiceComplete(ctx context.Context) (*entity.Booking, error) {
	if s.self.Role != entity.RoleTraveller {
		return nil, apperrors.Validation("only the traveller can confirm the session took place", nil)
	}
	booking, err := s.currentBooking(ctx)
	if err != nil {
		return nil, err
	}

	updated, err := s.actions.MarkServiceComplete(ctx, booking.ID)
	if err != nil {
		s.handleFailure(ctx, "", err)
		return nil, err
	}
	b := *updated
	s.post(func() { s.setBooking(&b) })
	return updated, nil
}

func (s *Surface) checkResponder(ctx context.Context, quoteID string) error {
	if s.self.Role != entity.RoleTraveller {
		return apperrors.Validation("only the traveller can respond to a quote", nil)
	}
	var author string
	if err := s.call(ctx, func() {
		if q, ok := s.quotes[quoteID]; ok {
			author = q.GuideID
		}
	}); err != nil {
		return err
	}
	if author == s.self.UserID {
		return apperrors.Validation("the author cannot respond to their own quote", nil)
	}
	return nil
}

func (s *Surface) currentBooking(ctx context.Context) (entity.Booking, error) {
	var (
		b     entity.Booking
		found bool
	)
	if err := s.call(ctx, func() {
		if s.booking != nil {
			b, found = *s.booking, true
		}
	}); err != nil {
		return b, err
	}
	if !found {
		return b, apperrors.InvalidState("there is no booking in this conversation yet")
	}
	return b, nil
}

// handleFailure reports a failed action. A stale-state rejection re-reads the
// quote and booking so the view matches the server again.
func (s *Surface) handleFailure(ctx context.Context, quoteID string, err error) {
	s.fail(err)
	if !apperrors.Is(err, apperrors.CodeInvalidState) {
		return
	}
	if quoteID != "" {
		if q, qerr := s.actions.GetQuote(ctx, quoteID); qerr == nil && q != nil {
			s.post(func() { s.trackQuote(q) })
		} else if qerr != nil {
			logger.Warn("Conversation: refresh of quote %s failed: %v", quoteID, qerr)
		}
	}
	s.refreshBooking(ctx)
}

func (s *Surface) refreshBooking(ctx context.Context) {
	b, err := s.actions.GetBookingByChatRoom(ctx, s.room.ID)
	if err != nil {
		logger.Warn("Conversation: refresh of booking for room %s failed: %v", s.room.ID, err)
		return
	}
	s.post(func() { s.setBooking(b) })
}

func (s *Surface) fail(err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		s.notify(appErr.Code, appErr.Message)
		return
	}
	s.notify(apperrors.CodeTransportFailure, err.Error())
}

func (s *Surface) notify(code, message string) {
	if s.notifier != nil {
		s.notifier.Notify(Notice{Code: code, Message: message})
	}
}

// call runs fn on the loop and waits for it.
func (s *Surface) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

// post hands fn to the loop without waiting for it to run. It is dropped
// once the surface has stopped.
func (s *Surface) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// background runs fn off the loop for the lifetime of Run.
func (s *Surface) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.runCtx)
	}()
}

func (s *Surface) receive(ev entity.NewMessageEvent) {
	if ev.RoomID != s.room.ID {
		logger.Debug("Conversation: ignoring event for room %s in room %s", ev.RoomID, s.room.ID)
		return
	}
	s.ingest(ev.ToMessage())
}

func (s *Surface) ingest(m entity.Message) {
	if s.log.Reconcile(m) == Duplicate {
		return
	}
	s.settleTimeouts()

	switch m.Type {
	case entity.MessageTypeQuote:
		if q := entity.QuoteFromSnapshot(&m); q != nil {
			s.trackQuote(q)
		}
	case entity.MessageTypeSystem:
		if n := m.Notice(); n != nil {
			s.applyNotice(n)
		}
	}
}

func (s *Surface) applyNotice(n *entity.SystemNotice) {
	switch n.Event {
	case entity.EventQuoteAccepted:
		s.resolveQuote(n.QuoteID, entity.QuoteStatusAccepted)
	case entity.EventQuoteDeclined:
		s.resolveQuote(n.QuoteID, entity.QuoteStatusDeclined)
		return
	case entity.EventQuoteExpired:
		s.resolveQuote(n.QuoteID, entity.QuoteStatusExpired)
		return
	case entity.EventAdvancePaid, entity.EventAdvancePending, entity.EventServiceCompleted,
		entity.EventFullPaid, entity.EventFullPending, entity.EventBookingCancelled:
	default:
		return
	}

	if s.loading {
		return
	}
	s.background(s.refreshBooking)
}

// trackQuote records the latest known state of a quote. A snapshot still
// saying pending never overrides a resolution already seen.
func (s *Surface) trackQuote(q *entity.Quote) {
	if cur, ok := s.quotes[q.ID]; ok && cur.Status.Terminal() && !q.Status.Terminal() {
		return
	}
	s.quotes[q.ID] = q
	if q.EffectiveStatus(s.clock.Now()) == entity.QuoteStatusPending {
		s.startCountdown(q.ID)
	} else {
		s.stopCountdown(q.ID)
	}
}

func (s *Surface) resolveQuote(quoteID string, status entity.QuoteStatus) {
	if q, ok := s.quotes[quoteID]; ok {
		q.Status = status
	}
	s.stopCountdown(quoteID)
}

// setBooking keeps the newest copy of the booking; an older read arriving
// late is ignored.
func (s *Surface) setBooking(b *entity.Booking) {
	if b == nil {
		return
	}
	if s.booking != nil && s.booking.ID == b.ID && b.UpdatedAt.Before(s.booking.UpdatedAt) {
		return
	}
	s.booking = b
}

func (s *Surface) armTimeout(tempID string) {
	if !s.log.Pending(tempID) {
		return
	}
	if _, ok := s.timeouts[tempID]; ok {
		return
	}
	s.timeouts[tempID] = s.clock.AfterFunc(s.optimisticTimeout, func() {
		s.post(func() { s.expire(tempID) })
	})
}

func (s *Surface) expire(tempID string) {
	delete(s.timeouts, tempID)
	if s.log.Expire(tempID) {
		logger.Debug("Conversation: optimistic message %s expired unconfirmed", tempID)
	}
}

func (s *Surface) discard(tempID string) {
	s.log.Discard(tempID)
	s.settleTimeouts()
}

func (s *Surface) settleTimeouts() {
	for tempID, t := range s.timeouts {
		if !s.log.Pending(tempID) {
			t.Stop()
			delete(s.timeouts, tempID)
		}
	}
}

func (s *Surface) startCountdown(quoteID string) {
	if _, ok := s.countdowns[quoteID]; ok {
		return
	}
	c := &countdown{ticker: s.clock.NewTicker(s.countdownInterval), stop: make(chan struct{})}
	s.countdowns[quoteID] = c

	go func() {
		for {
			select {
			case <-c.ticker.Chan():
				s.post(func() { s.tick(quoteID) })
			case <-c.stop:
				return
			}
		}
	}()
}

func (s *Surface) tick(quoteID string) {
	if _, ok := s.countdowns[quoteID]; !ok {
		return
	}
	q, ok := s.quotes[quoteID]
	if !ok || q.EffectiveStatus(s.clock.Now()) != entity.QuoteStatusPending {
		s.stopCountdown(quoteID)
	}
}

func (s *Surface) stopCountdown(quoteID string) {
	c, ok := s.countdowns[quoteID]
	if !ok {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	delete(s.countdowns, quoteID)
}

// Countdowns reports how many quote timers are running.
func (s *Surface) Countdowns(ctx context.Context) (int, error) {
	var n int
	err := s.call(ctx, func() { n = len(s.countdowns) })
	return n, err
}

func (s *Surface) publish() {
	if s.onRender != nil {
		s.onRender(s.render())
	}
}

func (s *Surface) teardown() {
	s.once.Do(func() {
		close(s.done)
		for id, t := range s.timeouts {
			t.Stop()
			delete(s.timeouts, id)
		}
		for id := range s.countdowns {
			s.stopCountdown(id)
		}
	})
}

func soft(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	return appErr.Code == apperrors.CodeTransportFailure || appErr.Code == apperrors.CodeTimeout
}

func placeholders(files []File) []entity.Attachment {
	out := make([]entity.Attachment, len(files))
	for i, f := range files {
		out[i] = entity.Attachment{
			Type:     entity.AttachmentFile,
			FileName: f.FileName,
			FileSize: f.Size,
			Duration: f.Duration,
		}
	}
	return out
}
