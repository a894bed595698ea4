// Package orchestrator реализует сценарий бронирования с оплатой:
// DETAILS → PAYMENT → SUCCESS, с закрытием в CLOSED на любом шаге.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/autoecole-booking/internal/model"
	"github.com/mmeshcher/autoecole-booking/internal/validation"
)

// State обозначает шаг сценария.
type State string

const (
	StateDetails State = "DETAILS"
	StatePayment State = "PAYMENT"
	StateSuccess State = "SUCCESS"
	StateClosed  State = "CLOSED"
)

const (
	// DefaultTimeSlot задаёт время, предлагаемое формой по умолчанию.
	DefaultTimeSlot = "09:00"
	// DefaultOfferTitle показывается, пока формула не выбрана.
	DefaultOfferTitle = "Formation Permis B (Standard)"
	// DefaultPaymentDelay имитирует задержку платёжного провайдера.
	DefaultPaymentDelay = 2 * time.Second

	journalTimeout = 5 * time.Second
)

// Identity даёт доступ только на чтение к текущей сессии.
type Identity interface {
	User() (model.User, bool)
	Authenticated() bool
}

// Bookings описывает операции сервиса бронирований, нужные сценарию.
type Bookings interface {
	Create(ctx context.Context, req model.CreateBookingRequest, idempotencyKey string) (model.Booking, error)
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (model.Booking, error)
}

// Journal фиксирует попытки бронирования. Ошибки журнала не влияют на сценарий.
type Journal interface {
	Record(ctx context.Context, attempt model.FlowAttempt) error
}

// Details содержит поля формы первого шага. В API уходят только Date и Time,
// контактные поля используются для предзаполнения.
type Details struct {
	Name  string
	Phone string
	Email string
	Date  string
	Time  string
}

// Snapshot описывает состояние сценария для отображения.
type Snapshot struct {
	State         State
	School        model.School
	Offer         *model.Offer
	OfferTitle    string
	DisplayPrice  float64
	Details       Details
	BookingID     string
	Booking       *model.Booking
	PaymentMethod model.PaymentMethod
	InFlight      bool
}

// Orchestrator ведёт один диалог бронирования. Экземпляр принадлежит одному диалогу
// и после Close не переиспользуется.
type Orchestrator struct {
	mu sync.Mutex

	identity Identity
	bookings Bookings
	journal  Journal
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	newKey   func() string
	delay    time.Duration

	school  model.School
	offer   *model.Offer
	details Details
	state   State

	// submitted хранит данные, с которыми создано удерживаемое бронирование.
	submitted *model.CreateBookingRequest
	bookingID string
	booking   *model.Booking
	method    model.PaymentMethod

	// idemKey относится к запросу idemFor и сохраняется между неудачными повторами.
	idemKey string
	idemFor model.CreateBookingRequest

	inFlight bool
	gen      uint64

	life   context.Context
	cancel context.CancelFunc
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithOffer предварительно выбирает формулу.
func WithOffer(offer model.Offer) Option {
	return func(o *Orchestrator) {
		o.offer = &offer
	}
}

// WithJournal подключает журнал попыток.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithNotifier подключает доставку уведомлений.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger подключает логгер.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPaymentDelay задаёт задержку обработки платежа. Ноль отключает задержку.
func WithPaymentDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithKeyGenerator подменяет генератор ключей идемпотентности.
func WithKeyGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newKey = gen
		}
	}
}

// New открывает сценарий бронирования для автошколы school на шаге DETAILS.
func New(identity Identity, bookings Bookings, school model.School, opts ...Option) *Orchestrator {
	life, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		identity: identity,
		bookings: bookings,
		notifier: nopNotifier{},
		logger:   zap.NewNop(),
		now:      time.Now,
		newKey:   uuid.NewString,
		delay:    DefaultPaymentDelay,
		school:   school,
		details:  Details{Time: DefaultTimeSlot},
		state:    StateDetails,
		life:     life,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if identity != nil {
		if u, ok := identity.User(); ok {
			o.details.Name = u.FullName()
			o.details.Email = u.Email
		}
	}

	return o
}

// State возвращает текущий шаг.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot возвращает копию состояния для отображения.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Snapshot{
		State:         o.state,
		School:        o.school,
		OfferTitle:    DefaultOfferTitle,
		DisplayPrice:  o.school.Price,
		Details:       o.details,
		BookingID:     o.bookingID,
		PaymentMethod: o.method,
		InFlight:      o.inFlight,
	}
	if o.offer != nil {
		offer := *o.offer
		s.Offer = &offer
		if offer.Name != "" {
			s.OfferTitle = offer.Name
		}
		if offer.Price > 0 {
			s.DisplayPrice = offer.Price
		}
	}
	if o.booking != nil {
		b := *o.booking
		s.Booking = &b
	}
	return s
}

// SelectOffer выбирает формулу. Допустимо только на шаге DETAILS.
func (o *Orchestrator) SelectOffer(offer model.Offer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editableLocked(); err != nil {
		return err
	}
	o.offer = &offer
	return nil
}

// SetDetails заменяет поля формы. Допустимо только на шаге DETAILS.
func (o *Orchestrator) SetDetails(d Details) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.editableLocked(); err != nil {
		return err
	}
	o.details = d
	return nil
}

func (o *Orchestrator) editableLocked() error {
	switch {
	case o.state == StateClosed:
		return ErrClosed
	case o.inFlight:
		return ErrBusy
	case o.state != StateDetails:
		return ErrWrongStep
	}
	return nil
}

// Advance переводит сценарий из DETAILS в PAYMENT, создавая бронирование.
// Если бронирование уже создано с теми же данными (пользователь вернулся назад),
// повторного создания не происходит.
func (o *Orchestrator) Advance(ctx context.Context) error {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}

	req, verr := o.validateLocked()
	if verr != nil {
		o.mu.Unlock()
		o.notify(LevelError, verr.Message)
		return verr
	}

	if o.bookingID != "" && o.submitted != nil && *o.submitted == req {
		o.state = StatePayment
		id := o.bookingID
		o.mu.Unlock()
		o.logger.Info("resuming with retained booking", zap.String("booking_id", id))
		return nil
	}

	var superseded model.FlowAttempt
	if o.bookingID != "" {
		superseded = o.attemptLocked(model.FlowStatusAbandoned, "booking details changed")
		o.bookingID = ""
		o.booking = nil
		o.submitted = nil
	}

	if o.idemKey == "" || o.idemFor != req {
		o.idemKey = o.newKey()
		o.idemFor = req
	}

	key := o.idemKey
	gen := o.gen
	o.inFlight = true
	started := o.attemptLocked(model.FlowStatusStarted, "")
	o.mu.Unlock()

	if superseded.IdempotencyKey != "" {
		o.record(ctx, superseded)
	}
	o.record(ctx, started)

	callCtx, done := o.callContext(ctx)
	b, err := o.bookings.Create(callCtx, req, key)
	done()

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		if err == nil && b.ID != "" {
			o.logger.Warn("booking created after flow was closed", zap.String("booking_id", b.ID))
			orphan := started
			orphan.BookingID = b.ID
			orphan.Status = model.FlowStatusAbandoned
			orphan.LastError = "flow closed while creating booking"
			o.record(ctx, orphan)
		}
		return ErrClosed
	}
	o.inFlight = false

	if err == nil && b.ID == "" {
		err = errors.New("booking created without id")
	}
	if err != nil {
		failed := o.attemptLocked(model.FlowStatusFailed, err.Error())
		o.mu.Unlock()

		o.logger.Warn("create booking failed", zap.String("idempotency_key", key), zap.Error(err))
		o.notify(LevelError, userMessage(err, MsgCreateFailed))
		o.record(ctx, failed)
		return fmt.Errorf("create booking: %w", err)
	}

	o.bookingID = b.ID
	o.booking = &b
	o.submitted = &req
	o.state = StatePayment
	pending := o.attemptLocked(model.FlowStatusPending, "")
	o.mu.Unlock()

	o.logger.Info("booking created", zap.String("booking_id", b.ID), zap.String("idempotency_key", key))
	o.record(ctx, pending)
	return nil
}

// Pay переводит сценарий из PAYMENT в SUCCESS: ждёт обработку платежа и подтверждает бронирование.
// При ошибке шаг не меняется, созданное бронирование не откатывается.
func (o *Orchestrator) Pay(ctx context.Context, method model.PaymentMethod) error {
	o.mu.Lock()
	switch {
	case o.state == StateClosed:
		o.mu.Unlock()
		return ErrClosed
	case o.inFlight:
		o.mu.Unlock()
		return ErrBusy
	case o.state != StatePayment || o.bookingID == "":
		o.mu.Unlock()
		return ErrWrongStep
	}

	if !method.Valid() {
		o.mu.Unlock()
		verr := &ValidationError{Message: MsgInvalidMethod}
		o.notify(LevelError, verr.Message)
		return verr
	}

	id := o.bookingID
	gen := o.gen
	o.inFlight = true
	o.mu.Unlock()

	callCtx, done := o.callContext(ctx)
	b, err := o.confirm(callCtx, id)
	done()

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return ErrClosed
	}
	o.inFlight = false

	if err != nil {
		failed := o.attemptLocked(model.FlowStatusFailed, err.Error())
		failed.PaymentMethod = method
		o.mu.Unlock()

		o.logger.Warn("confirm booking failed", zap.String("booking_id", id), zap.Error(err))
		o.notify(LevelError, userMessage(err, MsgConfirmFailed))
		o.record(ctx, failed)
		return fmt.Errorf("confirm booking: %w", err)
	}

	o.booking = &b
	o.method = method
	o.state = StateSuccess
	confirmed := o.attemptLocked(model.FlowStatusConfirmed, "")
	o.mu.Unlock()

	o.logger.Info("booking confirmed", zap.String("booking_id", id), zap.String("method", string(method)))
	o.notify(LevelSuccess, MsgConfirmed)
	o.record(ctx, confirmed)
	return nil
}

func (o *Orchestrator) confirm(ctx context.Context, id string) (model.Booking, error) {
	if o.delay > 0 {
		timer := time.NewTimer(o.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.Booking{}, ctx.Err()
		case <-timer.C:
		}
	}

	b, err := o.bookings.UpdateStatus(ctx, id, model.BookingStatusConfirmed)
	if err != nil {
		return model.Booking{}, err
	}
	if b.ID == "" {
		b.ID = id
	}
	if b.Status != "" && b.Status != model.BookingStatusConfirmed {
		return model.Booking{}, fmt.Errorf("booking %s has status %s after confirmation", id, b.Status)
	}
	if b.Status == "" {
		b.Status = model.BookingStatusConfirmed
	}
	return b, nil
}

// Back возвращает сценарий из PAYMENT в DETAILS. Созданное бронирование остаётся в PENDING.
func (o *Orchestrator) Back() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.state == StateClosed:
		return ErrClosed
	case o.inFlight:
		return ErrBusy
	case o.state != StatePayment:
		return ErrWrongStep
	}
	o.state = StateDetails
	return nil
}

// Close закрывает сценарий: очищает форму и удерживаемое бронирование и отменяет
// выполняющиеся запросы. API не уведомляется; неподтверждённое бронирование
// отмечается в журнале как брошенное.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return
	}

	var abandoned model.FlowAttempt
	if o.bookingID != "" && o.state != StateSuccess {
		abandoned = o.attemptLocked(model.FlowStatusAbandoned, "flow closed before payment")
	}

	o.gen++
	o.cancel()
	o.state = StateClosed
	o.inFlight = false
	o.details = Details{}
	o.offer = nil
	o.bookingID = ""
	o.booking = nil
	o.submitted = nil
	o.method = ""
	o.idemKey = ""
	o.idemFor = model.CreateBookingRequest{}
	o.mu.Unlock()

	if abandoned.IdempotencyKey != "" {
		o.logger.Info("flow closed with pending booking", zap.String("booking_id", abandoned.BookingID))
		o.record(ctx, abandoned)
	}
}

// validateLocked проверяет предусловия перехода DETAILS → PAYMENT.
func (o *Orchestrator) validateLocked() (model.CreateBookingRequest, *ValidationError) {
	if o.identity == nil || !o.identity.Authenticated() {
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgLoginRequired}
	}
	if !validation.IsValidID(o.school.ID) {
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgSchoolRequired}
	}
	if o.offer == nil || !validation.IsValidID(o.offer.ID) {
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgOfferRequired}
	}

	date := strings.TrimSpace(o.details.Date)
	if date == "" {
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgDateRequired}
	}
	if err := validation.ValidateBookingDate(date, o.now()); err != nil {
		if errors.Is(err, validation.ErrDateNotFuture) {
			return model.CreateBookingRequest{}, &ValidationError{Message: MsgDateNotFuture}
		}
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgDateFormat}
	}

	slot := strings.TrimSpace(o.details.Time)
	if slot != "" && !validation.IsValidTimeSlot(slot) {
		return model.CreateBookingRequest{}, &ValidationError{Message: MsgInvalidTimeSlot}
	}

	return model.CreateBookingRequest{
		SchoolID: o.school.ID,
		OfferID:  o.offer.ID,
		Date:     date,
		Time:     slot,
	}, nil
}

// callContext связывает контекст вызова с жизненным циклом сценария.
func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.life, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

func (o *Orchestrator) attemptLocked(status model.FlowStatus, lastErr string) model.FlowAttempt {
	a := model.FlowAttempt{
		IdempotencyKey: o.idemKey,
		SchoolID:       o.idemFor.SchoolID,
		OfferID:        o.idemFor.OfferID,
		Date:           o.idemFor.Date,
		Time:           o.idemFor.Time,
		BookingID:      o.bookingID,
		Status:         status,
		PaymentMethod:  o.method,
		LastError:      lastErr,
		UpdatedAt:      o.now(),
	}
	if o.identity != nil {
		if u, ok := o.identity.User(); ok {
			a.UserID = u.ID
		}
	}
	return a
}

func (o *Orchestrator) record(ctx context.Context, a model.FlowAttempt) {
	if o.journal == nil || a.IdempotencyKey == "" {
		return
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	if err := o.journal.Record(jctx, a); err != nil {
		o.logger.Warn("journal record failed",
			zap.String("idempotency_key", a.IdempotencyKey),
			zap.String("status", string(a.Status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) notify(level Level, msg string) {
	o.notifier.Notify(Notice{Level: level, Message: msg})
}
