package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/event"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httpclient"
	"github.com/sonic7adarsh/bharatapp/pkg/middleware"
)

// GenericSubmitFailure is shown when the order service gave no message.
const GenericSubmitFailure = "We couldn't place your order. Please try again."

// DefaultSubmitTimeout bounds the order-placement call.
const DefaultSubmitTimeout = 30 * time.Second

// CheckoutMode selects what is being checked out.
type CheckoutMode string

const (
	ModeCart    CheckoutMode = "cart"
	ModeBooking CheckoutMode = "booking"
)

// CheckoutConfig carries the checkout rules.
type CheckoutConfig struct {
	Area          domain.ServiceArea
	CartPolicy    domain.CartPolicy
	SubmitTimeout time.Duration
	Sanitizer     *bluemonday.Policy
}

// DraftUpdate changes the draft fields that are set.
type DraftUpdate struct {
	Mode               *CheckoutMode          `json:"mode"`
	Method             *domain.CheckoutMethod `json:"checkoutMethod"`
	Address            *domain.Address        `json:"address"`
	SavedAddress       *int                   `json:"savedAddress"`
	Slot               *domain.DeliverySlot   `json:"slot"`
	PromoCode          *string                `json:"promoCode"`
	Tip                *decimal.Decimal       `json:"tip"`
	PaymentMethod      *domain.PaymentMethod  `json:"paymentMethod"`
	Attachments        *[]string              `json:"attachments"`
	AllowSubstitutions *bool                  `json:"allowSubstitutions"`
}

// CheckoutView is the checkout as the client renders it.
type CheckoutView struct {
	CheckoutID string                  `json:"checkoutId"`
	State      domain.CheckoutState    `json:"state"`
	Mode       CheckoutMode            `json:"mode"`
	Draft      domain.CheckoutDraft    `json:"draft"`
	Totals     domain.PricingBreakdown `json:"totals"`
	Promo      domain.PromoResult      `json:"promo"`
	Reference  string                  `json:"reference,omitempty"`
	Error      *apperrors.AppError     `json:"error,omitempty"`
}

// Checkout orchestrates one session's checkout. It validates the draft
// locally, then makes exactly one order-placement call per submission.
type Checkout struct {
	session string
	cart    *CartStore
	booking *BookingFlow
	prefs   *Preferences
	orders  OrderBackend
	events  event.Publisher
	logger  *slog.Logger
	cfg     CheckoutConfig

	mu        sync.Mutex
	state     domain.CheckoutState
	mode      CheckoutMode
	draft     domain.CheckoutDraft
	key       string
	reference string
	lastErr   *apperrors.AppError

	wg sync.WaitGroup
}

// NewCheckout creates a checkout in DRAFT, seeded from the saved preferences.
func NewCheckout(
	ctx context.Context,
	session string,
	cart *CartStore,
	booking *BookingFlow,
	prefs *Preferences,
	orders OrderBackend,
	events event.Publisher,
	logger *slog.Logger,
	cfg CheckoutConfig,
) *Checkout {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if events == nil {
		events = event.Nop{}
	}
	c := &Checkout{
		session: session,
		cart:    cart,
		booking: booking,
		prefs:   prefs,
		orders:  orders,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		state:   domain.StateDraft,
		mode:    ModeCart,
		key:     uuid.New().String(),
	}
	c.draft = c.seedDraft(ctx)
	return c
}

func (c *Checkout) seedDraft(ctx context.Context) domain.CheckoutDraft {
	d := domain.NewCheckoutDraft()
	d.Method = c.prefs.CheckoutMethod(ctx)
	d.PromoCode = c.prefs.Promo(ctx)
	d.AllowSubstitutions = c.prefs.AllowSubstitutions(ctx)
	if saved := c.prefs.SavedAddresses(ctx); len(saved) > 0 {
		d.Address = saved[0]
	}
	return d
}

// View returns the checkout with freshly derived totals.
func (c *Checkout) View(ctx context.Context) CheckoutView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(ctx)
}

// Busy reports whether a submission is in progress.
func (c *Checkout) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Busy()
}

// UpdateDraft applies u. It is refused while a submission is in progress or
// after the order was confirmed. Editing a failed checkout returns it to
// DRAFT under a new idempotency key.
func (c *Checkout) UpdateDraft(ctx context.Context, u DraftUpdate) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state.Busy():
		return CheckoutView{}, apperrors.Conflict("your order is being placed")
	case c.state == domain.StateConfirmed:
		return CheckoutView{}, apperrors.Conflict("this order has already been placed; start a new checkout")
	}

	next := c.draft
	next.Attachments = append([]string(nil), c.draft.Attachments...)
	mode := c.mode

	if u.Mode != nil {
		if *u.Mode != ModeCart && *u.Mode != ModeBooking {
			return CheckoutView{}, apperrors.Validation("mode must be cart or booking").WithField("mode")
		}
		mode = *u.Mode
	}
	if u.Method != nil {
		if *u.Method != domain.MethodDelivery && *u.Method != domain.MethodPickup {
			return CheckoutView{}, apperrors.Validation("checkout method must be delivery or pickup").WithField("checkoutMethod")
		}
		next.Method = *u.Method
	}
	if u.SavedAddress != nil {
		saved := c.prefs.SavedAddresses(ctx)
		i := *u.SavedAddress
		if i < 0 || i >= len(saved) {
			return CheckoutView{}, apperrors.NotFound("saved address", strconv.Itoa(i))
		}
		next.Address = saved[i]
	}
	if u.Address != nil {
		next.Address = u.Address.Normalized(c.cfg.Sanitizer)
	}
	if u.Slot != nil {
		next.Slot = *u.Slot
		next.Slot.ID = strings.TrimSpace(next.Slot.ID)
	}
	if u.PromoCode != nil {
		next.PromoCode = domain.NormalizeCode(*u.PromoCode)
	}
	if u.Tip != nil {
		if u.Tip.IsNegative() {
			return CheckoutView{}, apperrors.Validation("tip must not be negative").WithField("tip")
		}
		next.Tip = *u.Tip
	}
	if u.PaymentMethod != nil {
		if !u.PaymentMethod.Valid() {
			return CheckoutView{}, apperrors.Validation(fmt.Sprintf("unsupported payment method %q", *u.PaymentMethod)).WithField("paymentMethod")
		}
		next.PaymentMethod = *u.PaymentMethod
	}
	if u.Attachments != nil {
		next.Attachments = cleanAttachments(*u.Attachments)
	}
	if u.AllowSubstitutions != nil {
		next.AllowSubstitutions = *u.AllowSubstitutions
	}

	c.rememberLocked(ctx, u, next)

	c.draft = next
	c.mode = mode
	if c.state == domain.StateFailed {
		c.state = domain.StateDraft
		c.lastErr = nil
		c.key = uuid.New().String()
	}
	return c.viewLocked(ctx), nil
}

// rememberLocked stores the choices that outlive this checkout. Failures are
// logged; the draft edit still applies.
func (c *Checkout) rememberLocked(ctx context.Context, u DraftUpdate, d domain.CheckoutDraft) {
	var errs []error
	if u.Method != nil {
		errs = append(errs, c.prefs.SetCheckoutMethod(ctx, d.Method))
	}
	if u.PromoCode != nil {
		errs = append(errs, c.prefs.SetPromo(ctx, d.PromoCode))
	}
	if u.AllowSubstitutions != nil {
		errs = append(errs, c.prefs.SetAllowSubstitutions(ctx, d.AllowSubstitutions))
	}
	for _, err := range errs {
		if err != nil {
			c.logger.WarnContext(ctx, "failed to save checkout preference", slog.String("error", err.Error()))
		}
	}
}

// Submit validates the draft and places the order. Validation failures
// return the checkout to DRAFT without any network call. The order call runs
// detached from ctx: if ctx ends first Submit returns ctx.Err() while the
// call carries on and its outcome shows up in View.
func (c *Checkout) Submit(ctx context.Context) (CheckoutView, error) {
	c.mu.Lock()

	switch {
	case c.state.Busy():
		c.mu.Unlock()
		return CheckoutView{}, apperrors.Conflict("your order is already being placed")
	case c.state == domain.StateConfirmed:
		c.mu.Unlock()
		return CheckoutView{}, apperrors.Conflict("this order has already been placed; reset to start a new checkout")
	}

	c.state = domain.StateValidating
	c.lastErr = nil

	draft := c.draftLocked()
	cart := c.cart.Snapshot()
	order, err := c.prepareLocked(draft, cart)
	if err != nil {
		appErr := asAppError(err)
		c.state = domain.StateDraft
		c.lastErr = appErr
		view := c.viewLocked(ctx)
		c.mu.Unlock()

		checkoutSubmissionsTotal.WithLabelValues("rejected").Inc()
		c.logger.InfoContext(ctx, "checkout rejected",
			slog.String("code", appErr.Code),
			slog.String("field", appErr.Field),
		)
		return view, appErr
	}

	c.state = domain.StateSubmitting
	key := c.key
	mode := c.mode
	c.wg.Add(1)
	c.mu.Unlock()

	done := make(chan struct{})
	sctx := context.WithoutCancel(ctx)
	go func() {
		defer c.wg.Done()
		defer close(done)
		cctx, cancel := context.WithTimeout(sctx, c.cfg.SubmitTimeout)
		defer cancel()

		conf, err := c.orders.Checkout(cctx, order, key)
		c.finish(cctx, key, mode, order, conf, err)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return c.View(sctx), ctx.Err()
	}

	view := c.View(ctx)
	if view.Error != nil {
		return view, view.Error
	}
	return view, nil
}

// draftLocked returns the draft to submit, with the booking attached in
// booking mode.
func (c *Checkout) draftLocked() domain.CheckoutDraft {
	d := c.draft
	d.Booking = nil
	if c.mode == ModeBooking {
		d.Booking = c.booking.Selection()
	}
	return d
}

func (c *Checkout) prepareLocked(d domain.CheckoutDraft, cart *domain.Cart) (domain.OrderRequest, error) {
	if c.mode == ModeBooking && d.Booking == nil {
		return domain.OrderRequest{}, apperrors.Validation("please choose a room to book").WithField("booking")
	}
	if b := d.Booking; b != nil && b.Availability != nil && !b.Availability.Available {
		msg := b.Availability.Reason
		if msg == "" {
			msg = "this room is not available for the chosen dates"
		}
		return domain.OrderRequest{}, apperrors.Validation(msg).WithField("booking")
	}
	if err := domain.ValidateSubmission(d, cart, c.cfg.Area); err != nil {
		return domain.OrderRequest{}, err
	}
	totals, _, err := c.totals(d, cart)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	return domain.BuildOrder(d, cart, totals), nil
}

func (c *Checkout) finish(ctx context.Context, key string, mode CheckoutMode, order domain.OrderRequest, conf domain.OrderConfirmation, err error) {
	userID := middleware.UserIDFromContext(ctx)

	if err != nil {
		appErr := httpclient.ToAppError(err, GenericSubmitFailure)

		c.mu.Lock()
		c.state = domain.StateFailed
		c.lastErr = appErr
		c.mu.Unlock()

		checkoutSubmissionsTotal.WithLabelValues("failed").Inc()
		c.logger.WarnContext(ctx, "checkout failed",
			slog.String("checkout_id", key),
			slog.String("code", appErr.Code),
			slog.String("error", err.Error()),
		)
		c.publish(ctx, event.TypeCheckoutFailed, c.events.PublishCheckoutFailed(ctx, event.CheckoutFailedData{
			CheckoutID: key,
			SessionID:  c.session,
			UserID:     userID,
			Code:       appErr.Code,
			Reason:     appErr.Message,
		}))
		return
	}

	if order.Address != nil {
		if _, err := c.prefs.SaveAddress(ctx, *order.Address); err != nil {
			c.logger.WarnContext(ctx, "failed to save delivery address", slog.String("error", err.Error()))
		}
	}
	if mode == ModeBooking {
		c.booking.Reset()
	} else {
		c.cart.Settle(ctx, order.Items)
	}
	fresh := c.seedDraft(ctx)

	c.mu.Lock()
	c.state = domain.StateConfirmed
	c.reference = conf.Reference
	c.draft = fresh
	c.mu.Unlock()

	checkoutSubmissionsTotal.WithLabelValues("confirmed").Inc()
	c.logger.InfoContext(ctx, "checkout confirmed",
		slog.String("checkout_id", key),
		slog.String("reference", conf.Reference),
	)

	kind, count := "order", 0
	for _, it := range order.Items {
		count += it.Quantity
	}
	if order.Booking != nil {
		kind, count = "booking", len(order.Booking.RoomsGuests)
	}
	c.publish(ctx, event.TypeCheckoutConfirmed, c.events.PublishCheckoutConfirmed(ctx, event.CheckoutConfirmedData{
		CheckoutID:    key,
		SessionID:     c.session,
		UserID:        userID,
		Reference:     conf.Reference,
		Kind:          kind,
		ItemCount:     count,
		Payable:       order.Totals.Payable,
		PaymentMethod: string(order.PaymentMethod),
	}))
}

func (c *Checkout) publish(ctx context.Context, eventType string, err error) {
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish checkout event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// Reset returns a finished checkout to DRAFT with a new idempotency key. A
// failed draft keeps its edits.
func (c *Checkout) Reset(ctx context.Context) (CheckoutView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return CheckoutView{}, apperrors.Conflict("your order is being placed")
	}
	if c.state != domain.StateDraft {
		c.state = domain.StateDraft
		c.key = uuid.New().String()
	}
	c.reference = ""
	c.lastErr = nil
	return c.viewLocked(ctx), nil
}

// Wait blocks until an in-flight submission has finished.
func (c *Checkout) Wait() {
	c.wg.Wait()
}

func (c *Checkout) viewLocked(ctx context.Context) CheckoutView {
	d := c.draftLocked()
	d.Attachments = append([]string(nil), d.Attachments...)
	cart := c.cart.Snapshot()
	totals, promo, err := c.totals(d, cart)
	if err != nil {
		c.logger.DebugContext(ctx, "failed to price checkout", slog.String("error", err.Error()))
	}
	return CheckoutView{
		CheckoutID: c.key,
		State:      c.state,
		Mode:       c.mode,
		Draft:      d,
		Totals:     totals,
		Promo:      promo,
		Reference:  c.reference,
		Error:      c.lastErr,
	}
}

// totals prices the draft. A booking uses the availability answer when
// there is one and the local quote otherwise.
func (c *Checkout) totals(d domain.CheckoutDraft, cart *domain.Cart) (domain.PricingBreakdown, domain.PromoResult, error) {
	if d.Booking == nil {
		return domain.ComputeCartPricing(domain.CartPricingInput{
			Cart:         cart,
			DiscountCode: d.PromoCode,
			Tip:          d.Tip,
			Pickup:       d.Method == domain.MethodPickup,
			Policy:       c.cfg.CartPolicy,
		})
	}

	if a := d.Booking.Availability; a != nil {
		return a.Breakdown(), domain.PromoResult{Discount: decimal.Zero}, nil
	}
	quote, err := c.booking.Quote()
	return quote, domain.PromoResult{Discount: decimal.Zero}, err
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
