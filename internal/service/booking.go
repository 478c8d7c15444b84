package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/remote"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// EstimateNotice is announced when availability falls back to a local quote.
const EstimateNotice = "Live availability is unavailable right now. Showing an estimated price."

// BookingPolicy is the room and pricing policy for booking quotes.
type BookingPolicy struct {
	Room domain.RoomPolicy
	Stay domain.StayPolicy
}

// StartBooking selects a room to book.
type StartBooking struct {
	StoreID     string          `json:"storeId" validate:"required"`
	RoomID      string          `json:"roomId" validate:"required"`
	BaseRate    decimal.Decimal `json:"base"`
	CheckIn     string          `json:"checkIn"`
	CheckOut    string          `json:"checkOut"`
	RoomsGuests []int           `json:"roomsGuests"`
}

// BookingView is the booking draft with its local quote and the latest
// availability answer.
type BookingView struct {
	Draft        domain.BookingDraft      `json:"draft"`
	Quote        *domain.PricingBreakdown `json:"quote,omitempty"`
	QuoteError   *apperrors.AppError      `json:"quoteError,omitempty"`
	Availability *domain.Availability     `json:"availability,omitempty"`
	Policy       domain.RoomPolicy        `json:"policy"`
}

// AvailabilityResult is the answer to one CheckAvailability call. Applied is
// false when a newer check or draft edit superseded this one.
type AvailabilityResult struct {
	Availability domain.Availability `json:"availability"`
	Applied      bool                `json:"applied"`
	Notice       string              `json:"notice,omitempty"`
}

// BookingFlow is one session's room booking draft. Every edit invalidates
// the last availability answer, and only the newest availability request is
// ever applied.
type BookingFlow struct {
	backend   AvailabilityBackend
	announcer Announcer
	policy    BookingPolicy
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	draft        domain.BookingDraft
	availability *domain.Availability
	learned      *domain.RoomPolicy
	gen          uint64
}

// NewBookingFlow creates an empty booking flow.
func NewBookingFlow(backend AvailabilityBackend, announcer Announcer, policy BookingPolicy, logger *slog.Logger) *BookingFlow {
	if announcer == nil {
		announcer = nopAnnouncer{}
	}
	return &BookingFlow{
		backend:   backend,
		announcer: announcer,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Start replaces the draft with a booking of in.RoomID. Missing dates default
// to tonight; missing guests default to one.
func (b *BookingFlow) Start(in StartBooking) (BookingView, error) {
	in.StoreID = strings.TrimSpace(in.StoreID)
	in.RoomID = strings.TrimSpace(in.RoomID)
	if in.StoreID == "" {
		return BookingView{}, apperrors.Validation("store id is required").WithField("storeId")
	}
	if in.RoomID == "" {
		return BookingView{}, apperrors.Validation("room id is required").WithField("roomId")
	}
	if in.BaseRate.IsNegative() {
		return BookingView{}, apperrors.Validation("base rate must not be negative").WithField("base")
	}

	if in.CheckIn == "" {
		in.CheckIn = b.now().Format(domain.DateLayout)
	}
	stay, err := parseStay(in.CheckIn, in.CheckOut)
	if err != nil {
		return BookingView{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.learned = nil
	b.draft = domain.BookingDraft{
		StoreID:     in.StoreID,
		RoomID:      in.RoomID,
		BaseRate:    in.BaseRate,
		RoomsGuests: domain.NormalizeRooms(in.RoomsGuests, b.roomPolicyLocked().MaxPerRoom),
	}
	b.applyStayLocked(stay)
	b.invalidateLocked()
	return b.viewLocked(), nil
}

// SetDates changes the stay. A check-out on or before check-in moves to the
// following day.
func (b *BookingFlow) SetDates(checkIn, checkOut string) (BookingView, error) {
	stay, err := parseStay(checkIn, checkOut)
	if err != nil {
		return BookingView{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyStayLocked(stay)
	b.invalidateLocked()
	return b.viewLocked(), nil
}

// IncrementGuests adds a guest to room idx.
func (b *BookingFlow) IncrementGuests(idx int) (BookingView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkRoomLocked(idx); err != nil {
		return BookingView{}, err
	}
	b.draft.RoomsGuests = domain.IncrementRoomGuests(b.draft.RoomsGuests, idx, b.roomPolicyLocked().MaxPerRoom)
	b.invalidateLocked()
	return b.viewLocked(), nil
}

// DecrementGuests removes a guest from room idx.
func (b *BookingFlow) DecrementGuests(idx int) (BookingView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkRoomLocked(idx); err != nil {
		return BookingView{}, err
	}
	b.draft.RoomsGuests = domain.DecrementRoomGuests(b.draft.RoomsGuests, idx)
	b.invalidateLocked()
	return b.viewLocked(), nil
}

// Quote prices the current draft locally.
func (b *BookingFlow) Quote() (domain.PricingBreakdown, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	quote, _, err := b.quoteLocked()
	return quote, err
}

// View returns the draft, its quote and the latest availability answer.
func (b *BookingFlow) View() BookingView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// CheckAvailability asks the availability service about the current draft.
// The allocation must be valid first; CAPACITY_EXCEEDED never reaches the
// network. If the service cannot answer, a local estimate is returned with a
// notice.
func (b *BookingFlow) CheckAvailability(ctx context.Context) (AvailabilityResult, error) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	draft := cloneBookingDraft(b.draft)
	policy := b.roomPolicyLocked()
	b.mu.Unlock()

	if draft.StoreID == "" || draft.RoomID == "" {
		return AvailabilityResult{}, apperrors.Validation("please choose a room first").WithField("roomId")
	}

	alloc, err := domain.AllocateRooms(draft.RoomsGuests, policy)
	if err != nil {
		availabilityChecksTotal.WithLabelValues("blocked").Inc()
		return AvailabilityResult{}, err
	}

	res := AvailabilityResult{}
	label := "live"
	avail, err := b.backend.Availability(ctx, remote.AvailabilityQuery{
		StoreID:     draft.StoreID,
		RoomID:      draft.RoomID,
		CheckIn:     draft.CheckIn,
		CheckOut:    draft.CheckOut,
		RoomsGuests: alloc.GuestsPerRoom,
	})
	if err != nil {
		b.logger.WarnContext(ctx, "availability check failed, using local estimate",
			slog.String("room_id", draft.RoomID),
			slog.String("error", err.Error()),
		)
		quote := domain.ComputeStayPricing(domain.StayPricingInput{
			BaseRate:   draft.BaseRate,
			Nights:     draft.Nights,
			Allocation: alloc,
			Policy:     b.policy.Stay,
		})
		avail = domain.EstimateAvailability(alloc, quote, b.policy.Stay.MattressFeePerNight)
		res.Notice = EstimateNotice
		label = "estimated"
	} else {
		limit := avail.Policy(policy).MaxPerRoom
		if len(avail.RoomsGuests) == 0 {
			avail.RoomsGuests = alloc.GuestsPerRoom
		}
		avail.RoomsGuests = domain.NormalizeRooms(avail.RoomsGuests, limit)
	}
	res.Availability = avail

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		availabilityChecksTotal.WithLabelValues("stale").Inc()
		b.logger.DebugContext(ctx, "discarding stale availability answer", slog.String("room_id", draft.RoomID))
		return res, nil
	}
	applied := avail
	b.availability = &applied
	learned := avail.Policy(b.policy.Room)
	b.learned = &learned
	b.mu.Unlock()

	res.Applied = true
	availabilityChecksTotal.WithLabelValues(label).Inc()
	if res.Notice != "" {
		b.announcer.Announce(ctx, res.Notice)
	}
	return res, nil
}

// Selection returns the booking to attach to a checkout, or nil when no room
// has been chosen.
func (b *BookingFlow) Selection() *domain.BookingSelection {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draft.RoomID == "" {
		return nil
	}
	sel := &domain.BookingSelection{Draft: cloneBookingDraft(b.draft)}
	if b.availability != nil {
		a := *b.availability
		a.RoomsGuests = append([]int(nil), a.RoomsGuests...)
		sel.Availability = &a
	}
	return sel
}

// Reset forgets the draft.
func (b *BookingFlow) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.draft = domain.BookingDraft{}
	b.learned = nil
	b.invalidateLocked()
}

func (b *BookingFlow) roomPolicyLocked() domain.RoomPolicy {
	if b.learned != nil {
		return *b.learned
	}
	p := b.policy.Room
	if p.MaxPerRoom < 1 {
		p.MaxPerRoom = domain.DefaultMaxPerRoom
	}
	return p
}

func (b *BookingFlow) applyStayLocked(stay domain.Stay) {
	b.draft.CheckIn = stay.CheckIn.Format(domain.DateLayout)
	b.draft.CheckOut = stay.CheckOut.Format(domain.DateLayout)
	b.draft.Nights = stay.Nights
}

// invalidateLocked drops the availability answer and supersedes any check
// still in flight.
func (b *BookingFlow) invalidateLocked() {
	b.gen++
	b.availability = nil
}

func (b *BookingFlow) checkRoomLocked(idx int) error {
	if b.draft.RoomID == "" {
		return apperrors.Validation("please choose a room first").WithField("roomId")
	}
	if idx < 0 || idx >= len(b.draft.RoomsGuests) {
		return apperrors.NotFound("room", strconv.Itoa(idx+1))
	}
	return nil
}

func (b *BookingFlow) quoteLocked() (domain.PricingBreakdown, domain.RoomAllocation, error) {
	alloc, err := domain.AllocateRooms(b.draft.RoomsGuests, b.roomPolicyLocked())
	if err != nil {
		return domain.PricingBreakdown{}, domain.RoomAllocation{}, err
	}
	quote := domain.ComputeStayPricing(domain.StayPricingInput{
		BaseRate:   b.draft.BaseRate,
		Nights:     b.draft.Nights,
		Allocation: alloc,
		Policy:     b.policy.Stay,
	})
	return quote, alloc, nil
}

func (b *BookingFlow) viewLocked() BookingView {
	v := BookingView{Draft: cloneBookingDraft(b.draft), Policy: b.roomPolicyLocked()}
	if b.draft.RoomID == "" {
		return v
	}
	quote, _, err := b.quoteLocked()
	if err != nil {
		v.QuoteError = asAppError(err)
	} else {
		v.Quote = &quote
	}
	if b.availability != nil {
		a := *b.availability
		v.Availability = &a
	}
	return v
}

func parseStay(checkIn, checkOut string) (domain.Stay, error) {
	stay, err := domain.ParseStay(strings.TrimSpace(checkIn), strings.TrimSpace(checkOut))
	if err != nil {
		return domain.Stay{}, apperrors.Validation("dates must look like 2025-01-31").WithField("checkIn")
	}
	return stay, nil
}

func cloneBookingDraft(d domain.BookingDraft) domain.BookingDraft {
	d.RoomsGuests = append([]int(nil), d.RoomsGuests...)
	return d
}
