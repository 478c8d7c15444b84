package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/remote"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

func testBookingPolicy() BookingPolicy {
	stay := domain.DefaultStayPolicy()
	stay.MattressFeePerNight = domain.Rupees(300)
	return BookingPolicy{
		Room: domain.RoomPolicy{MaxPerRoom: 3, ExtraMattressAllowed: true},
		Stay: stay,
	}
}

func newTestBookingFlow(backend *mockBackend, announcer Announcer) *BookingFlow {
	b := NewBookingFlow(backend, announcer, testBookingPolicy(), testLogger())
	b.now = func() time.Time { return time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC) }
	return b
}

func startLakeView(t *testing.T, b *BookingFlow, rooms []int) BookingView {
	t.Helper()
	v, err := b.Start(StartBooking{
		StoreID:     "store-9",
		RoomID:      "deluxe",
		BaseRate:    domain.Rupees(2000),
		CheckIn:     "2025-01-10",
		CheckOut:    "2025-01-12",
		RoomsGuests: rooms,
	})
	require.NoError(t, err)
	return v
}

func TestBookingStart(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	v := startLakeView(t, b, []int{2})

	assert.Equal(t, 2, v.Draft.Nights)
	assert.Equal(t, "2025-01-12", v.Draft.CheckOut)
	require.NotNil(t, v.Quote)
	// 2000 × 2 nights = 4000, +10% tax, +5% service fee
	assert.True(t, v.Quote.Payable.Equal(domain.Rupees(4600)), v.Quote.Payable.String())
	assert.Nil(t, v.Availability)
}

func TestBookingStart_Defaults(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	v, err := b.Start(StartBooking{StoreID: "store-9", RoomID: "deluxe", BaseRate: domain.Rupees(1500)})
	require.NoError(t, err)

	assert.Equal(t, "2025-01-10", v.Draft.CheckIn)
	assert.Equal(t, "2025-01-11", v.Draft.CheckOut)
	assert.Equal(t, 1, v.Draft.Nights)
	assert.Equal(t, []int{1}, v.Draft.RoomsGuests)
}

func TestBookingStart_Validation(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)

	_, err := b.Start(StartBooking{RoomID: "deluxe"})
	require.Error(t, err)
	assert.Equal(t, "storeId", err.(*apperrors.AppError).Field)

	_, err = b.Start(StartBooking{StoreID: "s", RoomID: "r", CheckIn: "10/01/2025"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.Code(err))
}

func TestBookingSetDates_AutoAdvancesCheckout(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	startLakeView(t, b, []int{1})

	v, err := b.SetDates("2025-01-10", "2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-11", v.Draft.CheckOut)
	assert.Equal(t, 1, v.Draft.Nights)
}

func TestBookingGuests(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	startLakeView(t, b, []int{3})

	v, err := b.IncrementGuests(0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, v.Draft.RoomsGuests)

	v, err = b.DecrementGuests(1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, v.Draft.RoomsGuests)

	_, err = b.IncrementGuests(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBookingQuote_MattressSurcharge(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	startLakeView(t, b, []int{3, 3, 1})

	q, err := b.Quote()
	require.NoError(t, err)
	assert.Equal(t, 3, q.Rooms)
	// 2 mattresses × 300 × 2 nights
	assert.True(t, q.MattressFee.Equal(domain.Rupees(1200)))
}

func TestBookingCheckAvailability_Live(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Availability", mock.Anything, remote.AvailabilityQuery{
		StoreID: "store-9", RoomID: "deluxe", CheckIn: "2025-01-10", CheckOut: "2025-01-12", RoomsGuests: []int{2},
	}).Return(domain.Availability{
		Available: true, Base: domain.Rupees(1800), Nights: 2, Rooms: 1,
		Subtotal: domain.Rupees(3600), Taxes: domain.Rupees(360), Fees: domain.Rupees(180), Total: domain.Rupees(4140),
		RoomsGuests: []int{2}, PerRoomMax: 4, ExtraMattressAllowed: true,
	}, nil)

	b := newTestBookingFlow(backend, nil)
	startLakeView(t, b, []int{2})

	res, err := b.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Empty(t, res.Notice)
	assert.False(t, res.Availability.Estimated)

	sel := b.Selection()
	require.NotNil(t, sel)
	assert.True(t, sel.Priced())
	assert.True(t, sel.Availability.Total.Equal(domain.Rupees(4140)))
	assert.Equal(t, 4, b.View().Policy.MaxPerRoom)
	backend.AssertExpectations(t)
}

func TestBookingCheckAvailability_CapacityBlocksCall(t *testing.T) {
	backend := &mockBackend{}
	b := NewBookingFlow(backend, nil, BookingPolicy{Room: domain.RoomPolicy{MaxPerRoom: 3}}, testLogger())
	_, err := b.Start(StartBooking{StoreID: "store-9", RoomID: "deluxe", CheckIn: "2025-01-10", RoomsGuests: []int{3}})
	require.NoError(t, err)

	_, err = b.CheckAvailability(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCapacityExceeded, apperrors.Code(err))
	backend.AssertNotCalled(t, "Availability", mock.Anything, mock.Anything)
}

func TestBookingCheckAvailability_FallsBackToEstimate(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Availability", mock.Anything, mock.Anything).
		Return(domain.Availability{}, apperrors.RemoteUnavailable("down", errors.New("dial tcp")))
	announcer := &recordingAnnouncer{}

	b := newTestBookingFlow(backend, announcer)
	startLakeView(t, b, []int{2})

	res, err := b.CheckAvailability(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.Availability.Estimated)
	assert.True(t, res.Availability.Total.Equal(domain.Rupees(4600)))
	assert.Equal(t, EstimateNotice, res.Notice)
	assert.Equal(t, []string{EstimateNotice}, announcer.Messages())
}

func TestBookingCheckAvailability_StaleAnswerIsNotApplied(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &mockBackend{}
	backend.On("Availability", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(domain.Availability{Available: true, Total: domain.Rupees(4140), RoomsGuests: []int{2}}, nil).
		Once()

	b := newTestBookingFlow(backend, nil)
	startLakeView(t, b, []int{2})

	type outcome struct {
		res AvailabilityResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := b.CheckAvailability(context.Background())
		done <- outcome{res, err}
	}()

	<-started
	_, err := b.IncrementGuests(0)
	require.NoError(t, err)
	close(release)

	got := <-done
	require.NoError(t, got.err)
	assert.False(t, got.res.Applied)
	assert.Nil(t, b.View().Availability)
	assert.False(t, b.Selection().Priced())
}

func TestBookingEditInvalidatesAvailability(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Availability", mock.Anything, mock.Anything).
		Return(domain.Availability{Available: true, Total: domain.Rupees(4140), RoomsGuests: []int{2}}, nil)

	b := newTestBookingFlow(backend, nil)
	startLakeView(t, b, []int{2})
	_, err := b.CheckAvailability(context.Background())
	require.NoError(t, err)
	require.True(t, b.Selection().Priced())

	_, err = b.SetDates("2025-01-11", "2025-01-13")
	require.NoError(t, err)
	assert.False(t, b.Selection().Priced())
}

func TestBookingSelection_NilWithoutRoom(t *testing.T) {
	b := newTestBookingFlow(&mockBackend{}, nil)
	assert.Nil(t, b.Selection())

	startLakeView(t, b, []int{1})
	require.NotNil(t, b.Selection())

	b.Reset()
	assert.Nil(t, b.Selection())
}
