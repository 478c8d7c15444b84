package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	"github.com/sonic7adarsh/bharatapp/internal/storage"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// MaxSavedAddresses caps the saved address book.
const MaxSavedAddresses = 10

// PreferencesView is every stored preference at once.
type PreferencesView struct {
	SavedAddresses     []domain.Address      `json:"savedAddresses"`
	Promo              string                `json:"promo,omitempty"`
	CheckoutMethod     domain.CheckoutMethod `json:"checkoutMethod"`
	AllowSubstitutions bool                  `json:"allowSubstitutions"`
	UserCity           string                `json:"userCity,omitempty"`
}

// PreferencesUpdate changes the preferences whose fields are set.
type PreferencesUpdate struct {
	Promo              *string                `json:"promo"`
	CheckoutMethod     *domain.CheckoutMethod `json:"checkoutMethod"`
	AllowSubstitutions *bool                  `json:"allowSubstitutions"`
	UserCity           *string                `json:"userCity"`
	SaveAddress        *domain.Address        `json:"saveAddress"`
}

// Preferences are the small per-session settings that outlive a checkout.
// Reads never fail: missing or unreadable values give the defaults.
type Preferences struct {
	session   string
	store     storage.Store
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewPreferences creates the accessor for session.
func NewPreferences(session string, store storage.Store, sanitizer *bluemonday.Policy, logger *slog.Logger) *Preferences {
	return &Preferences{session: session, store: store, sanitizer: sanitizer, logger: logger}
}

// SavedAddresses returns the address book, most recent first.
func (p *Preferences) SavedAddresses(ctx context.Context) []domain.Address {
	return storage.Load(ctx, p.store, p.session, storage.KeySavedAddresses, []domain.Address{}, p.logger)
}

// SaveAddress validates addr and puts it at the front of the address book.
// An address with the same label, or the same phone and pincode, is replaced.
func (p *Preferences) SaveAddress(ctx context.Context, addr domain.Address) ([]domain.Address, error) {
	addr = addr.Normalized(p.sanitizer)
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	book := []domain.Address{addr}
	for _, a := range p.SavedAddresses(ctx) {
		if sameAddress(a, addr) {
			continue
		}
		book = append(book, a)
	}
	if len(book) > MaxSavedAddresses {
		book = book[:MaxSavedAddresses]
	}

	if err := storage.Save(ctx, p.store, p.session, storage.KeySavedAddresses, book); err != nil {
		return nil, err
	}
	return book, nil
}

func sameAddress(a, b domain.Address) bool {
	if a.Label != "" && strings.EqualFold(a.Label, b.Label) {
		return true
	}
	return a.Phone == b.Phone && a.Pincode == b.Pincode && strings.EqualFold(a.Line1, b.Line1)
}

// Promo returns the remembered promo code.
func (p *Preferences) Promo(ctx context.Context) string {
	return storage.Load(ctx, p.store, p.session, storage.KeyPromo, "", p.logger)
}

// SetPromo remembers code. An empty code forgets it.
func (p *Preferences) SetPromo(ctx context.Context, code string) error {
	code = domain.NormalizeCode(code)
	if code == "" {
		return p.store.Delete(ctx, p.session, storage.KeyPromo)
	}
	return storage.Save(ctx, p.store, p.session, storage.KeyPromo, code)
}

// CheckoutMethod returns the remembered method, delivery by default.
func (p *Preferences) CheckoutMethod(ctx context.Context) domain.CheckoutMethod {
	m := storage.Load(ctx, p.store, p.session, storage.KeyCheckoutMethod, domain.MethodDelivery, p.logger)
	if m != domain.MethodPickup {
		return domain.MethodDelivery
	}
	return m
}

// SetCheckoutMethod remembers m.
func (p *Preferences) SetCheckoutMethod(ctx context.Context, m domain.CheckoutMethod) error {
	if m != domain.MethodDelivery && m != domain.MethodPickup {
		return apperrors.Validation("checkout method must be delivery or pickup").WithField("checkoutMethod")
	}
	return storage.Save(ctx, p.store, p.session, storage.KeyCheckoutMethod, m)
}

// AllowSubstitutions returns whether the shopper accepts substitutes. It
// defaults to true.
func (p *Preferences) AllowSubstitutions(ctx context.Context) bool {
	return storage.Load(ctx, p.store, p.session, storage.KeyAllowSubstitutions, true, p.logger)
}

// SetAllowSubstitutions remembers allow.
func (p *Preferences) SetAllowSubstitutions(ctx context.Context, allow bool) error {
	return storage.Save(ctx, p.store, p.session, storage.KeyAllowSubstitutions, allow)
}

// UserCity returns the city the shopper picked.
func (p *Preferences) UserCity(ctx context.Context) string {
	return storage.Load(ctx, p.store, p.session, storage.KeyUserCity, "", p.logger)
}

// SetUserCity remembers city.
func (p *Preferences) SetUserCity(ctx context.Context, city string) error {
	city = strings.TrimSpace(city)
	if p.sanitizer != nil {
		city = strings.TrimSpace(p.sanitizer.Sanitize(city))
	}
	return storage.Save(ctx, p.store, p.session, storage.KeyUserCity, city)
}

// View reads every preference.
func (p *Preferences) View(ctx context.Context) PreferencesView {
	return PreferencesView{
		SavedAddresses:     p.SavedAddresses(ctx),
		Promo:              p.Promo(ctx),
		CheckoutMethod:     p.CheckoutMethod(ctx),
		AllowSubstitutions: p.AllowSubstitutions(ctx),
		UserCity:           p.UserCity(ctx),
	}
}

// Update applies u field by field and stops at the first failure.
func (p *Preferences) Update(ctx context.Context, u PreferencesUpdate) (PreferencesView, error) {
	if u.SaveAddress != nil {
		if _, err := p.SaveAddress(ctx, *u.SaveAddress); err != nil {
			return PreferencesView{}, err
		}
	}
	if u.Promo != nil {
		if err := p.SetPromo(ctx, *u.Promo); err != nil {
			return PreferencesView{}, err
		}
	}
	if u.CheckoutMethod != nil {
		if err := p.SetCheckoutMethod(ctx, *u.CheckoutMethod); err != nil {
			return PreferencesView{}, err
		}
	}
	if u.AllowSubstitutions != nil {
		if err := p.SetAllowSubstitutions(ctx, *u.AllowSubstitutions); err != nil {
			return PreferencesView{}, err
		}
	}
	if u.UserCity != nil {
		if err := p.SetUserCity(ctx, *u.UserCity); err != nil {
			return PreferencesView{}, err
		}
	}
	return p.View(ctx), nil
}
