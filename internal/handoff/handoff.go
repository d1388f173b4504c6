// Package handoff builds the platform-specific activation payloads that
// delegate tender capture to the external Square Point of Sale app, and
// normalizes the asynchronous results the app sends back.
package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Platform int

const (
	PlatformDesktop Platform = iota
	PlatformAndroid
	PlatformIOS
)

func (p Platform) String() string {
	switch p {
	case PlatformAndroid:
		return "android"
	case PlatformIOS:
		return "ios"
	default:
		return "desktop"
	}
}

var (
	ErrInvalidAmount        = errors.New("hand-off amount must be at least 1 minor unit")
	ErrInvalidCurrency      = errors.New("currency must be a 3-letter ISO 4217 code")
	ErrPlatformUnsupported  = errors.New("platform does not support the point of sale app")
	ErrUnknownCallbackShape = errors.New("unknown callback format")
)

// Detector picks the platform target once per invocation. Injected so the
// branching stays testable without a real browser.
type Detector interface {
	Detect(userAgent string) Platform
}

// UserAgentDetector classifies the requesting device from its User-Agent
// string, mirroring the usual mobile-web sniffing heuristics.
type UserAgentDetector struct{}

func (UserAgentDetector) Detect(userAgent string) Platform {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"):
		return PlatformAndroid
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return PlatformIOS
	default:
		return PlatformDesktop
	}
}

// ChargeRequest is a ready-to-launch activation payload for one platform.
// Exactly one encoding is ever produced per invocation.
type ChargeRequest struct {
	HandoffID   string
	Platform    Platform
	LaunchURL   string
	AmountCents int64
	Currency    string
}

type Adapter struct {
	applicationID string
	callbackURL   string
	detector      Detector
	registry      *Registry
}

func NewAdapter(applicationID string, callbackURL string, detector Detector) *Adapter {
	if detector == nil {
		detector = UserAgentDetector{}
	}
	return &Adapter{
		applicationID: applicationID,
		callbackURL:   callbackURL,
		detector:      detector,
		registry:      NewRegistry(),
	}
}

// Build validates the amount and currency, picks a platform target from the
// user agent, registers a pending hand-off so the eventual callback can be
// bound to this amount, and returns the activation payload. The adapter never
// commits sales itself; the caller forwards the resulting payment reference.
func (a *Adapter) Build(amountCents int64, currencyCode string, userAgent string) (*ChargeRequest, error) {
	if amountCents < 1 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(currencyCode))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 || strings.IndexFunc(currency, notAlpha) >= 0 {
		return nil, ErrInvalidCurrency
	}

	platform := a.detector.Detect(userAgent)
	if platform == PlatformDesktop {
		return nil, ErrPlatformUnsupported
	}

	pending := a.registry.Register(amountCents, currency)
	callback := a.callbackURLFor(pending.ID)

	var launchURL string
	switch platform {
	case PlatformAndroid:
		launchURL = a.androidChargeURL(amountCents, currency, callback)
	case PlatformIOS:
		var err error
		launchURL, err = a.iosChargeURL(amountCents, currency, callback)
		if err != nil {
			a.registry.Discard(pending.ID)
			return nil, err
		}
	}

	return &ChargeRequest{
		HandoffID:   pending.ID,
		Platform:    platform,
		LaunchURL:   launchURL,
		AmountCents: amountCents,
		Currency:    currency,
	}, nil
}

// Resolve binds a normalized callback result to the hand-off it belongs to,
// at most once. The second delivery for the same id reports ok=false.
func (a *Adapter) Resolve(handoffID string, result Result) (Pending, bool) {
	return a.registry.Resolve(handoffID, result)
}

// Discard drops a pending hand-off, e.g. when the operator clears the cart
// before the external app reports back. A later callback for the id is then
// ignored.
func (a *Adapter) Discard(handoffID string) {
	a.registry.Discard(handoffID)
}

func (a *Adapter) callbackURLFor(handoffID string) string {
	separator := "?"
	if strings.Contains(a.callbackURL, "?") {
		separator = "&"
	}
	return a.callbackURL + separator + "handoff_id=" + url.QueryEscape(handoffID)
}

// androidChargeURL builds the intent URL consumed by the Android Point of
// Sale app. The key set follows the provider's documented CHARGE action.
func (a *Adapter) androidChargeURL(amountCents int64, currency string, callback string) string {
	tenderTypes := strings.Join([]string{
		"com.squareup.pos.TENDER_CARD",
		"com.squareup.pos.TENDER_CARD_ON_FILE",
		"com.squareup.pos.TENDER_CASH",
		"com.squareup.pos.TENDER_OTHER",
	}, ", ")

	return "intent:#Intent;" +
		"action=com.squareup.pos.action.CHARGE;" +
		"package=com.squareup;" +
		"S.com.squareup.pos.WEB_CALLBACK_URI=" + callback + ";" +
		"S.com.squareup.pos.CLIENT_ID=" + a.applicationID + ";" +
		"S.com.squareup.pos.API_VERSION=v2.0;" +
		fmt.Sprintf("i.com.squareup.pos.TOTAL_AMOUNT=%d;", amountCents) +
		"S.com.squareup.pos.CURRENCY_CODE=" + currency + ";" +
		"S.com.squareup.pos.TENDER_TYPES=" + tenderTypes + ";" +
		"end"
}

// iosChargeURL builds the square-commerce-v1 URL scheme payload used on iOS,
// which carries a JSON document in the data query parameter.
func (a *Adapter) iosChargeURL(amountCents int64, currency string, callback string) (string, error) {
	payload := map[string]any{
		"amount_money": map[string]any{
			"amount":        amountCents,
			"currency_code": currency,
		},
		"callback_url": callback,
		"client_id":    a.applicationID,
		"version":      "1.3",
		"notes":        "POS Transaction",
		"options": map[string]any{
			"supported_tender_types": []string{
				"CREDIT_CARD",
				"CASH",
				"OTHER",
				"SQUARE_GIFT_CARD",
				"CARD_ON_FILE",
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return "square-commerce-v1://payment/create?data=" + url.QueryEscape(string(data)), nil
}

func notAlpha(r rune) bool {
	return r < 'A' || r > 'Z'
}
