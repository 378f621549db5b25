// Package payment drives the host's payment approval flow and reports how it
// ended.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alien-id/miniapp-sdk/internal/capability"
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/request"
)

// Timeout leaves room for the user to review and approve on the host.
const Timeout = 120 * time.Second

// VariantTest is the capability variant covering test scenarios.
const VariantTest = "test"

var (
	ErrInvalidParams = errors.New("invalid payment params")
	ErrUnsupported   = errors.New("payment not supported by host")
	ErrUnavailable   = errors.New("bridge unavailable")
)

// Scenario simulates a payment outcome without a real transaction.
type Scenario string

const (
	ScenarioPaid       Scenario = "paid"
	ScenarioPaidFailed Scenario = "paid:failed"
	ScenarioCancelled  Scenario = "cancelled"
)

const errorScenarioPrefix = "error:"

// ErrorScenario simulates a pre-broadcast failure with code.
func ErrorScenario(code string) Scenario { return Scenario(errorScenarioPrefix + code) }

// ErrorCode returns the code of an error:* scenario.
func (s Scenario) ErrorCode() (string, bool) {
	code, ok := strings.CutPrefix(string(s), errorScenarioPrefix)
	return code, ok && code != ""
}

func (s Scenario) Valid() bool {
	switch s {
	case ScenarioPaid, ScenarioPaidFailed, ScenarioCancelled:
		return true
	}
	_, ok := s.ErrorCode()
	return ok
}

// Params describe one payment. Amount is in the token's smallest unit.
type Params struct {
	Recipient string
	Amount    string
	Token     string
	Network   string
	Invoice   string
	Item      *contract.PaymentItem
	Test      Scenario
}

// Status extends the host's outcome with the local idle and loading states.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusPaid      Status = Status(contract.PaymentPaid)
	StatusCancelled Status = Status(contract.PaymentCancelled)
	StatusFailed    Status = Status(contract.PaymentFailed)
)

type Result struct {
	Status    Status
	TxHash    string
	ErrorCode string
	// Err is set when the payment failed on this side of the bridge.
	Err error
}

// Requester is the slice of *bridge.Bridge payments need.
type Requester interface {
	Request(ctx context.Context, method string, params any, responseEvent string, opts ...request.CallOption) (json.RawMessage, error)
	IsAvailable() bool
	ContractVersion() string
}

type Callbacks struct {
	OnPaid         func(txHash string)
	OnCancelled    func()
	OnFailed       func(code string, err error)
	OnStatusChange func(Status)
}

type Client struct {
	bridge    Requester
	registry  *capability.Registry
	validate  *validator.Validate
	log       zerolog.Logger
	timeout   time.Duration
	callbacks Callbacks

	mu   sync.Mutex
	last Result
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithRegistry(r *capability.Registry) Option {
	return func(c *Client) {
		c.registry = r
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) {
		c.callbacks = cb
	}
}

func New(b Requester, opts ...Option) *Client {
	c := &Client{
		bridge:   b,
		registry: capability.Default(),
		validate: validator.New(),
		log:      zerolog.Nop(),
		timeout:  Timeout,
		last:     Result{Status: StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether the host can take payment requests at all.
func (c *Client) Supported() bool {
	return c.registry.IsMethodSupported(contract.MethodPaymentRequest, c.bridge.ContractVersion())
}

// Last returns the most recent result, StatusIdle before any payment.
func (c *Client) Last() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Client) Reset() { c.update(Result{Status: StatusIdle}) }

func (c *Client) update(r Result) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
	if fn := c.callbacks.OnStatusChange; fn != nil {
		fn(r.Status)
	}
}

// Validate checks p without contacting the host.
func (c *Client) Validate(p Params) error {
	req := p.request()
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.Item != nil {
		if err := c.validate.Struct(p.Item); err != nil {
			return fmt.Errorf("%w: item: %v", ErrInvalidParams, err)
		}
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount %q: %v", ErrInvalidParams, p.Amount, err)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return fmt.Errorf("%w: amount %q must be a positive whole number of base units", ErrInvalidParams, p.Amount)
	}
	if p.Test != "" && !p.Test.Valid() {
		return fmt.Errorf("%w: unknown test scenario %q", ErrInvalidParams, p.Test)
	}
	return nil
}

func (p Params) request() contract.PaymentRequest {
	return contract.PaymentRequest{
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Token:     p.Token,
		Network:   p.Network,
		Invoice:   p.Invoice,
		Item:      p.Item,
		Test:      string(p.Test),
	}
}

// Pay asks the host to perform p and waits for the outcome. A cancelled or
// failed payment reported by the host is a Result, not an error; the error
// return is reserved for failures before or during the round trip, which
// are also reported as StatusFailed with code unknown.
func (c *Client) Pay(ctx context.Context, p Params) (Result, error) {
	if err := c.precheck(p); err != nil {
		return c.fail(contract.PaymentErrUnknown, err), err
	}

	c.update(Result{Status: StatusLoading})
	log := c.log.With().Str("invoice", p.Invoice).Logger()
	log.Debug().Str("amount", p.Amount).Str("token", p.Token).Msg("payment requested")

	raw, err := c.bridge.Request(ctx, contract.MethodPaymentRequest, p.request(), contract.EventPaymentResponse, request.WithTimeout(c.timeout))
	if err != nil {
		log.Warn().Err(err).Msg("payment request failed")
		err = fmt.Errorf("payment %s: %w", p.Invoice, err)
		return c.fail(contract.PaymentErrUnknown, err), err
	}
	var resp contract.PaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		err = fmt.Errorf("payment %s: decode response: %w", p.Invoice, err)
		return c.fail(contract.PaymentErrUnknown, err), err
	}

	switch resp.Status {
	case contract.PaymentPaid:
		r := Result{Status: StatusPaid, TxHash: resp.TxHash}
		c.update(r)
		log.Info().Str("tx_hash", resp.TxHash).Msg("payment paid")
		if fn := c.callbacks.OnPaid; fn != nil {
			fn(resp.TxHash)
		}
		return r, nil
	case contract.PaymentCancelled:
		r := Result{Status: StatusCancelled}
		c.update(r)
		log.Info().Msg("payment cancelled")
		if fn := c.callbacks.OnCancelled; fn != nil {
			fn()
		}
		return r, nil
	default:
		code := resp.ErrorCode
		if code == "" {
			code = contract.PaymentErrUnknown
		}
		log.Info().Str("error_code", code).Msg("payment failed")
		return c.fail(code, nil), nil
	}
}

func (c *Client) precheck(p Params) error {
	if !c.bridge.IsAvailable() {
		return ErrUnavailable
	}
	version := c.bridge.ContractVersion()
	if !c.Supported() {
		minV, _ := c.registry.MinVersion(contract.MethodPaymentRequest)
		return fmt.Errorf("%w: %s needs %s, host has %s", ErrUnsupported, contract.MethodPaymentRequest, minV, version)
	}
	if p.Test != "" && !c.registry.IsVariantSupported(contract.MethodPaymentRequest, VariantTest, version) {
		minV, _ := c.registry.VariantMinVersion(contract.MethodPaymentRequest, VariantTest)
		return fmt.Errorf("%w: test payments need %s, host has %s", ErrUnsupported, minV, version)
	}
	return c.Validate(p)
}

func (c *Client) fail(code string, err error) Result {
	r := Result{Status: StatusFailed, ErrorCode: code, Err: err}
	c.update(r)
	if fn := c.callbacks.OnFailed; fn != nil {
		fn(code, err)
	}
	return r
}

// Outcome maps a test scenario to the response a host reports for it.
func Outcome(s Scenario) contract.PaymentResponse {
	switch s {
	case ScenarioPaid, ScenarioPaidFailed:
		return contract.PaymentResponse{Status: contract.PaymentPaid}
	case ScenarioCancelled:
		return contract.PaymentResponse{Status: contract.PaymentCancelled}
	}
	code, ok := s.ErrorCode()
	if !ok {
		code = contract.PaymentErrUnknown
	}
	return contract.PaymentResponse{Status: contract.PaymentFailed, ErrorCode: code}
}
