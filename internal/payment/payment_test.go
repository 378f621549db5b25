package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alien-id/miniapp-sdk/internal/bridge"
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
	"github.com/alien-id/miniapp-sdk/internal/transport"
)

func params() Params {
	return Params{
		Recipient: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Amount:    "1000000",
		Token:     "SOL",
		Network:   "solana",
		Invoice:   "inv-1",
	}
}

// scriptedHost answers payment requests the way a host honouring test
// scenarios would.
func scriptedHost(t *testing.T, version string) (*transport.MemoryEnv, *bridge.Bridge) {
	t.Helper()
	env := transport.NewMemoryEnv(nil)
	env.Handle(contract.MethodPaymentRequest, func(req protocol.Message) []protocol.Message {
		var p contract.PaymentRequest
		require.NoError(t, json.Unmarshal(req.Payload, &p))
		resp := Outcome(Scenario(p.Test))
		if resp.Status == contract.PaymentPaid {
			resp.TxHash = "tx-" + p.Invoice
		}
		resp.ReqID = protocol.ReqID(req.Payload)
		msg, err := protocol.BuildEvent(contract.EventPaymentResponse, resp)
		require.NoError(t, err)
		return []protocol.Message{msg}
	})
	b := bridge.New(env, bridge.WithContractVersion(version))
	t.Cleanup(b.Close)
	return env, b
}

func TestPayScenarios(t *testing.T) {
	cases := []struct {
		scenario Scenario
		status   Status
		txHash   string
		code     string
	}{
		{ScenarioPaid, StatusPaid, "tx-inv-1", ""},
		{ScenarioPaidFailed, StatusPaid, "tx-inv-1", ""},
		{ScenarioCancelled, StatusCancelled, "", ""},
		{ErrorScenario(contract.PaymentErrInsufficientBalance), StatusFailed, "", contract.PaymentErrInsufficientBalance},
		{ErrorScenario(contract.PaymentErrNetwork), StatusFailed, "", contract.PaymentErrNetwork},
	}
	for _, tc := range cases {
		t.Run(string(tc.scenario), func(t *testing.T) {
			_, b := scriptedHost(t, "1.1.0")
			c := New(b, WithTimeout(2*time.Second))

			p := params()
			p.Test = tc.scenario
			r, err := c.Pay(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tc.status, r.Status)
			assert.Equal(t, tc.txHash, r.TxHash)
			assert.Equal(t, tc.code, r.ErrorCode)
			assert.Equal(t, r, c.Last())
		})
	}
}

func TestPayCallbacks(t *testing.T) {
	_, b := scriptedHost(t, "1.1.0")
	var statuses []Status
	var paid string
	c := New(b, WithTimeout(2*time.Second), WithCallbacks(Callbacks{
		OnPaid:         func(tx string) { paid = tx },
		OnStatusChange: func(s Status) { statuses = append(statuses, s) },
	}))

	_, err := c.Pay(context.Background(), params())
	require.NoError(t, err)
	assert.Equal(t, "tx-inv-1", paid)
	assert.Equal(t, []Status{StatusLoading, StatusPaid}, statuses)

	c.Reset()
	assert.Equal(t, StatusIdle, c.Last().Status)
}

func TestPayRejectsInvalidParams(t *testing.T) {
	env, b := scriptedHost(t, "1.1.0")
	c := New(b)

	for name, mutate := range map[string]func(*Params){
		"no recipient":    func(p *Params) { p.Recipient = "" },
		"no invoice":      func(p *Params) { p.Invoice = "" },
		"garbage amount":  func(p *Params) { p.Amount = "lots" },
		"negative amount": func(p *Params) { p.Amount = "-5" },
		"fractional":      func(p *Params) { p.Amount = "1.5" },
		"bad scenario":    func(p *Params) { p.Test = "maybe" },
		"bad item":        func(p *Params) { p.Item = &contract.PaymentItem{Title: "x", Quantity: 0} },
	} {
		p := params()
		mutate(&p)
		r, err := c.Pay(context.Background(), p)
		assert.ErrorIs(t, err, ErrInvalidParams, name)
		assert.Equal(t, StatusFailed, r.Status, name)
		assert.Equal(t, contract.PaymentErrUnknown, r.ErrorCode, name)
	}
	assert.Empty(t, env.SentNamed(contract.MethodPaymentRequest))
}

func TestPayChecksCapabilities(t *testing.T) {
	env, b := scriptedHost(t, "0.1.0")
	c := New(b)
	assert.False(t, c.Supported())
	_, err := c.Pay(context.Background(), params())
	assert.ErrorIs(t, err, ErrUnsupported)

	// payments arrived in 0.1.1, test scenarios only in 0.1.2
	env, b = scriptedHost(t, "0.1.1")
	c = New(b, WithTimeout(2*time.Second))
	p := params()
	p.Test = ScenarioPaid
	_, err = c.Pay(context.Background(), p)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, env.SentNamed(contract.MethodPaymentRequest))

	r, err := c.Pay(context.Background(), params())
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, r.Status)
}

func TestPayWithoutBridge(t *testing.T) {
	env, b := scriptedHost(t, "1.1.0")
	env.SetNative(false)
	var failedCode string
	c := New(b, WithCallbacks(Callbacks{OnFailed: func(code string, err error) { failedCode = code }}))

	r, err := c.Pay(context.Background(), params())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, contract.PaymentErrUnknown, failedCode)
}

func TestPayTimeout(t *testing.T) {
	env := transport.NewMemoryEnv(nil)
	b := bridge.New(env)
	defer b.Close()
	c := New(b, WithTimeout(30*time.Millisecond))

	r, err := c.Pay(context.Background(), params())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, contract.PaymentErrUnknown, r.ErrorCode)
}

func TestScenario(t *testing.T) {
	code, ok := ErrorScenario("network_error").ErrorCode()
	assert.True(t, ok)
	assert.Equal(t, "network_error", code)
	assert.False(t, Scenario("error:").Valid())
	assert.True(t, ScenarioPaidFailed.Valid())
	assert.Equal(t, contract.PaymentErrUnknown, Outcome("error:").ErrorCode)
}
