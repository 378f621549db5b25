// Package wallet exposes the host's Solana wallet in the wallet-standard
// shape. Every operation is one correlated round trip through the bridge.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/request"
)

const (
	Name    = "Alien"
	Version = "1.0.0"

	// Timeout bounds every wallet round trip; the user may be looking at an
	// approval sheet.
	Timeout = 60 * time.Second

	EventChange = "change"

	SignatureTypeEd25519 = "ed25519"
)

// Requester is the slice of *bridge.Bridge the wallet needs.
type Requester interface {
	Request(ctx context.Context, method string, params any, responseEvent string, opts ...request.CallOption) (json.RawMessage, error)
	Send(method string, payload any) error
	IsAvailable() bool
}

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type ConnectInput struct {
	Silent bool
}

// Change is delivered to EventChange listeners.
type Change struct {
	Accounts []Account
}

type SignTransactionInput struct {
	Account     Account
	Transaction []byte
}

type SignTransactionOutput struct {
	SignedTransaction []byte
}

type SendOptions struct {
	SkipPreflight       *bool
	PreflightCommitment contract.SolanaCommitment
	Commitment          contract.SolanaCommitment
	MinContextSlot      *uint64
	MaxRetries          *uint
}

type SignAndSendInput struct {
	Account     Account
	Transaction []byte
	Chain       contract.SolanaChain
	Options     *SendOptions
}

type SignAndSendOutput struct {
	Signature solana.Signature
}

type SignMessageInput struct {
	Account Account
	Message []byte
}

type SignMessageOutput struct {
	SignedMessage []byte
	Signature     []byte
	SignatureType string
}

type Wallet struct {
	bridge  Requester
	log     zerolog.Logger
	timeout time.Duration

	group singleflight.Group

	mu        sync.Mutex
	state     State
	account   *Account
	nextID    uint64
	listeners map[uint64]func(Change)
	order     []uint64
}

type Option func(*Wallet)

func WithLogger(l zerolog.Logger) Option {
	return func(w *Wallet) {
		w.log = l
	}
}

// WithTimeout overrides Timeout for every wallet call.
func WithTimeout(d time.Duration) Option {
	return func(w *Wallet) {
		w.timeout = d
	}
}

func New(b Requester, opts ...Option) *Wallet {
	w := &Wallet{
		bridge:    b,
		log:       zerolog.Nop(),
		timeout:   Timeout,
		listeners: make(map[uint64]func(Change)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wallet) Name() string { return Name }

func (w *Wallet) Version() string { return Version }

func (w *Wallet) Chains() []contract.SolanaChain { return Chains }

// Features lists every feature the wallet implements, account level ones
// included.
func (w *Wallet) Features() []string {
	return append([]string{FeatureConnect, FeatureDisconnect, FeatureEvents}, accountFeatures...)
}

func (w *Wallet) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Accounts returns the connected account, or nothing once the bridge is gone.
func (w *Wallet) Accounts() []Account {
	w.refresh()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accountsLocked()
}

func (w *Wallet) accountsLocked() []Account {
	if w.account == nil {
		return []Account{}
	}
	return []Account{*w.account}
}

// On registers fn for event. The returned func unregisters it. Only
// EventChange is ever emitted.
func (w *Wallet) On(event string, fn func(Change)) func() {
	if event != EventChange {
		return func() {}
	}
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.listeners[id] = fn
	w.order = append(w.order, id)
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			for i, v := range w.order {
				if v == id {
					w.order = append(w.order[:i], w.order[i+1:]...)
					break
				}
			}
			w.mu.Unlock()
		})
	}
}

// notify calls listeners in registration order.
func (w *Wallet) notify(c Change) {
	w.mu.Lock()
	fns := make([]func(Change), 0, len(w.order))
	for _, id := range w.order {
		fns = append(fns, w.listeners[id])
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// refresh drops the tracked account when the host went away.
func (w *Wallet) refresh() {
	if w.bridge.IsAvailable() {
		return
	}
	w.mu.Lock()
	had := w.account != nil
	w.account = nil
	w.state = Disconnected
	w.mu.Unlock()
	if had {
		w.log.Info().Msg("bridge unavailable, account cleared")
		w.notify(Change{Accounts: []Account{}})
	}
}

// Connect returns the tracked account, asking the host for one when there
// is none. A silent connect never prompts and returns no accounts instead.
// Concurrent connects share a single host request, which outlives any one
// caller's ctx and is bounded by the wallet timeout.
func (w *Wallet) Connect(ctx context.Context, in ConnectInput) ([]Account, error) {
	w.refresh()

	w.mu.Lock()
	if w.account != nil {
		accounts := w.accountsLocked()
		w.mu.Unlock()
		return accounts, nil
	}
	w.mu.Unlock()
	if in.Silent {
		return []Account{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	shared := context.WithoutCancel(ctx)
	ch := w.group.DoChan("connect", func() (any, error) {
		return w.connect(shared)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connect: %w", context.Cause(ctx))
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return []Account{res.Val.(Account)}, nil
	}
}

func (w *Wallet) connect(ctx context.Context) (Account, error) {
	w.mu.Lock()
	if w.account != nil {
		acc := *w.account
		w.mu.Unlock()
		return acc, nil
	}
	w.state = Connecting
	w.mu.Unlock()

	res, err := w.call(ctx, contract.MethodWalletConnect, contract.Empty{}, contract.EventWalletConnectResponse)
	if err == nil && res.PublicKey == "" {
		err = internalError("no public key in connect response")
	}
	var acc Account
	if err == nil {
		acc, err = NewAccount(res.PublicKey)
		if err != nil {
			err = &Error{Code: InternalError, Message: err.Error()}
		}
	}
	if err != nil {
		w.mu.Lock()
		w.state = Disconnected
		w.mu.Unlock()
		return Account{}, err
	}

	w.mu.Lock()
	w.account = &acc
	w.state = Connected
	accounts := w.accountsLocked()
	w.mu.Unlock()

	w.log.Info().Str("address", acc.Address).Msg("wallet connected")
	w.notify(Change{Accounts: accounts})
	return acc, nil
}

// Disconnect tells the host and forgets the account. Listeners have been
// notified by the time it returns. Disconnecting while disconnected does
// nothing.
func (w *Wallet) Disconnect() error {
	w.mu.Lock()
	if w.account == nil {
		w.mu.Unlock()
		return nil
	}
	w.account = nil
	w.state = Disconnected
	w.mu.Unlock()

	err := w.bridge.Send(contract.MethodWalletDisconnect, contract.Empty{})
	if err != nil {
		w.log.Warn().Err(err).Msg("send disconnect failed")
	}
	w.notify(Change{Accounts: []Account{}})
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

func (w *Wallet) assertAccount(acc Account) error {
	w.refresh()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.account == nil || w.account.Address != acc.Address {
		return ErrAccountNotConnected
	}
	return nil
}

// call performs one wallet round trip and turns an errorCode in the result
// into *Error.
func (w *Wallet) call(ctx context.Context, method string, params any, responseEvent string) (contract.WalletResult, error) {
	var res contract.WalletResult
	raw, err := w.bridge.Request(ctx, method, params, responseEvent, request.WithTimeout(w.timeout))
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return res, internalError("decode %s: %v", responseEvent, err)
	}
	if res.ErrorCode != 0 {
		return res, &Error{Code: ErrorCode(res.ErrorCode), Message: res.ErrorMessage}
	}
	return res, nil
}

// SignTransaction asks the host to sign each serialized transaction without
// broadcasting it. Inputs are processed in order and the first failure
// aborts the batch.
func (w *Wallet) SignTransaction(ctx context.Context, inputs ...SignTransactionInput) ([]SignTransactionOutput, error) {
	out := make([]SignTransactionOutput, 0, len(inputs))
	for _, in := range inputs {
		if err := w.assertAccount(in.Account); err != nil {
			return nil, err
		}
		res, err := w.call(ctx, contract.MethodWalletSignTx,
			contract.WalletSignTransaction{Transaction: EncodeBase64(in.Transaction)},
			contract.EventWalletSignTxResponse)
		if err != nil {
			return nil, err
		}
		if res.SignedTransaction == "" {
			return nil, internalError("no signed transaction in response")
		}
		signed, err := DecodeBase64(res.SignedTransaction)
		if err != nil {
			return nil, internalError("decode signed transaction: %v", err)
		}
		out = append(out, SignTransactionOutput{SignedTransaction: signed})
	}
	return out, nil
}

// SignAndSendTransaction asks the host to sign and broadcast each
// transaction, returning the transaction signatures.
func (w *Wallet) SignAndSendTransaction(ctx context.Context, inputs ...SignAndSendInput) ([]SignAndSendOutput, error) {
	out := make([]SignAndSendOutput, 0, len(inputs))
	for _, in := range inputs {
		if err := w.assertAccount(in.Account); err != nil {
			return nil, err
		}
		if in.Chain != "" && !isChain(in.Chain) {
			return nil, &Error{Code: UnsupportedChains, Message: fmt.Sprintf("unsupported chain %q", in.Chain)}
		}
		params := contract.WalletSignAndSend{
			Transaction: EncodeBase64(in.Transaction),
			Chain:       in.Chain,
		}
		if o := in.Options; o != nil {
			params.Options = &contract.WalletSendOptions{
				SkipPreflight:       o.SkipPreflight,
				PreflightCommitment: o.PreflightCommitment,
				Commitment:          o.Commitment,
				MinContextSlot:      o.MinContextSlot,
				MaxRetries:          o.MaxRetries,
			}
		}
		res, err := w.call(ctx, contract.MethodWalletSignAndSend, params, contract.EventWalletSignSendResponse)
		if err != nil {
			return nil, err
		}
		if res.Signature == "" {
			return nil, internalError("no signature in response")
		}
		sig, err := solana.SignatureFromBase58(res.Signature)
		if err != nil {
			return nil, internalError("decode signature: %v", err)
		}
		out = append(out, SignAndSendOutput{Signature: sig})
	}
	return out, nil
}

// SignMessage asks the host to sign arbitrary bytes with the account key.
func (w *Wallet) SignMessage(ctx context.Context, inputs ...SignMessageInput) ([]SignMessageOutput, error) {
	out := make([]SignMessageOutput, 0, len(inputs))
	for _, in := range inputs {
		if err := w.assertAccount(in.Account); err != nil {
			return nil, err
		}
		res, err := w.call(ctx, contract.MethodWalletSignMessage,
			contract.WalletSignMessage{Message: EncodeBase58(in.Message)},
			contract.EventWalletSignMsgResponse)
		if err != nil {
			return nil, err
		}
		if res.Signature == "" || res.PublicKey == "" {
			return nil, internalError("no signature or public key in response")
		}
		sig, err := DecodeBase58(res.Signature)
		if err != nil {
			return nil, internalError("decode signature: %v", err)
		}
		out = append(out, SignMessageOutput{
			SignedMessage: in.Message,
			Signature:     sig,
			SignatureType: SignatureTypeEd25519,
		})
	}
	return out, nil
}
