package host

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alien-id/miniapp-sdk/internal/bridge"
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/payment"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
	"github.com/alien-id/miniapp-sdk/internal/request"
	"github.com/alien-id/miniapp-sdk/internal/store"
	"github.com/alien-id/miniapp-sdk/internal/transport"
	"github.com/alien-id/miniapp-sdk/internal/wallet"
)

type harness struct {
	hub    *Hub
	device *Device
	wallet *Wallet
	env    *transport.WebSocketEnv
	bridge *bridge.Bridge
}

func newHarness(t *testing.T, version string, walletOpts ...WalletOption) *harness {
	t.Helper()
	hub := NewHub(store.NewMemoryStore(), WithAuthToken("secret"))
	device := NewDevice(hub.log)
	device.Register(hub)
	w, err := NewWallet("", walletOpts...)
	require.NoError(t, err)
	w.Register(hub)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleMiniapp))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := transport.DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "secret", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	b := bridge.New(env, bridge.WithContractVersion(version), bridge.WithTimeout(2*time.Second))
	t.Cleanup(b.Close)
	require.Eventually(t, func() bool { return hub.Conns() == 1 }, time.Second, time.Millisecond)
	return &harness{hub: hub, device: device, wallet: w, env: env, bridge: b}
}

func TestRejectsMissingToken(t *testing.T) {
	hub := NewHub(store.NewMemoryStore(), WithAuthToken("secret"))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleMiniapp))
	defer srv.Close()

	_, err := transport.DialWebSocket(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), "wrong", nil)
	assert.Error(t, err)
	assert.Zero(t, hub.Conns())
}

func TestWalletConnectAndSignMessage(t *testing.T) {
	h := newHarness(t, "1.1.0")
	w := wallet.New(h.bridge, wallet.WithTimeout(2*time.Second))

	accounts, err := w.Connect(context.Background(), wallet.ConnectInput{})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, h.wallet.PublicKey(), accounts[0].PublicKey)

	out, err := w.SignMessage(context.Background(), wallet.SignMessageInput{Account: accounts[0], Message: []byte("gm")})
	require.NoError(t, err)
	pub := h.wallet.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), []byte("gm"), out[0].Signature))

	require.NoError(t, w.Disconnect())
	assert.Empty(t, w.Accounts())
}

func unsignedTransfer(t *testing.T, from solana.PublicKey) []byte {
	t.Helper()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, to).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestWalletSignsTransactions(t *testing.T) {
	h := newHarness(t, "1.1.0")
	w := wallet.New(h.bridge, wallet.WithTimeout(2*time.Second))
	accounts, err := w.Connect(context.Background(), wallet.ConnectInput{})
	require.NoError(t, err)
	acc := accounts[0]

	out, err := w.SignTransaction(context.Background(), wallet.SignTransactionInput{
		Account:     acc,
		Transaction: unsignedTransfer(t, acc.PublicKey),
	})
	require.NoError(t, err)

	signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(out[0].SignedTransaction))
	require.NoError(t, err)
	content, err := signed.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(acc.PublicKey[:]), content, signed.Signatures[0][:]))

	sent, err := w.SignAndSendTransaction(context.Background(), wallet.SignAndSendInput{
		Account:     acc,
		Transaction: unsignedTransfer(t, acc.PublicKey),
		Chain:       contract.SolanaDevnet,
	})
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, sent[0].Signature)
}

func TestWalletRejectsForeignSigner(t *testing.T) {
	h := newHarness(t, "1.1.0")
	w := wallet.New(h.bridge, wallet.WithTimeout(2*time.Second))
	accounts, err := w.Connect(context.Background(), wallet.ConnectInput{})
	require.NoError(t, err)

	_, err = w.SignTransaction(context.Background(), wallet.SignTransactionInput{
		Account:     accounts[0],
		Transaction: unsignedTransfer(t, solana.NewWallet().PublicKey()),
	})
	assert.ErrorIs(t, err, &wallet.Error{Code: wallet.InvalidParams})
}

func TestAutoRejectReportsUserRejection(t *testing.T) {
	h := newHarness(t, "1.1.0", WithAutoReject(true))
	w := wallet.New(h.bridge, wallet.WithTimeout(2*time.Second))

	_, err := w.Connect(context.Background(), wallet.ConnectInput{})
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
}

func TestDeviceFeatures(t *testing.T) {
	h := newHarness(t, "1.1.0")
	ctx := context.Background()

	require.NoError(t, h.bridge.Ready())
	require.NoError(t, h.bridge.SetBackButtonVisible(true))
	require.NoError(t, h.bridge.WriteClipboard("copied"))
	require.NoError(t, h.bridge.OpenLink("https://example.com/x", contract.OpenExternal))

	text, err := h.bridge.ReadClipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "copied", text)
	assert.True(t, h.device.Ready())
	assert.True(t, h.device.BackButtonVisible())
	assert.Equal(t, []string{"https://example.com/x"}, h.device.Opened())

	h.device.DenyClipboard(true)
	_, err = h.bridge.ReadClipboard(ctx)
	var ce *bridge.ClipboardError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, contract.ClipboardPermissionDenied, ce.Code)

	changed := make(chan bool, 1)
	h.bridge.OnFullscreenChanged(func(on bool) { changed <- on })
	require.NoError(t, h.bridge.RequestFullscreen())
	select {
	case on := <-changed:
		assert.True(t, on)
	case <-time.After(2 * time.Second):
		t.Fatal("no fullscreen:changed")
	}
}

func TestPaymentThroughHost(t *testing.T) {
	h := newHarness(t, "1.1.0")
	c := payment.New(h.bridge, payment.WithTimeout(2*time.Second))

	p := payment.Params{Recipient: "r", Amount: "10", Token: "SOL", Network: "solana", Invoice: "inv-9"}
	r, err := c.Pay(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, r.Status)
	assert.NotEmpty(t, r.TxHash)

	p.Invoice = "inv-10"
	p.Test = payment.ErrorScenario(contract.PaymentErrPreCheckoutRejected)
	r, err = c.Pay(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, r.Status)
	assert.Equal(t, contract.PaymentErrPreCheckoutRejected, r.ErrorCode)
}

func TestRepeatedRequestIsReplayed(t *testing.T) {
	h := newHarness(t, "")
	var calls atomic.Int32
	h.hub.Handle("counter:next", func(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
		n := calls.Add(1)
		return reply("counter:value", map[string]any{"reqId": protocol.ReqID(req.Payload), "n": n})
	})

	first, err := h.bridge.Request(context.Background(), "counter:next", nil, "counter:value", request.WithReqID("same"))
	require.NoError(t, err)
	second, err := h.bridge.Request(context.Background(), "counter:next", nil, "counter:value", request.WithReqID("same"))
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.EqualValues(t, 1, calls.Load())
}

func TestHandlerErrorBecomesResponse(t *testing.T) {
	h := newHarness(t, "")
	h.hub.Handle("broken", func(context.Context, protocol.Message) ([]protocol.Message, error) {
		return nil, errors.New("kaput")
	})

	_, err := h.bridge.Request(context.Background(), "broken", nil, "broken.done")
	var he *request.HostError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "kaput", he.Message)
}

func TestBroadcastReachesMiniapps(t *testing.T) {
	h := newHarness(t, "1.1.0")
	closed := make(chan struct{}, 1)
	h.bridge.OnClose(func() { closed <- struct{}{} })

	require.NoError(t, h.hub.Broadcast(contract.EventClose, contract.Empty{}))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("miniapp:close not delivered")
	}
}
