package host

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

// Codes reported in contract.WalletResult.ErrorCode.
const (
	codeUserRejected      = 5000
	codeUnsupportedChains = 5100
	codeInvalidParams     = -32602
	codeInternalError     = -32603
)

// Wallet signs with a local key in place of the host's wallet. When an RPC
// client is set, sign.send also broadcasts.
type Wallet struct {
	key        solana.PrivateKey
	rpc        *rpc.Client
	autoReject bool
	log        zerolog.Logger
}

type WalletOption func(*Wallet)

func WithWalletLogger(l zerolog.Logger) WalletOption {
	return func(w *Wallet) {
		w.log = l
	}
}

// WithRPC broadcasts signed transactions to the cluster at url.
func WithRPC(url string) WalletOption {
	return func(w *Wallet) {
		if url != "" {
			w.rpc = rpc.New(url)
		}
	}
}

// WithAutoReject makes every prompt answer as if the user declined.
func WithAutoReject(reject bool) WalletOption {
	return func(w *Wallet) {
		w.autoReject = reject
	}
}

// NewWallet loads a base58 private key, or generates one when privateKey is
// empty.
func NewWallet(privateKey string, opts ...WalletOption) (*Wallet, error) {
	var key solana.PrivateKey
	var err error
	if privateKey == "" {
		key, err = solana.NewRandomPrivateKey()
	} else {
		key, err = solana.PrivateKeyFromBase58(privateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet key: %w", err)
	}
	w := &Wallet{key: key, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Wallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

// Register installs the wallet methods on h.
func (w *Wallet) Register(h *Hub) {
	h.Handle(contract.MethodWalletConnect, w.connect)
	h.Handle(contract.MethodWalletDisconnect, w.disconnect)
	h.Handle(contract.MethodWalletSignMessage, w.signMessage)
	h.Handle(contract.MethodWalletSignTx, w.signTransaction)
	h.Handle(contract.MethodWalletSignAndSend, w.signAndSend)
}

func walletReply(event string, req protocol.Message, res contract.WalletResult) ([]protocol.Message, error) {
	res.ReqID = protocol.ReqID(req.Payload)
	return reply(event, res)
}

func walletFail(event string, req protocol.Message, code int, format string, args ...any) ([]protocol.Message, error) {
	return walletReply(event, req, contract.WalletResult{ErrorCode: code, ErrorMessage: fmt.Sprintf(format, args...)})
}

func (w *Wallet) connect(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	if w.autoReject {
		return walletFail(contract.EventWalletConnectResponse, req, codeUserRejected, "user rejected")
	}
	w.log.Info().Str("public_key", w.PublicKey().String()).Msg("wallet connect approved")
	return walletReply(contract.EventWalletConnectResponse, req, contract.WalletResult{PublicKey: w.PublicKey().String()})
}

func (w *Wallet) disconnect(context.Context, protocol.Message) ([]protocol.Message, error) {
	w.log.Info().Msg("wallet disconnected")
	return nil, nil
}

func (w *Wallet) signMessage(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	const event = contract.EventWalletSignMsgResponse
	if w.autoReject {
		return walletFail(event, req, codeUserRejected, "user rejected")
	}
	var p contract.WalletSignMessage
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return walletFail(event, req, codeInvalidParams, "decode params: %v", err)
	}
	msg, err := base58.Decode(p.Message)
	if err != nil && p.Message != "" {
		return walletFail(event, req, codeInvalidParams, "message is not base58: %v", err)
	}
	sig, err := w.key.Sign(msg)
	if err != nil {
		return walletFail(event, req, codeInternalError, "sign: %v", err)
	}
	return walletReply(event, req, contract.WalletResult{Signature: sig.String(), PublicKey: w.PublicKey().String()})
}

func (w *Wallet) signTransaction(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	const event = contract.EventWalletSignTxResponse
	if w.autoReject {
		return walletFail(event, req, codeUserRejected, "user rejected")
	}
	var p contract.WalletSignTransaction
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return walletFail(event, req, codeInvalidParams, "decode params: %v", err)
	}
	tx, code, err := w.sign(p.Transaction)
	if err != nil {
		return walletFail(event, req, code, "%v", err)
	}
	out, err := tx.MarshalBinary()
	if err != nil {
		return walletFail(event, req, codeInternalError, "encode transaction: %v", err)
	}
	return walletReply(event, req, contract.WalletResult{SignedTransaction: base64.StdEncoding.EncodeToString(out)})
}

func (w *Wallet) signAndSend(ctx context.Context, req protocol.Message) ([]protocol.Message, error) {
	const event = contract.EventWalletSignSendResponse
	if w.autoReject {
		return walletFail(event, req, codeUserRejected, "user rejected")
	}
	var p contract.WalletSignAndSend
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return walletFail(event, req, codeInvalidParams, "decode params: %v", err)
	}
	switch p.Chain {
	case "", contract.SolanaMainnet, contract.SolanaDevnet, contract.SolanaTestnet:
	default:
		return walletFail(event, req, codeUnsupportedChains, "unsupported chain %q", p.Chain)
	}
	tx, code, err := w.sign(p.Transaction)
	if err != nil {
		return walletFail(event, req, code, "%v", err)
	}

	sig := tx.Signatures[0]
	if w.rpc != nil {
		sig, err = w.rpc.SendTransactionWithOpts(ctx, tx, sendOpts(p.Options))
		if err != nil {
			return walletFail(event, req, codeInternalError, "broadcast failed: %v", err)
		}
		w.log.Info().Str("signature", sig.String()).Msg("transaction broadcast")
	}
	return walletReply(event, req, contract.WalletResult{Signature: sig.String()})
}

func sendOpts(o *contract.WalletSendOptions) rpc.TransactionOpts {
	var opts rpc.TransactionOpts
	if o == nil {
		return opts
	}
	if o.SkipPreflight != nil {
		opts.SkipPreflight = *o.SkipPreflight
	}
	opts.PreflightCommitment = rpc.CommitmentType(o.PreflightCommitment)
	opts.MaxRetries = o.MaxRetries
	opts.MinContextSlot = o.MinContextSlot
	return opts
}

// sign decodes a base64 transaction and fills in the wallet's signature
// slot. Other signers' slots are left as they came.
func (w *Wallet) sign(encoded string) (*solana.Transaction, int, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, codeInvalidParams, fmt.Errorf("invalid tx base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, codeInvalidParams, fmt.Errorf("tx decode failed: %w", err)
	}

	signers := tx.Message.Signers()
	slot := -1
	for i, pk := range signers {
		if pk.Equals(w.PublicKey()) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, codeInvalidParams, fmt.Errorf("wallet %s is not a signer", w.PublicKey())
	}

	content, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, codeInternalError, fmt.Errorf("encode message: %w", err)
	}
	sig, err := w.key.Sign(content)
	if err != nil {
		return nil, codeInternalError, fmt.Errorf("sign: %w", err)
	}
	if len(tx.Signatures) < len(signers) {
		sigs := make([]solana.Signature, len(signers))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[slot] = sig
	w.logTransfers(tx)
	return tx, 0, nil
}

// logTransfers records the system transfers a signed transaction carries.
func (w *Wallet) logTransfers(tx *solana.Transaction) {
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			continue
		}
		if !tx.Message.AccountKeys[inst.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		metas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, idx := range inst.Accounts {
			pub := tx.Message.AccountKeys[idx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				return
			}
			metas[i] = &solana.AccountMeta{PublicKey: pub, IsSigner: tx.Message.IsSigner(pub), IsWritable: writable}
		}
		decoded, err := system.DecodeInstruction(metas, inst.Data)
		if err != nil {
			continue
		}
		if transfer, ok := decoded.Impl.(*system.Transfer); ok && transfer.Lamports != nil && len(metas) > 1 {
			w.log.Info().
				Str("from", metas[0].PublicKey.String()).
				Str("to", metas[1].PublicKey.String()).
				Uint64("lamports", *transfer.Lamports).
				Msg("signing system transfer")
		}
	}
}
