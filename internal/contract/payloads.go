package contract

type Empty struct{}

type BackButtonToggle struct {
	Visible bool `json:"visible"`
}

type ClipboardWrite struct {
	Text string `json:"text"`
}

type ClipboardResponse struct {
	ReqID     string  `json:"reqId"`
	Text      *string `json:"text"`
	ErrorCode string  `json:"errorCode,omitempty"`
}

const (
	ClipboardPermissionDenied = "permission_denied"
	ClipboardUnavailable      = "unavailable"
)

type OpenMode string

const (
	OpenExternal OpenMode = "external"
	OpenInternal OpenMode = "internal"
)

type LinkOpen struct {
	URL      string   `json:"url"`
	OpenMode OpenMode `json:"openMode,omitempty"`
}

type HapticImpactStyle string

const (
	ImpactLight  HapticImpactStyle = "light"
	ImpactMedium HapticImpactStyle = "medium"
	ImpactHeavy  HapticImpactStyle = "heavy"
	ImpactSoft   HapticImpactStyle = "soft"
	ImpactRigid  HapticImpactStyle = "rigid"
)

type HapticNotificationType string

const (
	NotificationSuccess HapticNotificationType = "success"
	NotificationWarning HapticNotificationType = "warning"
	NotificationError   HapticNotificationType = "error"
)

type HapticImpact struct {
	Style HapticImpactStyle `json:"style"`
}

type HapticNotification struct {
	Type HapticNotificationType `json:"type"`
}

type FullscreenChanged struct {
	IsFullscreen bool `json:"isFullscreen"`
}

type FullscreenFailed struct {
	Error string `json:"error"`
}

// PaymentItem is shown on the host approval screen.
type PaymentItem struct {
	Title    string `json:"title" validate:"required"`
	IconURL  string `json:"iconUrl" validate:"omitempty,url"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type PaymentRequest struct {
	Recipient string       `json:"recipient" validate:"required"`
	Amount    string       `json:"amount" validate:"required"`
	Token     string       `json:"token" validate:"required"`
	Network   string       `json:"network" validate:"required"`
	Invoice   string       `json:"invoice" validate:"required"`
	Item      *PaymentItem `json:"item,omitempty" validate:"omitempty"`
	Test      string       `json:"test,omitempty"`
}

type PaymentStatus string

const (
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// Pre-broadcast payment failures; no webhook is sent for these.
const (
	PaymentErrInsufficientBalance = "insufficient_balance"
	PaymentErrNetwork             = "network_error"
	PaymentErrPreCheckoutRejected = "pre_checkout_rejected"
	PaymentErrPreCheckoutTimeout  = "pre_checkout_timeout"
	PaymentErrUnknown             = "unknown"
)

type PaymentResponse struct {
	ReqID     string        `json:"reqId"`
	Status    PaymentStatus `json:"status"`
	TxHash    string        `json:"txHash,omitempty"`
	ErrorCode string        `json:"errorCode,omitempty"`
}

type SolanaChain string

const (
	SolanaMainnet SolanaChain = "solana:mainnet"
	SolanaDevnet  SolanaChain = "solana:devnet"
	SolanaTestnet SolanaChain = "solana:testnet"
)

type SolanaCommitment string

const (
	CommitmentProcessed SolanaCommitment = "processed"
	CommitmentConfirmed SolanaCommitment = "confirmed"
	CommitmentFinalized SolanaCommitment = "finalized"
)

type WalletSignTransaction struct {
	// Base64 serialized transaction, legacy or versioned.
	Transaction string `json:"transaction"`
}

type WalletSignMessage struct {
	// Base58 message bytes.
	Message string `json:"message"`
}

type WalletSendOptions struct {
	SkipPreflight       *bool            `json:"skipPreflight,omitempty"`
	PreflightCommitment SolanaCommitment `json:"preflightCommitment,omitempty"`
	Commitment          SolanaCommitment `json:"commitment,omitempty"`
	MinContextSlot      *uint64          `json:"minContextSlot,omitempty"`
	MaxRetries          *uint            `json:"maxRetries,omitempty"`
}

type WalletSignAndSend struct {
	Transaction string             `json:"transaction"`
	Chain       SolanaChain        `json:"chain,omitempty"`
	Options     *WalletSendOptions `json:"options,omitempty"`
}

// WalletResult is the common shape of every wallet.solana:*.response event.
// Only the fields relevant to the answered method are set.
type WalletResult struct {
	ReqID             string `json:"reqId"`
	PublicKey         string `json:"publicKey,omitempty"`
	SignedTransaction string `json:"signedTransaction,omitempty"`
	Signature         string `json:"signature,omitempty"`
	ErrorCode         int    `json:"errorCode,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}
