// Package contract declares the method and event identifiers shared with the
// host application and the payload shapes that travel with them.
package contract

// Methods are sent by the miniapp to the host.
const (
	MethodAppReady           = "app:ready"
	MethodCloseAck           = "miniapp:close.ack"
	MethodBackButtonToggle   = "host.back.button:toggle"
	MethodPaymentRequest     = "payment:request"
	MethodClipboardWrite     = "clipboard:write"
	MethodClipboardRead      = "clipboard:read"
	MethodLinkOpen           = "link:open"
	MethodHapticImpact       = "haptic:impact"
	MethodHapticNotification = "haptic:notification"
	MethodHapticSelection    = "haptic:selection"
	MethodWalletConnect      = "wallet.solana:connect"
	MethodWalletDisconnect   = "wallet.solana:disconnect"
	MethodWalletSignTx       = "wallet.solana:sign.transaction"
	MethodWalletSignMessage  = "wallet.solana:sign.message"
	MethodWalletSignAndSend  = "wallet.solana:sign.send"
	MethodFullscreenRequest  = "fullscreen:request"
	MethodFullscreenExit     = "fullscreen:exit"
)

// Events are emitted by the host and delivered to miniapp listeners.
const (
	EventClose                  = "miniapp:close"
	EventBackButtonClicked      = "host.back.button:clicked"
	EventPaymentResponse        = "payment:response"
	EventClipboardResponse      = "clipboard:response"
	EventWalletConnectResponse  = "wallet.solana:connect.response"
	EventWalletSignTxResponse   = "wallet.solana:sign.transaction.response"
	EventWalletSignMsgResponse  = "wallet.solana:sign.message.response"
	EventWalletSignSendResponse = "wallet.solana:sign.send.response"
	EventFullscreenChanged      = "fullscreen:changed"
	EventFullscreenFailed       = "fullscreen:failed"
)

var methods = map[string]struct{}{
	MethodAppReady: {}, MethodCloseAck: {}, MethodBackButtonToggle: {},
	MethodPaymentRequest: {}, MethodClipboardWrite: {}, MethodClipboardRead: {},
	MethodLinkOpen: {}, MethodHapticImpact: {}, MethodHapticNotification: {},
	MethodHapticSelection: {}, MethodWalletConnect: {}, MethodWalletDisconnect: {},
	MethodWalletSignTx: {}, MethodWalletSignMessage: {}, MethodWalletSignAndSend: {},
	MethodFullscreenRequest: {}, MethodFullscreenExit: {},
}

var events = map[string]struct{}{
	EventClose: {}, EventBackButtonClicked: {}, EventPaymentResponse: {},
	EventClipboardResponse: {}, EventWalletConnectResponse: {}, EventWalletSignTxResponse: {},
	EventWalletSignMsgResponse: {}, EventWalletSignSendResponse: {},
	EventFullscreenChanged: {}, EventFullscreenFailed: {},
}

func IsMethod(name string) bool {
	_, ok := methods[name]
	return ok
}

func IsEvent(name string) bool {
	_, ok := events[name]
	return ok
}
