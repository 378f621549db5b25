package capability

import "github.com/alien-id/miniapp-sdk/internal/contract"

// Entry names a method, optionally narrowed to one payload variant that was
// introduced later than the method itself.
type Entry struct {
	Method  string
	Variant string
}

type Release struct {
	Version Version
	Entries []Entry
}

func m(method string) Entry { return Entry{Method: method} }

// Releases is the compatibility manifest shipped to hosts in the field.
// Append only: existing versions and entries are never removed or renumbered.
var Releases = []Release{
	{Version: "0.0.1", Entries: []Entry{m(contract.MethodAppReady)}},
	{Version: "0.0.14", Entries: []Entry{
		m(contract.MethodCloseAck),
		m(contract.MethodBackButtonToggle),
	}},
	{Version: "0.1.1", Entries: []Entry{
		m(contract.MethodPaymentRequest),
		m(contract.MethodClipboardWrite),
		m(contract.MethodClipboardRead),
	}},
	{Version: "0.1.2", Entries: []Entry{
		{Method: contract.MethodPaymentRequest, Variant: "test"},
	}},
	{Version: "0.1.3", Entries: []Entry{m(contract.MethodLinkOpen)}},
	{Version: "0.2.4", Entries: []Entry{
		m(contract.MethodHapticImpact),
		m(contract.MethodHapticNotification),
		m(contract.MethodHapticSelection),
	}},
	{Version: "1.0.0", Entries: []Entry{
		m(contract.MethodWalletConnect),
		m(contract.MethodWalletDisconnect),
		m(contract.MethodWalletSignTx),
		m(contract.MethodWalletSignMessage),
		m(contract.MethodWalletSignAndSend),
		{Method: contract.MethodWalletSignAndSend, Variant: "chain"},
	}},
	{Version: "1.1.0", Entries: []Entry{
		m(contract.MethodFullscreenRequest),
		m(contract.MethodFullscreenExit),
	}},
}
