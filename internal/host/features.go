package host

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/payment"
	"github.com/alien-id/miniapp-sdk/internal/protocol"
)

// Device holds the simulated state behind the non-wallet host features.
type Device struct {
	log zerolog.Logger

	mu                sync.Mutex
	ready             bool
	clipboard         *string
	clipboardDenied   bool
	backButtonVisible bool
	fullscreen        bool
	opened            []string
}

func NewDevice(log zerolog.Logger) *Device {
	return &Device{log: log}
}

// Register installs the device methods on h.
func (d *Device) Register(h *Hub) {
	h.Handle(contract.MethodAppReady, d.appReady)
	h.Handle(contract.MethodCloseAck, d.closeAck)
	h.Handle(contract.MethodBackButtonToggle, d.backButton)
	h.Handle(contract.MethodClipboardWrite, d.clipboardWrite)
	h.Handle(contract.MethodClipboardRead, d.clipboardRead)
	h.Handle(contract.MethodLinkOpen, d.openLink)
	h.Handle(contract.MethodHapticImpact, d.haptic)
	h.Handle(contract.MethodHapticNotification, d.haptic)
	h.Handle(contract.MethodHapticSelection, d.haptic)
	h.Handle(contract.MethodFullscreenRequest, d.setFullscreen(true))
	h.Handle(contract.MethodFullscreenExit, d.setFullscreen(false))
	h.Handle(contract.MethodPaymentRequest, d.pay)
}

// DenyClipboard makes clipboard reads fail with permission_denied.
func (d *Device) DenyClipboard(deny bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboardDenied = deny
}

func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *Device) BackButtonVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backButtonVisible
}

// Opened lists the links the miniapp asked to open.
func (d *Device) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

func (d *Device) appReady(context.Context, protocol.Message) ([]protocol.Message, error) {
	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()
	d.log.Info().Msg("miniapp ready")
	return nil, nil
}

func (d *Device) closeAck(context.Context, protocol.Message) ([]protocol.Message, error) {
	d.log.Info().Msg("miniapp acknowledged close")
	return nil, nil
}

func (d *Device) backButton(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	var p contract.BackButtonToggle
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.backButtonVisible = p.Visible
	d.mu.Unlock()
	return nil, nil
}

func (d *Device) clipboardWrite(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	var p contract.ClipboardWrite
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.clipboard = &p.Text
	d.mu.Unlock()
	return nil, nil
}

func (d *Device) clipboardRead(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	res := contract.ClipboardResponse{ReqID: protocol.ReqID(req.Payload)}
	d.mu.Lock()
	switch {
	case d.clipboardDenied:
		res.ErrorCode = contract.ClipboardPermissionDenied
	case d.clipboard != nil:
		text := *d.clipboard
		res.Text = &text
	}
	d.mu.Unlock()
	return reply(contract.EventClipboardResponse, res)
}

func (d *Device) openLink(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	var p contract.LinkOpen
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.opened = append(d.opened, p.URL)
	d.mu.Unlock()
	d.log.Info().Str("url", p.URL).Str("mode", string(p.OpenMode)).Msg("open link")
	return nil, nil
}

func (d *Device) haptic(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	d.log.Debug().Str("method", req.Name).RawJSON("payload", req.Payload).Msg("haptic feedback")
	return nil, nil
}

func (d *Device) setFullscreen(on bool) Handler {
	return func(context.Context, protocol.Message) ([]protocol.Message, error) {
		d.mu.Lock()
		d.fullscreen = on
		d.mu.Unlock()
		return reply(contract.EventFullscreenChanged, contract.FullscreenChanged{IsFullscreen: on})
	}
}

// pay approves every payment. Test scenarios get the outcome they name.
func (d *Device) pay(_ context.Context, req protocol.Message) ([]protocol.Message, error) {
	var p contract.PaymentRequest
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return nil, err
	}
	resp := contract.PaymentResponse{Status: contract.PaymentPaid}
	if p.Test != "" {
		resp = payment.Outcome(payment.Scenario(p.Test))
	}
	if resp.Status == contract.PaymentPaid {
		resp.TxHash = xid.New().String()
	}
	resp.ReqID = protocol.ReqID(req.Payload)
	d.log.Info().Str("invoice", p.Invoice).Str("amount", p.Amount).Str("status", string(resp.Status)).Msg("payment handled")
	return reply(contract.EventPaymentResponse, resp)
}
