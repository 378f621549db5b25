package bridge

import (
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/events"
)

// Ready tells the host the miniapp has rendered.
func (b *Bridge) Ready() error {
	return b.Send(contract.MethodAppReady, contract.Empty{})
}

// CloseAck acknowledges a miniapp:close so the host can tear down.
func (b *Bridge) CloseAck() error {
	return b.Send(contract.MethodCloseAck, contract.Empty{})
}

// OnClose runs fn when the host is about to close the miniapp.
func (b *Bridge) OnClose(fn func()) *events.Subscription {
	return Subscribe(b, contract.EventClose, func(contract.Empty) { fn() })
}

func (b *Bridge) SetBackButtonVisible(visible bool) error {
	return b.Send(contract.MethodBackButtonToggle, contract.BackButtonToggle{Visible: visible})
}

func (b *Bridge) OnBackButtonClicked(fn func()) *events.Subscription {
	return Subscribe(b, contract.EventBackButtonClicked, func(contract.Empty) { fn() })
}
