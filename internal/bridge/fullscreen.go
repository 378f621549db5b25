package bridge

import (
	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/events"
)

func (b *Bridge) RequestFullscreen() error {
	return b.Send(contract.MethodFullscreenRequest, contract.Empty{})
}

func (b *Bridge) ExitFullscreen() error {
	return b.Send(contract.MethodFullscreenExit, contract.Empty{})
}

func (b *Bridge) OnFullscreenChanged(fn func(isFullscreen bool)) *events.Subscription {
	return Subscribe(b, contract.EventFullscreenChanged, func(p contract.FullscreenChanged) { fn(p.IsFullscreen) })
}

func (b *Bridge) OnFullscreenFailed(fn func(code string)) *events.Subscription {
	return Subscribe(b, contract.EventFullscreenFailed, func(p contract.FullscreenFailed) { fn(p.Error) })
}
