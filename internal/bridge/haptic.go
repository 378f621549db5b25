package bridge

import "github.com/alien-id/miniapp-sdk/internal/contract"

func (b *Bridge) HapticImpact(style contract.HapticImpactStyle) error {
	return b.Send(contract.MethodHapticImpact, contract.HapticImpact{Style: style})
}

func (b *Bridge) HapticNotification(kind contract.HapticNotificationType) error {
	return b.Send(contract.MethodHapticNotification, contract.HapticNotification{Type: kind})
}

func (b *Bridge) HapticSelection() error {
	return b.Send(contract.MethodHapticSelection, contract.Empty{})
}
