package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/alien-id/miniapp-sdk/internal/contract"
	"github.com/alien-id/miniapp-sdk/internal/request"
)

const ClipboardReadTimeout = 5 * time.Second

// ClipboardError carries the host's reason for a failed read.
type ClipboardError struct {
	Code string
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("clipboard read failed: %s", e.Code)
}

func (b *Bridge) WriteClipboard(text string) error {
	return b.Send(contract.MethodClipboardWrite, contract.ClipboardWrite{Text: text})
}

// ReadClipboard returns the host clipboard text. An empty clipboard reads
// as "".
func (b *Bridge) ReadClipboard(ctx context.Context) (string, error) {
	resp, err := Call[contract.ClipboardResponse](ctx, b,
		contract.MethodClipboardRead, contract.Empty{}, contract.EventClipboardResponse,
		request.WithTimeout(ClipboardReadTimeout),
	)
	if err != nil {
		return "", err
	}
	if resp.ErrorCode != "" {
		return "", &ClipboardError{Code: resp.ErrorCode}
	}
	if resp.Text == nil {
		return "", nil
	}
	return *resp.Text, nil
}
