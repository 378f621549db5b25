package bridge

import (
	"fmt"
	"net/url"

	"github.com/alien-id/miniapp-sdk/internal/contract"
)

// OpenLink asks the host to open rawURL. An empty mode leaves the choice to
// the host, which defaults to external.
func (b *Bridge) OpenLink(rawURL string, mode contract.OpenMode) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("open link: %q is not an absolute URL", rawURL)
	}
	return b.Send(contract.MethodLinkOpen, contract.LinkOpen{URL: u.String(), OpenMode: mode})
}

// LinkTarget decides whether a navigation to href from a page at origin
// should go through the host. Same-origin links and javascript: or blob:
// URLs stay in the miniapp.
func LinkTarget(href, origin string) (string, bool) {
	base, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "javascript", "blob":
		return "", false
	}
	if u.Scheme == base.Scheme && u.Host == base.Host {
		return "", false
	}
	return u.String(), true
}
