package webhook

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Mavwarf/appicon/internal/httputil"
)

// Send posts body to url with the given Content-Type. Custom headers are
// applied after it, so callers can override it. Header values are expanded
// with os.ExpandEnv to support $VAR secrets.
func Send(ctx context.Context, url, contentType, body string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, os.ExpandEnv(v))
	}

	resp, err := httputil.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	return httputil.CheckStatus(resp, "webhook")
}
