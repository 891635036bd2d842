package lookup

import (
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/fuel-price-etl/internal/domain"
)

// StatusError builds the error for a non-200 provider response. Client
// errors other than 429 wrap domain.ErrLookupRejected.
func StatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s API error: status %d: %s", provider, resp.StatusCode, body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrLookupRejected, err)
	}
	return err
}
