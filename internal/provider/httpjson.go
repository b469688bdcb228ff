package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pricequorum/internal/httpx"
)

// maxBody caps how much of a response body is decoded.
const maxBody = 1 << 20

// GetJSON performs a GET against url and decodes a 2xx JSON body into out.
// Transport failures, non-2xx statuses and undecodable bodies come back as
// classified *Error values.
func GetJSON(ctx context.Context, hc httpx.HTTPClient, source, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", source, err)
	}
	if header != nil {
		req.Header = header.Clone()
	}
	req.Header.Set("Accept", "application/json")

	res, err := hc.Do(req)
	if err != nil {
		return FromTransport(source, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if err := FromStatus(source, res.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return err
	}

	dec := json.NewDecoder(io.LimitReader(res.Body, maxBody))
	if err := dec.Decode(out); err != nil {
		return NewError(ErrInvalidResponse, source, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
