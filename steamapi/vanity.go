package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const userServiceURL = baseURL + "/ISteamUser"

// vanity URL resolution eresult values, per ISteamUser/ResolveVanityURL.
const (
	vanitySuccess = 1
	vanityNoMatch = 42
)

// ErrVanityNotFound is returned by ResolveVanityURL when no account
// matches the requested vanity name.
var ErrVanityNotFound = fmt.Errorf("steamapi: vanity url not found")

// ResolveVanityURL calls ISteamUser/ResolveVanityURL/v1, translating a
// community vanity name (e.g. the "gabelogannewell" in
// steamcommunity.com/id/gabelogannewell) into its SteamID64.
func (c *Client) ResolveVanityURL(ctx context.Context, vanityName string) (string, error) {
	params := url.Values{}
	params.Set("key", c.key)
	params.Set("vanityurl", vanityName)

	reqURL := userServiceURL + "/ResolveVanityURL/v1/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkAPIResponse(resp); err != nil {
		return "", err
	}

	var result struct {
		Response struct {
			SteamID string `json:"steamid"`
			Success int    `json:"success"`
			Message string `json:"message"`
		} `json:"response"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	switch result.Response.Success {
	case vanitySuccess:
		return result.Response.SteamID, nil
	case vanityNoMatch:
		return "", ErrVanityNotFound
	default:
		return "", fmt.Errorf("steamapi: resolve vanity url: %s", result.Response.Message)
	}
}
