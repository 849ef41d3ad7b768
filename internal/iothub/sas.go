package iothub

import (
	"net/url"
	"strconv"
)

// sasResource returns the URL-encoded resource URI the SAS token is scoped to.
func (c *Client) sasResource() string {
	resource := c.host + "/devices/" + c.deviceID
	if c.opts.ModuleID != "" {
		resource += "/modules/" + c.opts.ModuleID
	}
	return url.QueryEscape(resource)
}

// SASSignature returns the string to sign for a token expiring at expiry
// (Unix seconds).
//
// Example: h.example.com%2Fdevices%2Fdev1\n1700000000
func (c *Client) SASSignature(expiry uint64) (string, error) {
	return c.sasResource() + "\n" + strconv.FormatUint(expiry, 10), nil
}

// SASPassword assembles the MQTT password from the expiry and the base64
// encoded HMAC of the signature payload.
//
// Example: SharedAccessSignature sr=h.example.com%2Fdevices%2Fdev1&sig=abc%3D&se=1700000000
func (c *Client) SASPassword(expiry uint64, signature string) (string, error) {
	if signature == "" {
		return "", ErrInvalidSignature
	}
	return "SharedAccessSignature sr=" + c.sasResource() +
		"&sig=" + url.QueryEscape(signature) +
		"&se=" + strconv.FormatUint(expiry, 10), nil
}
