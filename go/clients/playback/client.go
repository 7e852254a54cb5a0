// Package playback talks to the external playback adapter that fronts the
// music service.
package playback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mcdev12/musicbingo/go/clients"
)

// Client is the HTTP playback adapter client.
type Client struct {
	*clients.BaseClient
}

// NewClient creates a client for baseURL. token is sent as a bearer token
// when non-empty.
func NewClient(baseURL, token string) *Client {
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	if token != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+token)
	}
	client.SetTimeout(5 * time.Second)
	return client
}

// Status fetches the player status for a session.
func (c *Client) Status(ctx context.Context, sessionID string) (Status, error) {
	body, err := c.Get(ctx, StatusEndpoint+"?session_id="+url.QueryEscape(sessionID))
	if err != nil {
		return Status{}, translate(err)
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return Status{}, fmt.Errorf("failed to unmarshal status: %w, raw response: %s", err, string(body))
	}
	return status, nil
}

// Command sends one command. A refused command comes back as *CommandError
// alongside whatever status the adapter returned.
func (c *Client) Command(ctx context.Context, cmd Command) (CommandResponse, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	body, err := c.Post(ctx, CommandEndpoint, bytes.NewReader(payload))
	if err != nil {
		var se *clients.StatusError
		if errors.As(err, &se) && se.Code != http.StatusUnauthorized {
			var resp CommandResponse
			if json.Unmarshal(se.Body, &resp) == nil && resp.Error != nil {
				return resp, commandError(cmd.Action, resp.Error)
			}
		}
		return CommandResponse{}, translate(err)
	}

	var resp CommandResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CommandResponse{}, fmt.Errorf("failed to unmarshal command response: %w, raw response: %s", err, string(body))
	}
	if !resp.OK {
		e := resp.Error
		if e == nil {
			e = &ErrorBody{Code: "unknown"}
		}
		return resp, commandError(cmd.Action, e)
	}
	return resp, nil
}

func commandError(action Action, e *ErrorBody) *CommandError {
	return &CommandError{Action: action, Code: e.Code, Message: e.Message}
}

func translate(err error) error {
	var se *clients.StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}
