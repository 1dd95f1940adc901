package api

import (
	"context"
	"fmt"
)

// GetUserInfo fetches account attributes and active sessions.
func (c *Client) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	var resp UserInfoResponse
	if err := c.get(ctx, PathUserInfo, nil, &resp); err != nil {
		return nil, fmt.Errorf("get userinfo: %w", err)
	}
	return &resp, nil
}

// GetDevices fetches the registered device list.
func (c *Client) GetDevices(ctx context.Context) (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.get(ctx, PathDevices, nil, &resp); err != nil {
		return nil, fmt.Errorf("get devices: %w", err)
	}
	return &resp, nil
}
