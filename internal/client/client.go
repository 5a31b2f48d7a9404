package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	api "github.com/sensorhub/sensorhub/api/v1alpha1"
	"github.com/sensorhub/sensorhub/pkg/reqid"
)

// Client is a typed HTTP client for the SensorHub API.
type Client struct {
	server string
	http   *http.Client
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(chimw.RequestIDHeader, reqid.NextRequestID())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) RegisterDevice(ctx context.Context, registration api.DeviceRegistration, idempotencyKey string) (*api.Device, error) {
	var device api.Device
	headers := map[string]string{"idempotency-key": idempotencyKey}
	if err := c.do(ctx, http.MethodPost, "/devices", headers, registration, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *Client) GetDevice(ctx context.Context, id string) (*api.Device, error) {
	var device api.Device
	if err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(id), nil, nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *Client) ListDevices(ctx context.Context, groupID string, limit int) ([]api.Device, error) {
	params := url.Values{}
	if groupID != "" {
		params.Set("group_id", groupID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var devices []api.Device
	if err := c.do(ctx, http.MethodGet, withQuery("/devices", params), nil, nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *Client) UpdateDevice(ctx context.Context, id string, updates api.DeviceUpdate) (*api.Device, error) {
	var device api.Device
	if err := c.do(ctx, http.MethodPatch, "/devices/"+url.PathEscape(id), nil, updates, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (c *Client) ListAlerts(ctx context.Context, deviceID, status string, limit int) ([]api.Alert, error) {
	params := url.Values{}
	if deviceID != "" {
		params.Set("device_id", deviceID)
	}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var alerts []api.Alert
	if err := c.do(ctx, http.MethodGet, withQuery("/alerts", params), nil, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id string) (*api.Alert, error) {
	var alert api.Alert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/acknowledge", nil, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) ResolveAlert(ctx context.Context, id string) (*api.Alert, error) {
	var alert api.Alert
	if err := c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/resolve", nil, nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) GetFleetAnalytics(ctx context.Context) (*api.FleetAnalytics, error) {
	var analytics api.FleetAnalytics
	if err := c.do(ctx, http.MethodGet, "/analytics/fleet", nil, nil, &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

func (c *Client) ListFirmwareVersions(ctx context.Context) ([]string, error) {
	var versions []string
	if err := c.do(ctx, http.MethodGet, "/firmware/versions", nil, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

func (c *Client) InitiateUpdate(ctx context.Context, request api.FirmwareUpdateRequest) (*api.FirmwareUpdate, error) {
	var update api.FirmwareUpdate
	if err := c.do(ctx, http.MethodPost, "/firmware/updates", nil, request, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (c *Client) GetUpdate(ctx context.Context, id string) (*api.FirmwareUpdate, error) {
	var update api.FirmwareUpdate
	if err := c.do(ctx, http.MethodGet, "/firmware/updates/"+url.PathEscape(id), nil, nil, &update); err != nil {
		return nil, err
	}
	return &update, nil
}

func (c *Client) GetEvents(ctx context.Context, topic string, limit int) ([]api.Event, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var events []api.Event
	if err := c.do(ctx, http.MethodGet, withQuery("/events/"+url.PathEscape(topic), params), nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) GetVersion(ctx context.Context) (*api.Version, error) {
	var v api.Version
	if err := c.do(ctx, http.MethodGet, "/version", nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
