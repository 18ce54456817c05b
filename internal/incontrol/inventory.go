package incontrol

import (
	"context"
	"encoding/json"
	"net/url"
)

const organizationsPath = "/rest/o"

func devicesPath(orgID string) string {
	return organizationsPath + "/" + url.PathEscape(orgID) + "/d"
}

// FetchOrganizations lists the organizations visible to token. A missing or
// empty data array yields an empty slice. Failures are *FetchError with
// ScopeOrganizations.
func (c *Client) FetchOrganizations(ctx context.Context, token string) ([]Organization, error) {
	items, err := c.fetchList(ctx, token, organizationsPath, nil, ScopeOrganizations, "")
	if err != nil {
		return nil, err
	}
	orgs := make([]Organization, 0, len(items))
	for _, item := range items {
		var org Organization
		// Organization and Device decoding never fails.
		_ = json.Unmarshal(item, &org)
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// FetchDevices lists the devices of one organization with warranty data.
// Failures are *FetchError with ScopeDevices and OrgID set.
func (c *Client) FetchDevices(ctx context.Context, token, orgID string) ([]Device, error) {
	query := url.Values{"includeWarranty": {"true"}}
	items, err := c.fetchList(ctx, token, devicesPath(orgID), query, ScopeDevices, orgID)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(items))
	for _, item := range items {
		var d Device
		_ = json.Unmarshal(item, &d)
		devices = append(devices, d)
	}
	return devices, nil
}

func (c *Client) fetchList(ctx context.Context, token, path string, query url.Values, scope FetchScope, orgID string) ([]json.RawMessage, error) {
	req, err := c.newBearerRequest(ctx, path, query, token)
	if err != nil {
		return nil, &FetchError{Scope: scope, OrgID: orgID, Err: err}
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, &FetchError{Scope: scope, OrgID: orgID, StatusCode: status, Err: err}
	}
	if !isSuccess(status) {
		return nil, &FetchError{Scope: scope, OrgID: orgID, StatusCode: status, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FetchError{Scope: scope, OrgID: orgID, StatusCode: status, Body: string(body), Err: err}
	}
	return env.Data, nil
}
