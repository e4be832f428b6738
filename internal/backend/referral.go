package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/memeindex/memeindex/internal/metrics"
)

// ReferralLink returns the invite link of the user registered with address.
func (c *Client) ReferralLink(ctx context.Context, address string) (*ReferralLink, error) {
	resp, err := c.do(ctx, metrics.EndpointReferral, http.MethodGet, "/api/referral/link/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}

	var out ReferralLink
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReferralStats returns how many users joined with the code of address.
func (c *Client) ReferralStats(ctx context.Context, address string) (*ReferralStats, error) {
	resp, err := c.do(ctx, metrics.EndpointReferral, http.MethodGet, "/api/referral/stats/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}

	var out ReferralStats
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApplyReferral records that address joined with code.
func (c *Client) ApplyReferral(ctx context.Context, req ApplyReferralRequest) ApplyResult {
	resp, err := c.do(ctx, metrics.EndpointReferral, http.MethodPost, "/api/referral/apply", req)
	if err != nil {
		return ClassifyApply(0, "", err)
	}
	return ClassifyApply(resp.Status, resp.Message, nil)
}
