package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// User is the minimal identity record returned by the who-am-I call.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// Org is a GitHub organization as exposed to the browser. Personal marks the
// pseudo-organization representing the viewer's own account.
type Org struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Personal  bool   `json:"personal,omitempty"`
}

// Viewer exchanges the token for the authenticated user's identity. This one
// call is the single source of truth for credential validity: token format
// checks are advisory only and never replace it.
func (c *Client) Viewer(ctx context.Context, token string) (*User, error) {
	resp, err := c.Get(ctx, token, "/user", nil, Conditional{})
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(resp.Body, &u); err != nil {
		return nil, &APIError{Kind: KindUnavailable, Message: "decode user: " + err.Error()}
	}
	return &u, nil
}

// RerunWorkflowRun asks GitHub to re-run a workflow run. GitHub replies
// 201 Created with an empty object on success.
func (c *Client) RerunWorkflowRun(ctx context.Context, token, owner, repo string, runID int64) error {
	p := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/rerun", owner, repo, runID)
	_, err := c.Post(ctx, token, p, nil)
	return err
}
