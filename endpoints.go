package cocapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cocapi/client-go/internal/apierrors"
	"github.com/cocapi/client-go/tag"
)

// Clan is the subset of a clan profile the client decodes.
type Clan struct {
	Tag            string `json:"tag"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	ClanLevel      int    `json:"clanLevel"`
	ClanPoints     int    `json:"clanPoints"`
	Members        int    `json:"members"`
	WarWins        int    `json:"warWins"`
	IsWarLogPublic bool   `json:"isWarLogPublic"`
}

// ClanSummary is the short clan reference embedded in other resources.
type ClanSummary struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	ClanLevel int    `json:"clanLevel"`
}

// Player is the subset of a player profile the client decodes.
type Player struct {
	Tag           string       `json:"tag"`
	Name          string       `json:"name"`
	ExpLevel      int          `json:"expLevel"`
	TownHallLevel int          `json:"townHallLevel"`
	Trophies      int          `json:"trophies"`
	BestTrophies  int          `json:"bestTrophies"`
	Role          string       `json:"role,omitempty"`
	Clan          *ClanSummary `json:"clan,omitempty"`
}

// ClanMember is one entry of a clan's member list.
type ClanMember struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	ExpLevel  int    `json:"expLevel"`
	Trophies  int    `json:"trophies"`
	ClanRank  int    `json:"clanRank"`
	Donations int    `json:"donations"`
}

// Paging carries the opaque cursors of a paged list.
type Paging struct {
	Cursors struct {
		After  string `json:"after,omitempty"`
		Before string `json:"before,omitempty"`
	} `json:"cursors"`
}

// ClanMemberList is one page of clan members.
type ClanMemberList struct {
	Items  []ClanMember `json:"items"`
	Paging Paging       `json:"paging"`
}

// WarClan is one side of a clan war.
type WarClan struct {
	Tag                   string  `json:"tag"`
	Name                  string  `json:"name"`
	ClanLevel             int     `json:"clanLevel"`
	Attacks               int     `json:"attacks"`
	Stars                 int     `json:"stars"`
	DestructionPercentage float64 `json:"destructionPercentage"`
}

// War is the current war of a clan. State is "notInWar" when there is none.
type War struct {
	State     string  `json:"state"`
	TeamSize  int     `json:"teamSize"`
	StartTime string  `json:"startTime,omitempty"`
	EndTime   string  `json:"endTime,omitempty"`
	Clan      WarClan `json:"clan"`
	Opponent  WarClan `json:"opponent"`
}

// VerifyTokenResult is the answer to a player API token check.
type VerifyTokenResult struct {
	Tag    string `json:"tag"`
	Token  string `json:"token"`
	Status string `json:"status"`
}

// Valid reports whether the token was accepted.
func (r *VerifyTokenResult) Valid() bool {
	return r.Status == "ok"
}

// ListOptions pages through list endpoints. The zero value requests the
// API's default page.
type ListOptions struct {
	// Limit caps the number of items. Zero means no limit parameter.
	Limit int
	// After and Before are cursors from a previous page's Paging. At most
	// one may be set.
	After  string
	Before string
}

func (o *ListOptions) query() (url.Values, error) {
	if o == nil {
		return nil, nil
	}
	if o.Limit < 0 {
		return nil, &apierrors.InvalidParametersError{Reason: fmt.Sprintf("limit must not be negative, got %d", o.Limit)}
	}
	if o.After != "" && o.Before != "" {
		return nil, &apierrors.InvalidParametersError{Reason: "after and before cannot both be set"}
	}

	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.After != "" {
		q.Set("after", o.After)
	}
	if o.Before != "" {
		q.Set("before", o.Before)
	}
	return q, nil
}

// GetClan returns the clan with the given tag.
func (c *Client) GetClan(ctx context.Context, clanTag string) (*Clan, error) {
	t, err := tag.Parse(clanTag)
	if err != nil {
		return nil, err
	}
	return getJSON[Clan](ctx, c, "/clans/"+t.PathEscaped(), nil)
}

// GetClanMembers returns one page of the clan's members.
func (c *Client) GetClanMembers(ctx context.Context, clanTag string, opts *ListOptions) (*ClanMemberList, error) {
	t, err := tag.Parse(clanTag)
	if err != nil {
		return nil, err
	}
	q, err := opts.query()
	if err != nil {
		return nil, err
	}
	return getJSON[ClanMemberList](ctx, c, "/clans/"+t.PathEscaped()+"/members", q)
}

// GetCurrentWar returns the clan's current war.
func (c *Client) GetCurrentWar(ctx context.Context, clanTag string) (*War, error) {
	t, err := tag.Parse(clanTag)
	if err != nil {
		return nil, err
	}
	return getJSON[War](ctx, c, "/clans/"+t.PathEscaped()+"/currentwar", nil)
}

// GetPlayer returns the player with the given tag.
func (c *Client) GetPlayer(ctx context.Context, playerTag string) (*Player, error) {
	t, err := tag.Parse(playerTag)
	if err != nil {
		return nil, err
	}
	return getJSON[Player](ctx, c, "/players/"+t.PathEscaped(), nil)
}

// VerifyPlayerToken checks a player's in-game API token.
func (c *Client) VerifyPlayerToken(ctx context.Context, playerTag, token string) (*VerifyTokenResult, error) {
	t, err := tag.Parse(playerTag)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &apierrors.InvalidParametersError{Reason: "token is required"}
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err) //coverage:ignore
	}
	req, err := c.NewRequest(ctx, http.MethodPost, "/players/"+t.PathEscaped()+"/verifytoken", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return decode[VerifyTokenResult](ctx, c, req)
}

func getJSON[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return decode[T](ctx, c, req)
}

func decode[T any](ctx context.Context, c *Client, req *http.Request) (*T, error) {
	resp, err := c.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	var v T
	if err := resp.Decode(&v); err != nil {
		c.log.Error("malformed response body", "url", resp.URL, "error", err)
		return nil, err
	}
	return &v, nil
}
