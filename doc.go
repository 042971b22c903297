// Package cocapi provides a Go client for the Clash of Clans game statistics
// API.
//
// API keys for that service are bound to the public IP address they were
// created from, and each developer account holds at most ten of them. The
// client logs in to the developer console with one or more accounts, makes
// sure every account holds keys valid for the host's current IP, and spreads
// requests round-robin across all of those keys. When the API rejects a key
// with HTTP 403, usually because the host's IP changed, the client
// re-provisions keys once and resends the request.
//
// Basic usage:
//
//	client, err := cocapi.New(ctx, []cocapi.Credential{
//	    {Email: "dev@example.com", Password: "secret"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	clan, err := client.GetClan(ctx, "#2PP")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(clan.Name)
//
// Endpoints without a typed helper go through NewRequest and Dispatch:
//
//	req, err := client.NewRequest(ctx, http.MethodGet, "/locations", nil, nil)
//	resp, err := client.Dispatch(ctx, req)
//
// Errors match the sentinels in this package with errors.Is.
package cocapi
