package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/casalink/inboxd/internal/api"
	"github.com/casalink/inboxd/internal/config"
	"github.com/casalink/inboxd/internal/profile"
)

func main() {
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		if cfg, err := config.Load(profile.ConfigPath()); err == nil {
			addr = cfg.Listen
		} else {
			addr = config.Default().Listen
		}
	}

	c := &client{base: "http://" + addr}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "list":
		cmdList(ctx, c, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: inboxctl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, args[1], *jsonFlag)
	case "refresh":
		cmdRefresh(ctx, c, *jsonFlag)
	case "unread":
		cmdUnread(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status           Show daemon status")
	fmt.Fprintln(os.Stderr, "  list             List conversations, most recent first")
	fmt.Fprintln(os.Stderr, "  search <query>   Filter conversations by name or preview text")
	fmt.Fprintln(os.Stderr, "  refresh          Force an immediate resync")
	fmt.Fprintln(os.Stderr, "  unread           Show the unread conversation count")
}

type client struct {
	base string
	http http.Client
}

func (c *client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdStatus(ctx context.Context, c *client, jsonOut bool) {
	var resp api.StatusResponse
	if err := c.get(ctx, "/v1/status", &resp); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("State:    %s\n", resp.State)
	fmt.Printf("Uptime:   %dms\n", resp.UptimeMs)
	fmt.Printf("Unread:   %d\n", resp.UnreadTotal)
	if resp.LastRefreshError != "" {
		fmt.Printf("Last refresh error: %s\n", resp.LastRefreshError)
	}
}

func cmdList(ctx context.Context, c *client, jsonOut bool) {
	var resp api.ListResponse
	if err := c.get(ctx, "/v1/conversations", &resp); err != nil {
		fail(err)
	}
	printList(resp, jsonOut)
}

func cmdSearch(ctx context.Context, c *client, query string, jsonOut bool) {
	var resp api.ListResponse
	if err := c.get(ctx, "/v1/conversations/search?q="+url.QueryEscape(query), &resp); err != nil {
		fail(err)
	}
	printList(resp, jsonOut)
}

func printList(resp api.ListResponse, jsonOut bool) {
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range resp.Conversations {
		marker := " "
		if conv.Unread {
			marker = "*"
		}
		preview := "(no messages)"
		if conv.Preview != nil {
			preview = conv.Preview.Text
			if conv.Preview.HasAttachment && preview == "" {
				preview = "(attachment)"
			}
		}
		fmt.Printf("%s %-24s %s\n", marker, conv.DisplayName, preview)
	}
}

func cmdRefresh(ctx context.Context, c *client, jsonOut bool) {
	var resp struct {
		Started bool `json:"started"`
	}
	if err := c.post(ctx, "/v1/refresh", api.RefreshRequest{Force: true}, &resp); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Started {
		fmt.Println("Refresh started.")
	} else {
		fmt.Println("Refresh already in flight.")
	}
}

func cmdUnread(ctx context.Context, c *client, jsonOut bool) {
	var resp api.ListResponse
	if err := c.get(ctx, "/v1/conversations", &resp); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(map[string]int{"unread_total": resp.UnreadTotal})
		return
	}
	fmt.Println(resp.UnreadTotal)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
