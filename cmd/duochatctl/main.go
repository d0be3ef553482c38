package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/duochat/internal/api"
	"github.com/matheus3301/duochat/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "list":
		withMessages := len(args) >= 2 && args[1] == "-m"
		cmdList(ctx, c, withMessages, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: duochatctl open <username>")
			os.Exit(1)
		}
		cmdOpen(ctx, c, args[1], *jsonFlag)
	case "close":
		cmdClose(ctx, c, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: duochatctl send <username> <text...>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: duochatctl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, c, args[1], *jsonFlag)
	case "clear":
		cmdClear(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: duochatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show session status")
	fmt.Fprintln(os.Stderr, "  list [-m]              List conversations (-m includes messages)")
	fmt.Fprintln(os.Stderr, "  open <username>        Open a conversation and mark it read")
	fmt.Fprintln(os.Stderr, "  close                  Close the open conversation")
	fmt.Fprintln(os.Stderr, "  send <username> <text> Send a message")
	fmt.Fprintln(os.Stderr, "  search <query>         Find users to start a conversation with")
	fmt.Fprintln(os.Stderr, "  clear                  Drop unused search results")
	fmt.Fprintln(os.Stderr, "  watch                  Stream updates until interrupted")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:       %s\n", resp.Session)
	fmt.Printf("User:          %s (#%d)\n", resp.Username, resp.UserID)
	fmt.Printf("Status:        %s\n", resp.Status)
	fmt.Printf("Uptime:        %dms\n", resp.UptimeMs)
	fmt.Printf("Conversations: %d (%d unread)\n", resp.ConversationCount, resp.UnreadTotal)
	if resp.PendingOrphans > 0 {
		fmt.Printf("Pending:       %d messages awaiting their conversation\n", resp.PendingOrphans)
	}
	if resp.LastSnapshotUnixMs > 0 {
		fmt.Printf("Last snapshot: %s\n", time.UnixMilli(resp.LastSnapshotUnixMs).Format(time.RFC3339))
	}
	if resp.Active != "" {
		fmt.Printf("Open:          %s\n", resp.Active)
	}
}

func cmdList(ctx context.Context, c *api.Client, withMessages, jsonOut bool) {
	resp, err := c.ListConversations(ctx, withMessages)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range resp.Conversations {
		printConversation(conv)
		for _, m := range conv.Messages {
			printMessage(m, conv.OtherUsername)
		}
	}
}

func printConversation(conv api.Conversation) {
	presence := " "
	if conv.Online {
		presence = "*"
	}
	unread := ""
	if conv.Unread > 0 {
		unread = fmt.Sprintf(" (%d)", conv.Unread)
	}
	if conv.Provisional {
		fmt.Printf("%s %-20s [new]\n", presence, conv.OtherUsername)
		return
	}
	fmt.Printf("%s %-20s%s %s\n", presence, conv.OtherUsername, unread, conv.LatestMessageText)
}

func printMessage(m api.Message, other string) {
	from := other
	if m.FromMe {
		from = "me"
	}
	mark := ""
	if m.FromMe && m.Read {
		mark = " ✓"
	}
	ts := time.UnixMilli(m.CreatedAtUnixMs).Format("15:04")
	fmt.Printf("    [%s] %s: %s%s\n", ts, from, m.Text, mark)
}

func cmdOpen(ctx context.Context, c *api.Client, username string, jsonOut bool) {
	resp, err := c.OpenConversation(ctx, username)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	printConversation(resp.Conversation)
	// Messages arrive newest first; print in reading order.
	msgs := resp.Conversation.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		printMessage(msgs[i], resp.Conversation.OtherUsername)
	}
}

func cmdClose(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.CloseConversation(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Closed == "" {
		fmt.Println("No conversation was open.")
		return
	}
	fmt.Printf("Closed %s\n", resp.Closed)
}

func cmdSend(ctx context.Context, c *api.Client, username, text string, jsonOut bool) {
	resp, err := c.SendMessage(ctx, username, text)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Sent #%d to %s\n", resp.Message.ID, username)
}

func cmdSearch(ctx context.Context, c *api.Client, query string, jsonOut bool) {
	resp, err := c.SearchUsers(ctx, query, 0)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Users) == 0 {
		fmt.Println("No users found.")
		return
	}
	for _, u := range resp.Users {
		fmt.Println(u.Username)
	}
	fmt.Printf("%d added to the conversation list\n", resp.Added)
}

func cmdClear(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.ClearSearch(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Removed %d search results\n", resp.Removed)
}

func cmdWatch(c *api.Client, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := c.WatchUpdates(ctx, func(e *api.UpdateEvent) error {
		if jsonOut {
			outputJSON(e)
			return nil
		}
		at := time.UnixMilli(e.OccurredAtUnixMs).Format(time.TimeOnly)
		if e.Status != "" {
			fmt.Printf("%s %s %s\n", at, e.Kind, e.Status)
			return nil
		}
		fmt.Printf("%s %s conversation=%d user=%d\n", at, e.Kind, e.ConversationID, e.OtherUserID)
		return nil
	})
	if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		fail(err)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
