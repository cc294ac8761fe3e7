package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"community-hub/chatclient"
	"community-hub/domain"
	"community-hub/observability"
	"community-hub/rest"
	"community-hub/search"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL   string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Email       string `env:"CHAT_EMAIL,required=true"`
	Password    string `env:"CHAT_PASSWORD,required=true"`
	DisplayName string `env:"CHAT_DISPLAY_NAME,default=Student"`
	Community   string `env:"CHAT_COMMUNITY,default=general"`
	LogLevel    string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the chat client lifecycle: configuration, authentication,
// the websocket connection, and the command loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Authenticate over REST. A failed login falls back to registration,
	// so a fresh relay works without a separate signup step.
	restClient := rest.NewClient(config.ServerURL + "/api")
	tok, err := restClient.Login(ctx, rest.LoginRequest{
		Email:    config.Email,
		Password: config.Password,
	})
	if err != nil {
		log.Info("Login failed, registering a new account", "email", config.Email)
		tok, err = restClient.Register(ctx, rest.RegisterRequest{
			Email:       config.Email,
			DisplayName: config.DisplayName,
			Password:    config.Password,
		})
		if err != nil {
			return exitRuntime, fmt.Errorf("authentication failed: %w", err)
		}
	}
	restClient.SetToken(tok.Token)

	// 4. Build the websocket client on the same identity.
	cfg := chatclient.DefaultConfig(wsEndpoint(config.ServerURL))
	cfg.Token = tok.Token
	cfg.Logger = log

	client, err := chatclient.New(cfg)
	if err != nil {
		return exitConfig, fmt.Errorf("client config: %w", err)
	}
	defer func() {
		log.Info("Closing chat client...")
		_ = client.Close()
	}()

	initial := domain.CommunityID(config.Community)
	client.RegisterCallbacks(chatclient.Callbacks{
		OnStatusChange: func(change chatclient.StatusChange) {
			fmt.Println(renderStatus(change))
			// The first successful connect triggers the initial join; after a
			// reconnect the client rejoins its active community on its own.
			if change.New == domain.StatusConnected {
				if _, ok := client.ActiveCommunity(); !ok {
					client.JoinCommunity(initial)
				}
			}
		},
		OnMessageReceived: func(m domain.Message) {
			printMessage(m)
		},
		OnError: func(err error) {
			fmt.Println(color.New(color.FgRed).Render("error: " + err.Error()))
		},
	})
	presenceSub := client.OnPresence(func(p chatclient.Presence) {
		if p.Joined {
			fmt.Printf(">>> %s joined %s\n", p.DisplayName, p.CommunityID)
		} else {
			fmt.Printf("<<< %s left %s\n", p.DisplayName, p.CommunityID)
		}
	})
	defer presenceSub.Cancel()
	historySub := client.OnHistory(func(h chatclient.History) {
		fmt.Println(color.New(color.FgCyan).Render(
			fmt.Sprintf("--- %s, last %d messages ---", h.CommunityID, len(h.Messages))))
		for _, m := range h.Messages {
			printMessage(m)
		}
	})
	defer historySub.Cancel()

	client.Connect()

	header := fmt.Sprintf("  ====== community-hub chat | %s ======", config.ServerURL)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	fmt.Println("Type to chat. Commands: /join <id>, /leave, /attach <path> [caption],")
	fmt.Println("/history [n], /find <terms> [--community id] [--author id] [--lang code] [--limit n], /stats, /quit")

	// 5. Command loop. Input is read on a separate goroutine so Ctrl+C stays
	// responsive while the scanner blocks on stdin.
	inputCh := make(chan string)
	go readInput(inputCh)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return exitOK, nil
		case line, ok := <-inputCh:
			if !ok {
				fmt.Println("\nInput closed.")
				return exitOK, nil
			}
			if done := handleLine(ctx, strings.TrimSpace(line), client, restClient, config); done {
				return exitOK, nil
			}
		}
	}
}

// handleLine executes one REPL line and reports whether the loop should end.
func handleLine(ctx context.Context, line string, client *chatclient.Client, restClient *rest.Client, config Config) bool {
	if line == "" {
		return false
	}

	switch {
	case line == "/quit":
		fmt.Println("Bye!")
		return true

	case strings.HasPrefix(line, "/join "):
		client.JoinCommunity(domain.CommunityID(strings.TrimSpace(strings.TrimPrefix(line, "/join "))))

	case line == "/leave":
		client.LeaveCommunity()

	case strings.HasPrefix(line, "/find"):
		q := search.Parse(line)
		fmt.Println(color.New(color.FgCyan).Render(fmt.Sprintf("Searching %q...", q.Terms)))
		messages, err := restClient.Search(ctx, line)
		if err != nil {
			fmt.Println(color.New(color.FgRed).Render("search failed: " + err.Error()))
			return false
		}
		renderMessages(messages)

	case strings.HasPrefix(line, "/history"):
		community, ok := client.ActiveCommunity()
		if !ok {
			fmt.Println(color.New(color.FgYellow).Render("join a community first"))
			return false
		}
		limit := 0
		if raw := strings.TrimSpace(strings.TrimPrefix(line, "/history")); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit = n
			}
		}
		messages, err := restClient.History(ctx, community, limit, nil)
		if err != nil {
			fmt.Println(color.New(color.FgRed).Render("history failed: " + err.Error()))
			return false
		}
		renderMessages(messages)

	case line == "/stats":
		stats, err := restClient.Stats(ctx)
		if err != nil {
			fmt.Println(color.New(color.FgRed).Render("stats failed: " + err.Error()))
			return false
		}
		renderStats(client.Stats(), stats)

	case strings.HasPrefix(line, "/attach "):
		sendWithImage(ctx, line, client, config)

	case strings.HasPrefix(line, "/"):
		fmt.Println(color.New(color.FgYellow).Render("unknown command: " + line))

	default:
		sendText(ctx, line, client, config)
	}
	return false
}

func sendText(ctx context.Context, text string, client *chatclient.Client, config Config) {
	community, ok := client.ActiveCommunity()
	if !ok {
		fmt.Println(color.New(color.FgYellow).Render("join a community first"))
		return
	}
	receipt := client.Send(domain.SendRequest{
		CommunityID: community,
		AuthorID:    config.Email,
		DisplayName: config.DisplayName,
		Text:        text,
	})
	if err := receipt.Wait(ctx); err != nil {
		fmt.Println(color.New(color.FgRed).Render("send failed: " + err.Error()))
	}
}

// sendWithImage handles `/attach <path> [caption]`. The file must sniff as
// an image; it travels inline as a data URI.
func sendWithImage(ctx context.Context, line string, client *chatclient.Client, config Config) {
	community, ok := client.ActiveCommunity()
	if !ok {
		fmt.Println(color.New(color.FgYellow).Render("join a community first"))
		return
	}

	args := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "/attach ")), " ", 2)
	uri, err := rest.AttachImage(args[0])
	if err != nil {
		fmt.Println(color.New(color.FgRed).Render("attach failed: " + err.Error()))
		return
	}
	caption := ""
	if len(args) == 2 {
		caption = strings.TrimSpace(args[1])
	}

	receipt := client.Send(domain.SendRequest{
		CommunityID: community,
		AuthorID:    config.Email,
		DisplayName: config.DisplayName,
		Text:        caption,
		Images:      []string{uri},
	})
	if err := receipt.Wait(ctx); err != nil {
		fmt.Println(color.New(color.FgRed).Render("send failed: " + err.Error()))
	}
}

func printMessage(m domain.Message) {
	line := fmt.Sprintf("[%s] %s: %s",
		m.CreatedAt.Local().Format(time.TimeOnly), m.DisplayName, m.Text)
	if len(m.Images) > 0 {
		line += fmt.Sprintf(" (%d image(s))", len(m.Images))
	}
	fmt.Println(line)
}

func renderStatus(change chatclient.StatusChange) string {
	text := fmt.Sprintf("*** %s -> %s", change.Old, change.New)
	if change.Err != nil {
		text += " (" + change.Err.Error() + ")"
	}
	switch change.New {
	case domain.StatusConnected:
		return color.New(color.FgGreen).Render(text)
	case domain.StatusConnecting, domain.StatusReconnecting:
		return color.New(color.FgYellow).Render(text)
	default:
		return color.New(color.FgRed).Render(text)
	}
}

// renderMessages prints search or history results, borderless to stay
// readable inside a chat stream.
func renderMessages(messages []domain.Message) {
	if len(messages) == 0 {
		fmt.Println("no messages")
		return
	}
	table := newTable([]string{"When", "Community", "Author", "Text"})
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Local().Format(time.DateTime),
			string(m.CommunityID),
			m.DisplayName,
			m.Text,
		})
	}
	table.Render()
}

func renderStats(conn chatclient.Stats, relay *observability.MonitoringStats) {
	table := newTable([]string{"Metric", "Value"})
	table.Append([]string{"Connection status", conn.Status.String()})
	table.Append([]string{"Active community", string(conn.ActiveCommunity)})
	table.Append([]string{"Reconnect attempts", strconv.Itoa(conn.ReconnectAttempts)})
	table.Append([]string{"Relay sessions", strconv.Itoa(relay.ActiveSessions)})
	table.Append([]string{"Relay communities", strconv.Itoa(relay.JoinedCommunities)})
	table.Append([]string{"Messages relayed", strconv.FormatUint(relay.MessagesIn, 10)})
	table.Append([]string{"Deliveries", strconv.FormatUint(relay.DeliveriesOut, 10)})
	table.Append([]string{"Dropped deliveries", strconv.FormatUint(relay.DroppedDeliveries, 10)})
	table.Append([]string{"Censored messages", strconv.FormatUint(relay.CensoredMessages, 10)})
	table.Append([]string{"Indexed messages", strconv.FormatUint(relay.IndexedMessages, 10)})
	table.Append([]string{"Inbound rate", fmt.Sprintf("%.1f msg/s", relay.InboundRate)})
	table.Append([]string{"Relay RSS MB", strconv.FormatUint(relay.ProcessRSSMb, 10)})
	table.Render()
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// wsEndpoint derives the websocket URL from the HTTP base URL.
func wsEndpoint(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws"
}

func readInput(dst chan<- string) {
	defer close(dst)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		dst <- scanner.Text()
	}
}
