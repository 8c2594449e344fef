package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	apiclient "github.com/hoxsec/Godot-GameBackendAPI/pkg/api/client"
)

const (
	defaultAPIBase  = "http://localhost:3000"
	requestTimeout  = 15 * time.Second
	minReconnect    = time.Second
	maxReconnect    = 30 * time.Second
	timestampFormat = "15:04:05.000"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	AdminToken string `json:"admin_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = commandLogin(args)
	case "requests":
		err = commandRequests(args)
	case "rps":
		err = commandRPS(args)
	case "stats":
		err = commandStats(args)
	case "watch":
		err = commandWatch(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "Admin username")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*username) == "" {
		return errors.New("--username is required")
	}
	secret := *password
	if secret == "" {
		fmt.Print("Password: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		secret = string(bytes)
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := client.Login(ctx, *username, secret)
	if err != nil {
		return err
	}
	cfg.APIBaseURL = client.BaseURL()
	cfg.AdminToken = resp.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", resp.Admin.Username, resp.Admin.Role)
	return nil
}

func commandRequests(args []string) error {
	fs := flag.NewFlagSet("requests", flag.ExitOnError)
	since := fs.Int64("since", 0, "Only show requests with an id above this value")
	fs.Parse(args)

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	reqs, err := client.RecentRequests(ctx, token, *since)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		printRequest(r)
	}
	return nil
}

func commandRPS(args []string) error {
	fs := flag.NewFlagSet("rps", flag.ExitOnError)
	window := fs.Int("window", 5, "Lookback window in minutes (1|5|15|60)")
	fs.Parse(args)

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snap, err := client.RPS(ctx, token, *window)
	if err != nil {
		return err
	}
	printRPS(snap)
	return nil
}

func commandStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	stats, err := client.Stats(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("users\t%d (guests %d, registered %d, banned %d)\n", stats.Users.Total, stats.Users.Guests, stats.Users.Registered, stats.Users.Banned)
	fmt.Printf("kv\t%d\nboards\t%d\nscores\t%d\n", stats.KVEntries, stats.Leaderboards, stats.Scores)
	return nil
}

// commandWatch prints the live stream, reconnecting with exponential backoff
// until the server rejects the token.
func commandWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	window := fs.Int("window", 5, "Lookback window in minutes (1|5|15|60)")
	quiet := fs.Bool("quiet", false, "Only print requests, not RPS updates")
	fs.Parse(args)

	client, token, err := authedClient()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backoff := minReconnect
	for {
		connected, err := watchOnce(ctx, client, token, *window, *quiet)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, apiclient.ErrUnauthorized):
			return errors.New("stream rejected the admin token, run 'gbctl login' again")
		case connected:
			backoff = minReconnect
		}
		fmt.Fprintf(os.Stderr, "stream disconnected (%v), reconnecting in %s\n", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxReconnect)
	}
}

// watchOnce streams until the connection fails. connected reports whether any
// message arrived, which resets the reconnect backoff.
func watchOnce(ctx context.Context, client *apiclient.Client, token string, window int, quiet bool) (connected bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	stream, err := client.Stream(dialCtx, token)
	cancel()
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()
	defer stream.Close()

	if window != 5 {
		if err := stream.SetWindow(window); err != nil {
			return false, err
		}
	}
	for {
		msg, err := stream.Next()
		if err != nil {
			return connected, err
		}
		connected = true
		switch {
		case msg.Request != nil:
			printRequest(*msg.Request)
		case msg.RPS != nil && !quiet:
			printRPS(*msg.RPS)
		}
	}
}

func printRequest(r apiclient.Request) {
	user := "-"
	if r.UserID != nil {
		user = *r.UserID
	}
	fmt.Printf("%d\t%s\t%-6s %-3d %5dms\t%s\t%s\t%s\n", r.ID, r.Time().Format(timestampFormat), r.Method, r.Status, r.Duration, r.Path, r.IP, user)
}

func printRPS(s apiclient.RPSSnapshot) {
	fmt.Printf("rps[%dm/%ds] current=%.2f average=%.2f peak=%.2f total=%d\n",
		s.WindowMinutes, s.BucketSeconds, s.Stats.Current, s.Stats.Average, s.Stats.Peak, s.Stats.Total)
}

func authedClient() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.AdminToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'gbctl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "gbctl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("gbctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	gbctl login --username admin [--password secret] [--api ` + defaultAPIBase + `]
	gbctl requests [--since N]
	gbctl rps [--window 1|5|15|60]
	gbctl stats
	gbctl watch [--window 1|5|15|60] [--quiet]
	gbctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
