package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/logwell/logwell/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	SessionToken string `json:"session_token"`
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
	case "project":
		err = commandProject(args)
	case "logs":
		err = commandLogs(args)
	case "send":
		err = commandSend(args)
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

// commandLogin stores a session token issued by the dashboard. The token is
// read from the terminal without echo when not passed as a flag.
func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "Session token (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:5173)")
	fs.Parse(args)

	secret := strings.TrimSpace(*token)
	if secret == "" {
		fmt.Print("Session token: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Print("\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		return errors.New("session token is required")
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := client.ListProjects(ctx, secret); err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	cfg.SessionToken = secret
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandProject(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: logwell project [list|create|rotate|retention|delete]")
	}
	switch args[0] {
	case "list":
		return projectList(args[1:])
	case "create":
		return projectCreate(args[1:])
	case "rotate":
		return projectRotate(args[1:])
	case "retention":
		return projectRetention(args[1:])
	case "delete":
		return projectDelete(args[1:])
	default:
		return fmt.Errorf("unknown project command: %s", args[0])
	}
}

func sessionClient() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.SessionToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'logwell login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func projectList(args []string) error {
	fs := flag.NewFlagSet("project list", flag.ExitOnError)
	fs.Parse(args)

	client, token, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	projects, err := client.ListProjects(ctx, token)
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, formatRetention(p.RetentionDays))
	}
	return nil
}

func projectCreate(args []string) error {
	fs := flag.NewFlagSet("project create", flag.ExitOnError)
	name := fs.String("name", "", "Project name")
	retention := fs.Int("retention", -1, "Retention in days (0 keeps logs forever, omit for server default)")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	client, token, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	project, err := client.CreateProject(ctx, token, *name, retentionFlag(*retention))
	if err != nil {
		return err
	}
	fmt.Printf("project created: %s (%s)\napi key: %s\n", project.ID, project.Name, project.APIKey)
	return nil
}

func projectRotate(args []string) error {
	fs := flag.NewFlagSet("project rotate", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	client, token, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	key, err := client.RotateKey(ctx, token, *projectID)
	if err != nil {
		return err
	}
	fmt.Printf("api key rotated: %s\n", key)
	return nil
}

func projectRetention(args []string) error {
	fs := flag.NewFlagSet("project retention", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	days := fs.Int("days", -1, "Retention in days (0 keeps logs forever, -1 restores the default)")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	client, token, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	project, err := client.SetRetention(ctx, token, *projectID, retentionFlag(*days))
	if err != nil {
		return err
	}
	fmt.Printf("retention for %s: %s\n", project.Name, formatRetention(project.RetentionDays))
	return nil
}

func projectDelete(args []string) error {
	fs := flag.NewFlagSet("project delete", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	client, token, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteProject(ctx, token, *projectID); err != nil {
		return err
	}
	fmt.Println("project deleted")
	return nil
}

func commandLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	projectID := fs.String("project", "", "Project identifier")
	levels := fs.String("level", "", "Comma separated levels")
	search := fs.String("search", "", "Full-text search terms")
	since := fs.Duration("since", 0, "Only logs newer than this duration")
	limit := fs.Int("limit", 100, "Page size (100-500)")
	pages := fs.Int("pages", 1, "Number of pages to fetch")
	fs.Parse(args)

	if strings.TrimSpace(*projectID) == "" {
		return errors.New("--project is required")
	}
	client, token, err := sessionClient()
	if err != nil {
		return err
	}

	query := apiclient.LogQuery{Search: *search, Limit: *limit}
	if strings.TrimSpace(*levels) != "" {
		query.Levels = strings.Split(*levels, ",")
	}
	if *since > 0 {
		query.From = time.Now().Add(-*since)
	}

	color := term.IsTerminal(int(os.Stdout.Fd()))
	for page := 0; page < *pages; page++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		result, err := client.QueryLogs(ctx, token, *projectID, query)
		cancel()
		if err != nil {
			return err
		}
		for _, entry := range result.Logs {
			printLog(os.Stdout, entry, color)
		}
		if !result.HasMore || result.NextCursor == nil {
			return nil
		}
		query.Cursor = *result.NextCursor
	}
	return nil
}

func commandSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	apiKey := fs.String("key", os.Getenv("LOGWELL_API_KEY"), "Project API key (defaults to $LOGWELL_API_KEY)")
	level := fs.String("level", "info", "Log level")
	message := fs.String("message", "", "Log message")
	service := fs.String("service", "", "Service name recorded in metadata")
	fs.Parse(args)

	if strings.TrimSpace(*apiKey) == "" {
		return errors.New("--key is required")
	}
	if strings.TrimSpace(*message) == "" {
		return errors.New("--message is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Ingest(ctx, *apiKey, []apiclient.LogEntry{{
		Level:   *level,
		Message: *message,
		Service: *service,
	}})
	if err != nil {
		return err
	}
	for _, entry := range result.Logs {
		fmt.Printf("stored %s at %s\n", entry.ID, entry.Timestamp.Format(time.RFC3339Nano))
	}
	return nil
}

var levelColors = map[string]string{
	"debug": "\033[90m",
	"info":  "\033[36m",
	"warn":  "\033[33m",
	"error": "\033[31m",
	"fatal": "\033[35m",
}

func printLog(w io.Writer, entry apiclient.Log, color bool) {
	level := strings.ToUpper(entry.Level)
	if color {
		if code, ok := levelColors[entry.Level]; ok {
			level = code + level + "\033[0m"
		}
	}
	fmt.Fprintf(w, "%s %-5s %s", entry.Timestamp.Format(time.RFC3339Nano), level, entry.Message)
	if len(entry.Metadata) > 0 {
		fmt.Fprintf(w, " %s", entry.Metadata)
	}
	fmt.Fprintln(w)
}

func retentionFlag(days int) *int {
	if days < 0 {
		return nil
	}
	return &days
}

func formatRetention(days *int) string {
	switch {
	case days == nil:
		return "default"
	case *days == 0:
		return "forever"
	default:
		return fmt.Sprintf("%dd", *days)
	}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:5173"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:5173"
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
	if override := strings.TrimSpace(os.Getenv("LOGWELL_CONFIG")); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "logwell", "config.json"), nil
}

func printUsage() {
	fmt.Printf("logwell CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	logwell login [--token <session-token>] [--api http://localhost:5173]
	logwell project list
	logwell project create --name <name> [--retention days]
	logwell project rotate --project <project-id>
	logwell project retention --project <project-id> [--days N]
	logwell project delete --project <project-id>
	logwell logs --project <project-id> [--level warn,error] [--search text] [--since 1h] [--limit N] [--pages N]
	logwell send --key <api-key> --message <text> [--level info] [--service name]
	logwell version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
