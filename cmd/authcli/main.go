package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/authhub/authhub/internal/client"
	"github.com/authhub/authhub/internal/config"
	"github.com/authhub/authhub/internal/identity"
	"github.com/authhub/authhub/internal/logger"
	"github.com/authhub/authhub/internal/version"
)

type cliOptions struct {
	configPath  string
	apiBaseURL  string
	secret      string
	audience    string
	account     string
	password    string
	phone       string
	email       string
	userID      string
	code        string
	requestID   string
	device      string
	timeout     time.Duration
	showVersion bool
}

func main() {
	opts := parseFlags()
	if opts.showVersion {
		fmt.Printf("AuthHub CLI %s\n", version.GetInfo())
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if strings.TrimSpace(opts.apiBaseURL) == "" {
		opts.apiBaseURL = cfg.Provider.BaseURL
	}
	secret := strings.TrimSpace(opts.secret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("SERVICE_SECRET"))
	}
	if secret == "" {
		secret = strings.TrimSpace(cfg.Auth.ServiceSecret)
	}
	if secret == "" {
		logger.Error("service secret is required; pass --secret or set SERVICE_SECRET")
		os.Exit(1)
	}

	cli, err := client.New(client.Config{
		BaseURL:       opts.apiBaseURL,
		ServiceSecret: secret,
		Timeout:       opts.timeout,
	})
	if err != nil {
		logger.Error("client init", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	command := strings.TrimSpace(flag.Arg(0))
	if command == "" {
		usage()
		os.Exit(1)
	}
	if err := runCommand(ctx, cli, command, opts); err != nil {
		logger.Error("command failed", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cli *client.Client, command string, opts cliOptions) error {
	audience, err := identity.ParseAudience(opts.audience)
	if err != nil && needsAudience(command) {
		return err
	}

	switch command {
	case "login":
		token, err := cli.LoginByCredentials(ctx, audience, opts.account, opts.password, opts.code, opts.requestID)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "login-id":
		token, err := cli.LoginByID(ctx, audience, opts.userID, opts.device)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "login-account":
		token, err := cli.LoginByAccount(ctx, audience, opts.account, opts.device)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "login-phone":
		token, err := cli.LoginByPhone(ctx, audience, opts.phone, opts.device)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "login-email":
		token, err := cli.LoginByEmail(ctx, audience, opts.email, opts.device)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	case "lookup":
		return runLookup(ctx, cli, audience, opts)
	case "captcha":
		var enabled bool
		if audience == identity.AudienceCustomer {
			enabled, err = cli.CaptchaEnabledForC(ctx)
		} else {
			enabled, err = cli.CaptchaEnabledForB(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Println(enabled)
		return nil
	case "sessions":
		counts, err := cli.SessionCount(ctx)
		if err != nil {
			return err
		}
		return printJSON(counts)
	case "roles":
		records, err := cli.GetRolesByUserID(ctx, opts.userID)
		if err != nil {
			return err
		}
		return printRecords(records)
	case "register":
		return cli.Register(ctx, opts.account, opts.password)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runLookup(ctx context.Context, cli *client.Client, audience identity.Audience, opts cliOptions) error {
	if audience == identity.AudienceCustomer {
		var (
			user *identity.CustomerUser
			err  error
		)
		switch {
		case opts.userID != "":
			user, err = cli.GetCustomerUserByID(ctx, opts.userID)
		case opts.account != "":
			user, err = cli.GetCustomerUserByAccount(ctx, opts.account)
		case opts.phone != "":
			user, err = cli.GetCustomerUserByPhone(ctx, opts.phone)
		case opts.email != "":
			user, err = cli.GetCustomerUserByEmail(ctx, opts.email)
		default:
			return fmt.Errorf("lookup needs one of --id, --account, --phone, --email")
		}
		if err != nil {
			return err
		}
		if user == nil {
			fmt.Println("not found")
			return nil
		}
		return printJSON(user)
	}

	var (
		user *identity.BackOfficeUser
		err  error
	)
	switch {
	case opts.userID != "":
		user, err = cli.GetBackOfficeUserByID(ctx, opts.userID)
	case opts.account != "":
		user, err = cli.GetBackOfficeUserByAccount(ctx, opts.account)
	case opts.phone != "":
		user, err = cli.GetBackOfficeUserByPhone(ctx, opts.phone)
	case opts.email != "":
		user, err = cli.GetBackOfficeUserByEmail(ctx, opts.email)
	default:
		return fmt.Errorf("lookup needs one of --id, --account, --phone, --email")
	}
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Println("not found")
		return nil
	}
	return printJSON(user)
}

func needsAudience(command string) bool {
	switch command {
	case "sessions", "roles", "register":
		return false
	}
	return true
}

func printJSON(value any) error {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printRecords(records []identity.Record) error {
	if records == nil {
		fmt.Println("absent")
		return nil
	}
	for _, record := range records {
		fmt.Println(string(record))
	}
	return nil
}

func parseFlags() cliOptions {
	var opts cliOptions
	defaultConfig := os.Getenv("CONFIG_PATH")
	if strings.TrimSpace(defaultConfig) == "" {
		defaultConfig = config.DefaultConfigPath
	}

	flag.StringVar(&opts.configPath, "config", defaultConfig, "Path to config.toml")
	flag.StringVar(&opts.apiBaseURL, "api-url", "", "Provider base URL (e.g. http://127.0.0.1:8080)")
	flag.StringVar(&opts.secret, "secret", "", "Shared service secret (or set SERVICE_SECRET)")
	flag.StringVar(&opts.audience, "audience", "b", "Audience: b (back office) or c (customer)")
	flag.StringVar(&opts.account, "account", "", "Account name")
	flag.StringVar(&opts.password, "password", "", "Password")
	flag.StringVar(&opts.phone, "phone", "", "Phone number")
	flag.StringVar(&opts.email, "email", "", "Email address")
	flag.StringVar(&opts.userID, "id", "", "User ID")
	flag.StringVar(&opts.code, "code", "", "Verification code")
	flag.StringVar(&opts.requestID, "request-id", "", "Verification code request ID")
	flag.StringVar(&opts.device, "device", "cli", "Device label recorded with the login")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.Parse()

	return opts
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: authcli [flags] <command>

Commands:
  login          credential login (--audience --account --password [--code --request-id])
  login-id       federated login by user ID (--audience --id)
  login-account  federated login by account (--audience --account)
  login-phone    federated login by phone (--audience --phone)
  login-email    federated login by email (--audience --email)
  lookup         fetch a user (--audience plus one of --id --account --phone --email)
  captcha        print whether captcha is enabled (--audience)
  sessions       print online session counts
  roles          print role records (--id)
  register       register a customer account (--account --password)`)
}
