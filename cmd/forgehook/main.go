package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgehook/forgehook/internal/config"
	"github.com/forgehook/forgehook/internal/gitea"
	"github.com/forgehook/forgehook/internal/log"
	"github.com/forgehook/forgehook/internal/provision"
	"github.com/forgehook/forgehook/internal/storage"
	"github.com/forgehook/forgehook/internal/store"
	"github.com/forgehook/forgehook/internal/tui/watch"
	"github.com/forgehook/forgehook/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "org":
		os.Exit(runOrgNoun(args))
	case "install":
		os.Exit(runInstallNoun(args))
	case "repo":
		os.Exit(runRepoNoun(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("forgehook version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`forgehook - Source-control webhook ingestion service

Usage:
  forgehook <command> [flags]

Commands:
  serve             Start the webhook receiver in foreground
  org add           Create a local organization
  install add       Connect a provider account (mints the webhook secret)
  repo add          Track a repository and install its webhook
  repo list         Show tracked repositories for an organization
  watch             Live monitor of recent webhook deliveries

General:
  version           Show version information
  help              Show this help message

All commands accept --config pointing at the YAML configuration file
(default: ./forgehook.yaml, or $FORGEHOOK_CONFIG).
`)
}

// environment bundles what every command needs after startup.
type environment struct {
	cfg   *config.Config
	db    *sql.DB
	store *store.Store
}

func configFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("FORGEHOOK_CONFIG")
	if def == "" {
		def = "forgehook.yaml"
	}
	return fs.String("config", def, "path to configuration file")
}

func setup(ctx context.Context, configPath string) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel)

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, db: db, store: store.New(db)}, nil
}

func (e *environment) close() {
	_ = e.db.Close()
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	maxBody, err := config.ParseMaxBodySize(env.cfg.Webhook.MaxBodySize)
	if err != nil {
		return fail(err)
	}

	server := webhook.New(webhook.Config{
		Listen:           env.cfg.Webhook.Listen,
		Provider:         env.cfg.Provider.Key,
		SignatureHeader:  env.cfg.Provider.SignatureHeader,
		EventHeader:      env.cfg.Provider.EventHeader,
		SkipCommitMarker: env.cfg.Provider.SkipCommitMarker,
		MaxBodySize:      maxBody,
	}, env.store, log.WithComponent("webhook"))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return 0
}

func runOrgNoun(args []string) int {
	if len(args) < 1 || args[0] != "add" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook org add --slug <slug>")
		return 1
	}

	fs := flag.NewFlagSet("org add", flag.ExitOnError)
	configPath := configFlag(fs)
	slug := fs.String("slug", "", "organization slug")
	_ = fs.Parse(args[1:])

	if *slug == "" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook org add --slug <slug>")
		return 1
	}

	ctx := context.Background()
	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	org, err := env.store.CreateOrganization(ctx, *slug)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("organization %s created (id %s)\n", org.Slug, org.ID)
	return 0
}

func runInstallNoun(args []string) int {
	if len(args) < 1 || args[0] != "add" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook install add --host <host> --account <account> [--org <slug>]")
		return 1
	}

	fs := flag.NewFlagSet("install add", flag.ExitOnError)
	configPath := configFlag(fs)
	host := fs.String("host", "", "provider instance host (e.g. gitea.example.com)")
	account := fs.String("account", "", "provider account or organization name")
	orgSlug := fs.String("org", "", "organization slug to link the installation to")
	_ = fs.Parse(args[1:])

	if *host == "" || *account == "" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook install add --host <host> --account <account> [--org <slug>]")
		return 1
	}

	ctx := context.Background()
	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	svc := provision.New(env.store, nil, log.WithComponent("provision"))
	inst, err := svc.CreateInstallation(ctx, env.cfg.Provider.Key, *host, *account)
	if err != nil {
		return fail(err)
	}

	if *orgSlug != "" {
		org, err := env.store.OrganizationBySlug(ctx, *orgSlug)
		if err != nil {
			return fail(fmt.Errorf("link organization %q: %w", *orgSlug, err))
		}
		if err := env.store.LinkInstallation(ctx, inst.ID, org.ID); err != nil {
			return fail(err)
		}
	}

	fmt.Printf("installation %s created (id %s)\n", inst.ExternalID, inst.ID)
	fmt.Printf("webhook secret: %s\n", provision.WebhookSecret(inst))
	return 0
}

func runRepoNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: forgehook repo <add|list> [flags]")
		return 1
	}

	switch args[0] {
	case "add":
		return runRepoAdd(args[1:])
	case "list":
		return runRepoList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown repo action: %s\n", args[0])
		return 1
	}
}

func runRepoAdd(args []string) int {
	fs := flag.NewFlagSet("repo add", flag.ExitOnError)
	configPath := configFlag(fs)
	orgSlug := fs.String("org", "", "organization slug")
	instExternalID := fs.String("install", "", "installation external id (host:account)")
	name := fs.String("name", "", "repository full name (owner/name)")
	baseURL := fs.String("base-url", "", "provider base URL (e.g. https://gitea.example.com)")
	token := fs.String("token", "", "provider access token")
	refreshToken := fs.String("refresh-token", "", "provider refresh token")
	clientID := fs.String("client-id", "", "OAuth application client id")
	clientSecret := fs.String("client-secret", "", "OAuth application client secret")
	insecure := fs.Bool("insecure", false, "skip TLS certificate verification")
	_ = fs.Parse(args)

	if *orgSlug == "" || *instExternalID == "" || *name == "" || *baseURL == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook repo add --org <slug> --install <host:account> --name <owner/name> --base-url <url> --token <token>")
		return 1
	}

	ctx := context.Background()
	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	if env.cfg.Provider.CallbackURL == "" {
		return fail(fmt.Errorf("provider.callback_url must be configured to register webhooks"))
	}

	org, err := env.store.OrganizationBySlug(ctx, *orgSlug)
	if err != nil {
		return fail(fmt.Errorf("organization %q: %w", *orgSlug, err))
	}
	inst, err := env.store.InstallationByExternalID(ctx, env.cfg.Provider.Key, *instExternalID)
	if err != nil {
		return fail(fmt.Errorf("installation %q: %w", *instExternalID, err))
	}

	client, err := gitea.New(gitea.Config{
		BaseURL:      *baseURL,
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
		VerifySSL:    !*insecure,
	}, gitea.Credentials{
		AccessToken:  *token,
		RefreshToken: *refreshToken,
	}, log.WithComponent("gitea"))
	if err != nil {
		return fail(err)
	}

	svc := provision.New(env.store, client, log.WithComponent("provision"))
	repo, err := svc.RegisterRepository(ctx, inst, org.ID, *name, env.cfg.Provider.CallbackURL)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("repository %s registered (id %s)\n", repo.ExternalID, repo.ID)
	return 0
}

func runRepoList(args []string) int {
	fs := flag.NewFlagSet("repo list", flag.ExitOnError)
	configPath := configFlag(fs)
	orgSlug := fs.String("org", "", "organization slug")
	_ = fs.Parse(args)

	if *orgSlug == "" {
		fmt.Fprintln(os.Stderr, "Usage: forgehook repo list --org <slug>")
		return 1
	}

	ctx := context.Background()
	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	org, err := env.store.OrganizationBySlug(ctx, *orgSlug)
	if err != nil {
		return fail(fmt.Errorf("organization %q: %w", *orgSlug, err))
	}
	repos, err := env.store.RepositoriesForOrganization(ctx, org.ID)
	if err != nil {
		return fail(err)
	}

	if len(repos) == 0 {
		fmt.Println("no repositories tracked")
		return 0
	}
	for _, repo := range repos {
		fmt.Printf("%s\t%s\t%s\n", repo.Name, repo.ExternalID, repo.URL)
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := configFlag(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	env, err := setup(ctx, *configPath)
	if err != nil {
		return fail(err)
	}
	defer env.close()

	if err := watch.Run(env.store); err != nil {
		return fail(err)
	}
	return 0
}
