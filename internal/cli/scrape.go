package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/gh-harvester/pkg/client"
	"github.com/Sternrassler/gh-harvester/pkg/config"
	"github.com/Sternrassler/gh-harvester/pkg/export"
	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/scraper"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type scrapeFlags struct {
	location     string
	minFollowers int
	maxRepos     int
	workers      int
	outDir       string
	usersFile    string
	reposFile    string
	sqlitePath   string
	redisURL     string
	metricsAddr  string
	rps          float64
	baseURL      string
}

func (c *CLI) scrapeCommand() *cobra.Command {
	var f scrapeFlags

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Search users by location and list their repositories",
		Long: `Search GitHub users whose location matches and who have at least the given
number of followers, fetch each full profile, then list up to --max-repos
repositories per user (most recently pushed first).

The token is read from GITHUB_TOKEN or the config file; when neither is set
it is prompted for on stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			applyScrapeFlags(cmd, &cfg, f)
			return c.runScrape(cmd.Context(), cfg)
		},
	}

	d := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&f.location, "location", d.Location, "location qualifier for the user search")
	flags.IntVar(&f.minFollowers, "min-followers", d.MinFollowers, "minimum number of followers")
	flags.IntVar(&f.maxRepos, "max-repos", d.MaxRepos, "maximum repositories per user")
	flags.IntVar(&f.workers, "workers", d.Workers, "users whose repositories are listed concurrently")
	flags.StringVarP(&f.outDir, "out", "o", d.OutputDir, "output directory for the CSV files")
	flags.StringVar(&f.usersFile, "users-file", d.UsersFile, "users CSV file name")
	flags.StringVar(&f.reposFile, "repos-file", d.ReposFile, "repositories CSV file name")
	flags.StringVar(&f.sqlitePath, "sqlite", "", "also store the run in this SQLite database")
	flags.StringVar(&f.redisURL, "redis-url", "", "Redis for the shared rate limit state and ETag cache")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	flags.Float64Var(&f.rps, "rps", 0, "client-side requests per second (0 = unpaced)")
	flags.StringVar(&f.baseURL, "base-url", d.BaseURL, "GitHub API base URL")

	return cmd
}

// applyScrapeFlags overrides cfg with the flags set on the command line.
func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config, f scrapeFlags) {
	changed := cmd.Flags().Changed
	if changed("location") {
		cfg.Location = f.location
	}
	if changed("min-followers") {
		cfg.MinFollowers = f.minFollowers
	}
	if changed("max-repos") {
		cfg.MaxRepos = f.maxRepos
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("out") {
		cfg.OutputDir = f.outDir
	}
	if changed("users-file") {
		cfg.UsersFile = f.usersFile
	}
	if changed("repos-file") {
		cfg.ReposFile = f.reposFile
	}
	if changed("sqlite") {
		cfg.SQLitePath = f.sqlitePath
	}
	if changed("redis-url") {
		cfg.RedisURL = f.redisURL
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if changed("rps") {
		cfg.RequestsPerSecond = f.rps
	}
	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
}

func (c *CLI) runScrape(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger("cli")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Token == "" {
		cfg.Token = promptToken(c.in, c.out)
	}
	if cfg.Token == "" {
		fmt.Fprintln(c.out, "Token is required. Exiting...")
		return client.ErrMissingToken
	}

	clientCfg := client.DefaultConfig(cfg.Token)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Timeout = cfg.Timeout
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.UserAgent = "ghharvest/" + version

	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	if redisOpts != nil {
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", redisOpts.Addr, err)
		}
		logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
		clientCfg.Redis = rdb
	}

	if cfg.MetricsAddr != "" {
		stop, err := startMetricsServer(cfg.MetricsAddr, logger)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer stop()
	}

	gh, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer gh.Close()

	runID := uuid.NewString()

	csvSink, err := export.NewCSVSink(cfg.OutputDir, cfg.UsersFile, cfg.ReposFile)
	if err != nil {
		return err
	}
	sinks := export.MultiSink{csvSink}
	if cfg.SQLitePath != "" {
		sqliteSink, err := export.NewSQLiteSink(ctx, cfg.SQLitePath, runID)
		if err != nil {
			return err
		}
		sinks = append(sinks, sqliteSink)
	}
	defer sinks.Close()

	s := scraper.New(gh, scraper.Config{
		MaxRepos: cfg.MaxRepos,
		Workers:  cfg.Workers,
	})
	result, err := s.Harvest(ctx, scraper.Query{
		RunID:        runID,
		Location:     cfg.Location,
		MinFollowers: cfg.MinFollowers,
		MaxRepos:     cfg.MaxRepos,
	}, sinks)
	if err != nil {
		return err
	}

	if len(result.Users) > 0 {
		fmt.Fprintf(c.out, "Saved %d users to '%s'\n", len(result.Users), csvSink.UsersPath())
	} else {
		fmt.Fprintln(c.out, "No users found.")
	}
	if len(result.Repositories) > 0 {
		fmt.Fprintf(c.out, "Saved %d repositories to '%s'\n", len(result.Repositories), csvSink.RepositoriesPath())
	} else {
		fmt.Fprintln(c.out, "No repositories found.")
	}
	if cfg.SQLitePath != "" {
		fmt.Fprintf(c.out, "Stored run %s in '%s'\n", runID, cfg.SQLitePath)
	}
	return nil
}

// promptToken asks for the token on out and reads one line from in.
func promptToken(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Enter your GitHub token: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return ""
	}
	return strings.TrimSpace(line)
}
