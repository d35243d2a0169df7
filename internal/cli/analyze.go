package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/analysis"
	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/spf13/cobra"
)

type analyzeFlags struct {
	usersPath string
	reposPath string
	location  string
	n         int
	since     string
}

// analyzeQuery answers one question and prints the answer.
type analyzeQuery struct {
	name  string
	short string
	run   func(c *CLI, f analyzeFlags) error
}

var analyzeQueries = []analyzeQuery{
	{"top-followers", "logins with the most followers in --location", (*CLI).topFollowers},
	{"earliest", "logins that joined earliest in --location", (*CLI).earliest},
	{"second-language", "second most used language of users joined after --since", (*CLI).secondLanguage},
	{"corr-followers-repos", "correlation of followers and public repositories", (*CLI).corrFollowersRepos},
	{"corr-projects-wiki", "correlation of projects and wiki being enabled", (*CLI).corrProjectsWiki},
	{"slope-followers-repos", "additional followers per public repository", (*CLI).slopeFollowersRepos},
	{"slope-bio-followers", "additional followers per word in the bio", (*CLI).slopeBioFollowers},
}

func (c *CLI) analyzeCommand() *cobra.Command {
	var f analyzeFlags

	names := make([]string, len(analyzeQueries))
	var help strings.Builder
	for i, q := range analyzeQueries {
		names[i] = q.name
		fmt.Fprintf(&help, "  %-22s %s\n", q.name, q.short)
	}

	cmd := &cobra.Command{
		Use:       "analyze <query>",
		Short:     "Answer questions about harvested CSV files",
		Long:      "Queries:\n" + help.String(),
		ValidArgs: names,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("users") {
				f.usersPath = filepath.Join(c.cfg.OutputDir, c.cfg.UsersFile)
			}
			if !cmd.Flags().Changed("repos") {
				f.reposPath = filepath.Join(c.cfg.OutputDir, c.cfg.ReposFile)
			}
			if !cmd.Flags().Changed("location") {
				f.location = c.cfg.Location
			}
			for _, q := range analyzeQueries {
				if q.name == args[0] {
					return q.run(c, f)
				}
			}
			return fmt.Errorf("unknown query %q", args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.usersPath, "users", "users.csv", "users CSV file")
	flags.StringVar(&f.reposPath, "repos", "repositories.csv", "repositories CSV file")
	flags.StringVar(&f.location, "location", "Austin", "location filter (case-insensitive substring)")
	flags.IntVarP(&f.n, "n", "n", 5, "number of logins to print")
	flags.StringVar(&f.since, "since", "2020-01-01", "join date cutoff (YYYY-MM-DD)")

	return cmd
}

func (c *CLI) topFollowers(f analyzeFlags) error {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, strings.Join(analysis.TopByFollowers(users, f.location, f.n), ","))
	return nil
}

func (c *CLI) earliest(f analyzeFlags) error {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return err
	}
	logins := analysis.EarliestCreated(users, f.location, f.n)
	if len(logins) == 0 {
		fmt.Fprintf(c.out, "No users found from %s.\n", f.location)
		return nil
	}
	fmt.Fprintln(c.out, strings.Join(logins, ","))
	return nil
}

func (c *CLI) secondLanguage(f analyzeFlags) error {
	since, err := time.Parse(time.DateOnly, f.since)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}
	users, repos, err := readBoth(f)
	if err != nil {
		return err
	}
	lang, err := analysis.SecondMostPopularLanguage(users, repos, since)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "The second most popular programming language among users who joined after %s is: %s with %d repositories.\n",
		f.since, lang.Language, lang.Count)
	return nil
}

func (c *CLI) corrFollowersRepos(f analyzeFlags) error {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return err
	}
	r, err := analysis.FollowersReposCorrelation(users)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "The correlation between the number of followers and the number of public repositories is: %.3f\n", r)
	return nil
}

func (c *CLI) corrProjectsWiki(f analyzeFlags) error {
	repos, err := analysis.ReadRepositoriesFile(f.reposPath)
	if err != nil {
		return err
	}
	r, err := analysis.ProjectsWikiCorrelation(repos)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "The correlation between having projects enabled and having a wiki enabled is: %.3f\n", r)
	return nil
}

func (c *CLI) slopeFollowersRepos(f analyzeFlags) error {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return err
	}
	slope, err := analysis.FollowersPerRepoSlope(users)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Estimated additional followers per additional public repository: %.3f\n", slope)
	return nil
}

func (c *CLI) slopeBioFollowers(f analyzeFlags) error {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return err
	}
	slope, err := analysis.BioWordCountSlope(users)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%.3f\n", slope)
	return nil
}

func readBoth(f analyzeFlags) ([]model.UserRecord, []model.RepositoryRecord, error) {
	users, err := analysis.ReadUsersFile(f.usersPath)
	if err != nil {
		return nil, nil, err
	}
	repos, err := analysis.ReadRepositoriesFile(f.reposPath)
	if err != nil {
		return nil, nil, err
	}
	return users, repos, nil
}
