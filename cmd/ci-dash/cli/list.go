package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/davarch/ci-dash/internal/application"
	"github.com/davarch/ci-dash/internal/domain"
	"github.com/davarch/ci-dash/internal/infrastructure/config"
	"github.com/davarch/ci-dash/internal/infrastructure/gitlab_http"
	"github.com/spf13/cobra"
)

var (
	listFavorites bool
	listJSON      bool
)

type listedProject struct {
	ID           int64     `json:"id"`
	Path         string    `json:"path"`
	WebURL       string    `json:"web_url"`
	LastActivity time.Time `json:"last_activity"`
	Favorite     bool      `json:"favorite"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch and print the projects visible with the configured token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Resolve(cfgPath)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GitLab.Timeout)
		defer cancel()

		projects, err := gitlab_http.New(cfg.GitLab.BaseURL, cfg.GitLab.Token, cfg.GitLab.Timeout).FetchProjects(ctx)
		if err != nil {
			return err
		}

		items := listProjects(projects, cfg.UI.Favorites, listFavorites)

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PATH\tID\tLAST_ACTIVITY\tFAVORITE")
		for _, p := range items {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", p.Path, p.ID, p.LastActivity.Format(time.DateTime), p.Favorite)
		}
		_ = w.Flush()
		return nil
	},
}

// listProjects orders projects the way the dashboard does.
func listProjects(projects []domain.Project, favorites []string, onlyFavorites bool) []listedProject {
	for i := range projects {
		projects[i].Favorite = slices.Contains(favorites, projects[i].Path)
	}

	out := make([]listedProject, 0, len(projects))
	for _, p := range application.VisibleProjects(projects, "") {
		if onlyFavorites && !p.Favorite {
			continue
		}
		out = append(out, listedProject{
			ID:           p.ID,
			Path:         p.Path,
			WebURL:       p.WebURL,
			LastActivity: p.LastActivity,
			Favorite:     p.Favorite,
		})
	}
	return out
}

func init() {
	listCmd.Flags().BoolVar(&listFavorites, "favorites", false, "show only favorite projects")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	rootCmd.AddCommand(listCmd)
}
