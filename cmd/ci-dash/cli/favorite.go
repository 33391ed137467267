package cli

import (
	"fmt"
	"strings"

	"github.com/davarch/ci-dash/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var favoriteCmd = &cobra.Command{
	Use:   "favorite <group/project>",
	Short: "Add a project to the favorites in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFavorite(args[0], true)
	},
}

var unfavoriteCmd = &cobra.Command{
	Use:   "unfavorite <group/project>",
	Short: "Remove a project from the favorites in config.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setFavorite(args[0], false)
	},
}

// setFavorite edits the file as written, so overrides from the
// environment never end up on disk.
func setFavorite(project string, fav bool) error {
	project = strings.Trim(strings.TrimSpace(project), "/")
	if project == "" {
		return fmt.Errorf("%w: empty project path", config.ErrInvalid)
	}

	path, err := config.Resolve(cfgPath)
	if err != nil {
		return err
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}

	if !cfg.SetFavorite(project, fav) {
		fmt.Printf("no change (%s)\n", project)
		return nil
	}

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("%w: %v", config.ErrStore, err)
	}

	if fav {
		fmt.Printf("favorite: %s\n", project)
	} else {
		fmt.Printf("unfavorite: %s\n", project)
	}
	return nil
}

func completeFavorites(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	path, err := config.Resolve(cfgPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	out := make([]string, 0, len(cfg.UI.Favorites))
	for _, p := range cfg.UI.Favorites {
		if strings.HasPrefix(p, toComplete) {
			out = append(out, p)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	unfavoriteCmd.ValidArgsFunction = completeFavorites
	favoriteCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(unfavoriteCmd)
}
