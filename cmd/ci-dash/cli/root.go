package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/davarch/ci-dash/internal/domain"
	"github.com/davarch/ci-dash/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath         string
	printConfigPath bool
	showVersion     bool
	version         = "dev"
)

// errStartup marks failures that prevent the dashboard from starting
// even though the configuration is fine.
var errStartup = errors.New("startup failed")

var rootCmd = &cobra.Command{
	Use:           "ci-dash",
	Short:         "Terminal dashboard for GitLab CI pipelines",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version)
			return nil
		}
		if printConfigPath {
			path, err := config.Resolve(cfgPath)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		}
		return runDashboard(cmd)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "ci-dash:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps err to the process exit status: 1 for configuration and
// usage errors, 2 when the dashboard cannot start, 3 when GitLab could
// not be queried.
func exitCode(err error) int {
	var fe *domain.FetchError
	switch {
	case errors.Is(err, config.ErrStore), errors.Is(err, errStartup):
		return 2
	case errors.As(err, &fe):
		return 3
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml (default $XDG_CONFIG_HOME/ci-dash/config.yaml)")
	rootCmd.Flags().BoolVarP(&printConfigPath, "print-config-path", "p", false, "print the config file path and exit")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "print version and exit")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	})

	comp := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				return rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				return rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}

	rootCmd.AddCommand(comp)
}
