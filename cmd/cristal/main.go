// Command cristal drives Claude Code CLI sessions and workspace terminals
// from the command line or over a local WebSocket bridge.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/cristal-core/claude"
	"github.com/zhubert/cristal-core/config"
	"github.com/zhubert/cristal-core/logger"
	"github.com/zhubert/cristal-core/terminal"
)

var (
	configPath string
	workDir    string
	debug      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cristal",
	Short: "Run Claude Code sessions and terminals for a workspace",
	Long: `Cristal runs the Claude Code CLI for one or more chat sessions, decodes
its stream-json output, and hosts interactive terminals in the same
workspace. Use "serve" to expose both over a local WebSocket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logPath, err := logger.DefaultLogPath()
		if err != nil {
			return err
		}
		if err := logger.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger.SetDebug(debug)

		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if workDir != "" {
			cfg.SetWorkingDir(workDir)
		}
		if cfg.GetWorkingDir() == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg.SetWorkingDir(cwd)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <config dir>/config.json)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "Workspace directory (default: config working_dir or the current directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Write debug logs and raw stream logs")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newChatService builds the orchestrator from cfg and writes the permission
// policy into the workspace.
func newChatService() (*claude.Service, error) {
	svc := claude.NewService(cfg.GetCLIPath(), cfg.GetWorkingDir())
	if err := applySettings(svc, cfg); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func applySettings(svc *claude.Service, c *config.Config) error {
	svc.SetCLIPath(c.GetCLIPath())
	if err := svc.SetConfigDirName(c.GetConfigDirName()); err != nil {
		return fmt.Errorf("write permission policy: %w", err)
	}
	if err := svc.SetPermissions(c.GetPermissions()); err != nil {
		return fmt.Errorf("write permission policy: %w", err)
	}
	return nil
}

// newTerminalService builds the terminal registry from terminal.yaml.
func newTerminalService() (*terminal.Service, error) {
	ts, err := config.LoadTerminalSettings("")
	if err != nil {
		return nil, fmt.Errorf("load terminal settings: %w", err)
	}
	settings := terminal.Settings{
		PythonPath:     ts.PythonPath,
		DefaultProfile: ts.DefaultProfile,
		Profiles:       ts.Profiles,
	}
	return terminal.NewService(cfg.GetWorkingDir(), settings), nil
}
