package main

import (
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/chromux/internal/appconfig"
	"pkt.systems/chromux/internal/chromeproc"
	"pkt.systems/chromux/internal/display"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run chromux diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			serviceCfg, err := cfg.ServiceConfig()
			if err != nil {
				return err
			}
			for name, ws := range serviceCfg.Workspaces {
				logger.Info("doctor workspace ok", "workspace", name, "port", ws.Port, "profile", ws.ProfileDirectory)
			}
			if serviceCfg.DefaultWorkspace != "" {
				logger.Info("doctor default workspace", "workspace", serviceCfg.DefaultWorkspace)
			}

			binary, err := chromeproc.ResolveExecutable(cfg.Chrome.Path)
			if err != nil {
				logger.Error("doctor chrome binary missing", "err", err)
				return err
			}
			logger.Info("doctor chrome binary ok", "binary", binary)

			resolver := display.NewResolver(cfg.DisplayResolverConfig(), logger)
			resolver.Refresh()
			if info := resolver.Resolve(cmd.Context()); info != nil {
				logger.Info("doctor display placement ok", "x", info.OriginX, "y", info.OriginY, "width", info.Width, "height", info.Height)
			} else {
				logger.Info("doctor display placement unavailable; launches fall back to headless")
			}

			logger.Info("doctor ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
