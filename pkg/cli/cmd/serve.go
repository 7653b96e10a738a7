package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevelan1995/forgebuild/pkg/api"
	"github.com/stevelan1995/forgebuild/pkg/cli/output"
)

var servePort int

// serveCmd 启动HTTP服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP API与进度推送服务",
	Long: `提供运行历史查询、HTML报告、构建/测试触发的REST API，
以及/ws/progress上的WebSocket实时进度流。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := loadEngine()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer eng.Close()

		port := eng.Config().Forgebuild.Server.Port
		if servePort > 0 {
			port = servePort
		}

		router := api.NewRouter(eng)
		output.Info("forgebuild API listening on :%d", port)
		return router.Run(fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "监听端口 (默认取配置)")
}
