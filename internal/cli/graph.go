package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strelka-bio/strelka/internal/config"
	"github.com/strelka-bio/strelka/internal/pipeline"
)

// NewGraphCmd создаёт команду инспекции графа: показывает задачи,
// их зависимости и условные ветви для заданной конфигурации, не
// выполняя run.
func NewGraphCmd(outputFn func() *Output) *cobra.Command {
	var paramsFile string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the task graph for a configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := loadConfig(paramsFile, func(*config.Config) {})
			if err != nil {
				return err
			}

			g, err := pipeline.Build(cfg)
			if err != nil {
				return err
			}

			type nodeInfo struct {
				Task      string   `json:"task"`
				DependsOn []string `json:"depends_on,omitempty"`
				Ignorable bool     `json:"ignorable,omitempty"`
			}

			headers := []string{"#", "TASK", "DEPENDS ON", "IGNORABLE"}
			rows := make([][]string, 0, len(g.Order))
			infos := make([]nodeInfo, 0, len(g.Order))
			for i, node := range g.Order {
				deps := make([]string, 0, len(node.DependsOn))
				for _, dep := range node.DependsOn {
					deps = append(deps, dep.Task.Name)
				}
				ignorable := ""
				if node.Task.Ignorable {
					ignorable = "yes"
				}
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					node.Task.Name,
					strings.Join(deps, ", "),
					ignorable,
				})
				infos = append(infos, nodeInfo{
					Task:      node.Task.Name,
					DependsOn: deps,
					Ignorable: node.Task.Ignorable,
				})
			}

			out.Print(headers, rows, infos)
			return nil
		},
	}

	cmd.Flags().StringVarP(&paramsFile, "params", "p", "", "YAML parameters file")

	return cmd
}
