package commands

import (
	"bytes"
	"math/rand"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/zoobzio/edgez"
	"github.com/zoobzio/edgez/logging"
)

func NewGraphCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "graph",
		Short: "Print the sensor topology graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			top := edgez.NewTopology("sensors", edgez.WithLogger(logging.NewNopLogger()))
			err = buildSensors(top, cfg, rand.New(rand.NewSource(1)), func(edgez.Summary[string]) error {
				return nil
			})
			if err != nil {
				return err
			}
			raw, err := json.Marshal(top.Graph())
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}
	addConfigFlags(command)
	return command
}
