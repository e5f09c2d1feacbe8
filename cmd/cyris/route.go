package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cyris/internal/routing"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect routing directives",
}

var routeDecodeCmd = &cobra.Command{
	Use:   "decode [text]",
	Short: "Decode a router model reply",
	Long: `Decode prints what the server would do with a router model reply: forward
the extracted prompt to the named model, or show the reply as the answer.
With no argument the reply is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRouteDecode,
}

func init() {
	routeCmd.AddCommand(routeDecodeCmd)
	rootCmd.AddCommand(routeCmd)
}

func runRouteDecode(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(data))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(routing.Decode(text))
}
