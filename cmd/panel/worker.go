package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HsiangNianian/matrixpanel/internal/offline"
	"github.com/HsiangNianian/matrixpanel/internal/protocol"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Send control messages to a running offline proxy",
}

var workerAddr string

func init() {
	workerCmd.PersistentFlags().StringVar(&workerAddr, "addr", "http://localhost:8090", "Base URL of the running serve command")

	workerCmd.AddCommand(
		controlCommand("version", "Print the cache version", protocol.ControlGetVersion),
		controlCommand("skip-waiting", "Activate an installed worker now", protocol.ControlSkipWaiting),
		controlCommand("clear-cache", "Delete every cache", protocol.ControlClearCache),
		&cobra.Command{
			Use:   "set-ip IP",
			Short: "Retarget the proxy at another device",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendControl(cmd, protocol.ControlMessage{Type: protocol.ControlSetDeviceIP, IP: args[0]})
			},
		},
	)
	rootCmd.AddCommand(workerCmd)
}

func controlCommand(use, short, msgType string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sendControl(cmd, protocol.ControlMessage{Type: msgType})
		},
	}
}

func sendControl(cmd *cobra.Command, msg protocol.ControlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		strings.TrimSuffix(workerAddr, "/")+offline.ControlPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reply protocol.ControlReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode reply failed: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("%s failed: %s", msg.Type, reply.Error)
	}
	return printJSON(cmd, reply)
}
