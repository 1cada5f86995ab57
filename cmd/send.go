package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/linkchat/internal/wire"
)

var sendCmd = &cobra.Command{
	Use:   "send <address> <file>",
	Short: "Send a file as a reliable FILE_CHUNK blob transfer",
	Args:  cobra.ExactArgs(2),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	dst, err := wire.ParseAddressString(args[0])
	if err != nil {
		return fmt.Errorf("parse destination address: %w", err)
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	n, err := openNode(configFile)
	if err != nil {
		exitWithError("open link", err)
	}
	defer n.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := n.send.SendBlob(ctx, data, dst); err != nil {
		return fmt.Errorf("send blob: %w", err)
	}
	fmt.Printf("sent %d bytes\n", len(data))
	return nil
}
