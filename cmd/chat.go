package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/linkchat/internal/wire"
)

var chatCmd = &cobra.Command{
	Use:   "chat <address> <text>",
	Short: "Send a chat message to a neighbor, or broadcast it",
	Long: `Chat sends a text message as one or more CHAT fragments. Use the
broadcast address ff:ff:ff:ff:ff:ff to reach every neighbor at once. A text
that fits in one fragment is sent fire-and-forget as a single frame; a
longer text, broadcast or not, is fragmented and sent over the ACKed path.`,
	Args: cobra.ExactArgs(2),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	dst, err := wire.ParseAddressString(args[0])
	if err != nil {
		return fmt.Errorf("parse destination address: %w", err)
	}
	text := args[1]

	n, err := openNode(configFile)
	if err != nil {
		exitWithError("open link", err)
	}
	defer n.close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := n.send.SendChat(ctx, text, dst); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	fmt.Println("chat sent")
	return nil
}
