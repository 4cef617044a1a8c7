package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
	"github.com/wilbur182/datachat/internal/transcript"
)

func newConversationsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List and manage conversations",
	}

	cmd.AddCommand(newConversationsListCmd(flags))
	cmd.AddCommand(newConversationsPinCmd(flags))
	cmd.AddCommand(newConversationsRenameCmd(flags))
	cmd.AddCommand(newConversationsExportCmd(flags))
	return cmd
}

// headlessServices builds services for a one-shot command.
func headlessServices(cmd *cobra.Command, flags globalFlags) (*services, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := headlessLogger(cfg, cmd.ErrOrStderr())
	return newServices(cfg, logger, &stderrNotifier{w: cmd.ErrOrStderr()}, true), nil
}

// loadList fills the list cache, from the server or the local mirror.
func loadList(cmd *cobra.Command, svc *services) ([]conversation.Conversation, history.Source, error) {
	list, src, err := svc.loader.Conversations(cmd.Context())
	if err != nil {
		return nil, src, err
	}
	svc.sync.Cache().Set(list)
	return list, src, nil
}

func newConversationsListCmd(flags *globalFlags) *cobra.Command {
	var (
		pinnedOnly bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, pinned first",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := headlessServices(cmd, *flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			list, src, err := loadList(cmd, svc)
			if err != nil {
				return err
			}
			if src == history.SourceOffline {
				fmt.Fprintln(cmd.ErrOrStderr(), "server unreachable, showing saved conversations")
			}
			list = sortPinnedFirst(list, pinnedOnly)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No conversations.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPIN\tTITLE\tDATASETS\tUPDATED")
			for _, c := range list {
				pin := ""
				if c.IsPinned {
					pin = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, pin, c.DisplayTitle(), c.DatasetCount, formatUpdated(c.UpdatedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&pinnedOnly, "pinned", false, "only pinned conversations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newConversationsPinCmd(flags *globalFlags) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin or unpin a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := headlessServices(cmd, *flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			// Best effort: the cache only feeds the mirror here.
			_, _, _ = loadList(cmd, svc)
			if err := svc.sync.SetPinned(cmd.Context(), args[0], !off); err != nil {
				return err
			}
			if svc.history != nil {
				if err := svc.history.SaveConversations(cmd.Context(), svc.sync.Cache().List()); err != nil {
					svc.logger.Warn("mirror pin state", "err", err)
				}
			}

			state := "pinned"
			if off {
				state = "unpinned"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "unpin instead")
	return cmd
}

func newConversationsRenameCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}

			svc, err := headlessServices(cmd, *flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.sync.ApplyTitle(cmd.Context(), args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", args[0], title)
			return nil
		},
	}
}

func newConversationsExportCmd(flags *globalFlags) *cobra.Command {
	var copyOut bool

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Print a conversation as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := headlessServices(cmd, *flags)
			if err != nil {
				return err
			}
			defer svc.Close()

			_, _, _ = loadList(cmd, svc)
			conv, ok := svc.sync.Cache().Get(args[0])
			if !ok {
				conv = conversation.Conversation{ID: args[0]}
			}
			msgs, _, err := svc.loader.Messages(cmd.Context(), conv)
			if err != nil {
				return err
			}

			md := transcript.ExportMarkdown(conv, msgs)
			if copyOut {
				if err := transcript.CopyToClipboard(md); err != nil {
					return fmt.Errorf("copy: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "copied to clipboard")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy to the clipboard instead of printing")
	return cmd
}

// sortPinnedFirst orders pinned conversations first, keeping server order
// otherwise.
func sortPinnedFirst(list []conversation.Conversation, pinnedOnly bool) []conversation.Conversation {
	var pinned, rest []conversation.Conversation
	for _, c := range list {
		switch {
		case c.IsPinned:
			pinned = append(pinned, c)
		case !pinnedOnly:
			rest = append(rest, c)
		}
	}
	return append(pinned, rest...)
}

func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
