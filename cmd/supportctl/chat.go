package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/spf13/cobra"
)

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <agent> <text...>",
		Short: "Send one message to an agent",
		Example: `  supportctl chat knowledge "What are your hours?"
  supportctl chat technical my sync stopped`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := domain.ParseAgentType(args[0])
			if err != nil {
				return err
			}
			mgr, closeFn, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := mgr.Send(cmd.Context(), agent, strings.Join(args[1:], " "), nil)
			if err != nil {
				return err
			}
			printTurn(a.out, res)
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [agent]",
		Short: "Print stored chat history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents := domain.AgentTypes()
			if len(args) == 1 {
				agent, err := domain.ParseAgentType(args[0])
				if err != nil {
					return err
				}
				agents = []domain.AgentType{agent}
			}
			mgr, closeFn, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			for _, agent := range agents {
				printHistory(a.out, agent, mgr.Messages(agent))
			}
			return nil
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <agent>",
		Short: "Delete the chat history of one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := domain.ParseAgentType(args[0])
			if err != nil {
				return err
			}
			mgr, closeFn, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := mgr.ClearMessages(agent); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Cleared %s history.\n", agent.DisplayName())
			return nil
		},
	}
}

func (a *app) attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <file...>",
		Short: "Send files to the technical agent for review",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := attachments(args)
			if err != nil {
				return err
			}
			mgr, closeFn, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := mgr.AttachFiles(cmd.Context(), files)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, chat.AttachmentsAddedText(len(files)))
			printTurn(a.out, res)
			return nil
		},
	}
}

// attachments describes local files the way the widget reports uploads.
func attachments(paths []string) ([]domain.Attachment, error) {
	out := make([]domain.Attachment, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		typ := mime.TypeByExtension(filepath.Ext(abs))
		if typ == "" {
			typ = "application/octet-stream"
		}
		out = append(out, domain.Attachment{
			Name: filepath.Base(abs),
			URL:  (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
			Type: typ,
		})
	}
	return out, nil
}

func (a *app) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat with the active agent.

Commands:
  /switch <agent>  switch to another agent
  /history         print the active agent's history
  /clear           clear the active agent's history
  /attach <file..> send files to the technical agent
  /ticket          ask the technical agent to open a ticket
  /quit            exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener := func(ev chat.Event) {
				if ev.Type == chat.EventAgentSwitched {
					fmt.Fprintf(a.out, "*** You are now chatting with %s ***\n", ev.Agent.DisplayName())
				}
			}
			mgr, closeFn, err := a.openSession(cmd.Context(), chat.WithListener(listener))
			if err != nil {
				return err
			}
			defer closeFn()

			return runREPL(cmd.Context(), mgr, a.in, a.out)
		},
	}
}

// runREPL reads lines from in until EOF or /quit.
func runREPL(ctx context.Context, mgr *chat.Manager, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Chatting with %s. Type /quit to exit.\n", mgr.ActiveAgent().DisplayName())
	printHistory(out, mgr.ActiveAgent(), mgr.Messages(mgr.ActiveAgent()))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "[%s]> ", mgr.ActiveAgent())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			res, err := mgr.Send(ctx, mgr.ActiveAgent(), line, nil)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printTurn(out, res)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/switch":
			agent, err := domain.ParseAgentType(arg)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			if err := mgr.SwitchAgent(agent); err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printHistory(out, agent, mgr.Messages(agent))
		case "/history":
			printHistory(out, mgr.ActiveAgent(), mgr.Messages(mgr.ActiveAgent()))
		case "/clear":
			if err := mgr.ClearMessages(mgr.ActiveAgent()); err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			fmt.Fprintln(out, "History cleared.")
		case "/attach":
			files, err := attachments(strings.Fields(arg))
			if err == nil && len(files) == 0 {
				err = fmt.Errorf("usage: /attach <file...>")
			}
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			res, err := mgr.AttachFiles(ctx, files)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			fmt.Fprintln(out, chat.AttachmentsAddedText(len(files)))
			printTurn(out, res)
		case "/ticket":
			res, err := mgr.RequestTicket(ctx)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printTurn(out, res)
		default:
			fmt.Fprintf(out, "unknown command %s\n", cmd)
		}
	}
}

func printTurn(out io.Writer, res chat.TurnResult) {
	printMessage(out, res.Reply)
	for _, c := range res.Citations {
		fmt.Fprintf(out, "  source: %s <%s>\n", c.Title, c.URL)
	}
	if len(res.SuggestedReplies) > 0 {
		fmt.Fprintf(out, "  try: %s\n", strings.Join(res.SuggestedReplies, " | "))
	}
	if res.BuyingSignal {
		fmt.Fprintln(out, "  Interested in a demo? Run 'supportctl lead' to have sales reach out.")
	}
}

func printMessage(out io.Writer, m domain.Message) {
	fmt.Fprintf(out, "%-6s %s\n", m.Role+":", m.Text)
	if m.Confidence != nil {
		fmt.Fprintf(out, "  confidence: %.2f\n", *m.Confidence)
	}
	if m.NextSteps != "" {
		fmt.Fprintf(out, "  next steps: %s\n", m.NextSteps)
	}
	if m.TicketCreated {
		fmt.Fprintf(out, "  ticket opened: %s\n", m.TicketID)
	}
}

func printHistory(out io.Writer, agent domain.AgentType, msgs []domain.Message) {
	fmt.Fprintf(out, "== %s (%d messages) ==\n", agent.DisplayName(), len(msgs))
	for _, m := range msgs {
		printMessage(out, m)
	}
}
