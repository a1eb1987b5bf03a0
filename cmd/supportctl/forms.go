package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/support-hub/internal/backend"
	"github.com/ashureev/support-hub/internal/chat"
	"github.com/ashureev/support-hub/internal/domain"
	"github.com/ashureev/support-hub/internal/health"
	"github.com/ashureev/support-hub/internal/ticket"
	"github.com/spf13/cobra"
)

const defaultHealthTimeout = 5 * time.Second

func (a *app) triageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage <text...>",
		Short: "Show which agent would handle a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.newBackend().Triage(cmd.Context(), backend.TriageRequest{Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "route: %s\nintent: %s\nconfidence: %.2f\nlead score: %.2f\n",
				resp.Route, resp.Intent, resp.Confidence, resp.LeadScore)
			return nil
		},
	}
}

func (a *app) leadCmd() *cobra.Command {
	var req backend.LeadRequest
	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Ask sales to get in touch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			resp, err := mgr.SubmitLead(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("lead was not accepted")
			}
			fmt.Fprintf(a.out, "%s (lead %s)\n", chat.LeadThanksText, resp.LeadID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Your name (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Contact email (required)")
	cmd.Flags().StringVar(&req.Company, "company", "", "Company")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) ticketCmd() *cobra.Command {
	var (
		req     ticket.Request
		urgency string
	)
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Open a support ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Urgency = domain.Urgency(urgency)
			receipt, err := a.newBackend().SubmitTicket(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s\n", receipt.Message, receipt.TicketID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Contact email (required)")
	cmd.Flags().StringVar(&req.Company, "company", "", "Company")
	cmd.Flags().StringVar(&req.Title, "title", "", "Short summary (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "What happened (required)")
	cmd.Flags().StringVar(&urgency, "urgency", string(domain.UrgencyMedium), "low, medium or high")
	for _, name := range []string{"name", "email", "title", "description"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	var (
		addr    string
		service string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the server's gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := a.timeout
			if !cmd.Flags().Changed("timeout") {
				timeout = defaultHealthTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := health.Check(ctx, addr, service)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %s\n", addr, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC health address")
	cmd.Flags().StringVar(&service, "service", health.Service, "Service name to check")
	return cmd
}
