package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/app"
	"github.com/dvloznov/finance-assistant/internal/assistant"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithJSON(cfg.LogJSON), logger.WithWriter(os.Stderr))

	switch os.Args[1] {
	case "chat":
		runChat(cfg, log)
	case "ask":
		runAsk(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Assistant CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  chat      Start an interactive conversation")
	fmt.Println("  ask       Send a single message and print the reply")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app.App {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize assistant")
	}
	return a
}

func runChat(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	ledgerBackend := fs.String("ledger", cfg.LedgerBackend, "Ledger backend: memory or bigquery")
	fs.Parse(os.Args[2:])
	cfg.LedgerBackend = *ledgerBackend

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := newApp(ctx, cfg, log)
	defer a.Close()

	fmt.Println("Type a message, or /help for commands.")
	if err := newREPL(a.Gateway, os.Stdout).run(ctx, os.Stdin); err != nil {
		log.Fatal().Err(err).Msg("Chat failed")
	}
}

func runAsk(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	message := fs.String("m", "", "Message to send")
	imagePath := fs.String("image", "", "Path to a receipt image to attach")
	apply := fs.Bool("apply", false, "Confirm every proposal in the reply")
	fs.Parse(os.Args[2:])

	if *message == "" && *imagePath == "" {
		log.Fatal().Msg("Usage: cli ask -m MESSAGE [-image PATH] [-apply]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a := newApp(ctx, cfg, log)
	defer a.Close()

	req := assistant.SendRequest{Message: *message}
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *imagePath).Msg("Failed to read image")
		}
		req.ImageData = data
		req.ImageMIMEType = http.DetectContentType(data)
	}

	r := newREPL(a.Gateway, os.Stdout)
	reply, err := r.send(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Request failed")
	}
	if *apply && len(reply.Proposals) > 0 {
		if err := r.confirm(ctx, []string{"all"}); err != nil {
			log.Fatal().Err(err).Msg("Apply failed")
		}
	}
}

// repl is a line-oriented front end of one conversation.
type repl struct {
	gateway        *assistant.Gateway
	out            io.Writer
	conversationID string
}

func newREPL(g *assistant.Gateway, out io.Writer) *repl {
	return &repl{gateway: g, out: out}
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if _, err := r.send(ctx, assistant.SendRequest{Message: line}); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			continue
		}

		quit, err := r.command(ctx, strings.Fields(line))
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) command(ctx context.Context, fields []string) (bool, error) {
	args := fields[1:]
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, "  /pending               list proposals awaiting a decision")
		fmt.Fprintln(r.out, "  /confirm <id>|all      apply proposals to the ledger")
		fmt.Fprintln(r.out, "  /discard <id>          reject a proposal")
		fmt.Fprintln(r.out, "  /clear                 start over in this conversation")
		fmt.Fprintln(r.out, "  /quit                  leave")
		return false, nil
	}

	if r.conversationID == "" {
		return false, fmt.Errorf("no conversation yet, send a message first")
	}

	switch fields[0] {
	case "/pending":
		pending, err := r.gateway.ListPending(ctx, r.conversationID)
		if err != nil {
			return false, err
		}
		if len(pending) == 0 {
			fmt.Fprintln(r.out, "No pending proposals.")
		}
		for _, p := range pending {
			r.printProposal(p)
		}
	case "/confirm":
		return false, r.confirm(ctx, args)
	case "/discard":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /discard <id>")
		}
		p, err := r.gateway.DiscardProposal(ctx, r.conversationID, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Discarded %s.\n", p.ID)
	case "/clear":
		if err := r.gateway.ClearConversation(ctx, r.conversationID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, "Conversation cleared.")
	default:
		return false, fmt.Errorf("unknown command %s, try /help", fields[0])
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, req assistant.SendRequest) (*assistant.Reply, error) {
	req.ConversationID = r.conversationID
	reply, err := r.gateway.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	r.conversationID = reply.ConversationID

	if reply.Content != "" {
		fmt.Fprintln(r.out, reply.Content)
	}
	for _, p := range reply.Proposals {
		r.printProposal(p)
	}
	return reply, nil
}

func (r *repl) confirm(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /confirm <id>|all")
	}
	ids := args
	if len(args) == 1 && args[0] == "all" {
		pending, err := r.gateway.ListPending(ctx, r.conversationID)
		if err != nil {
			return err
		}
		ids = ids[:0:0]
		for _, p := range pending {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(r.out, "Nothing to confirm.")
		return nil
	}

	results, err := r.gateway.ApplyProposals(ctx, r.conversationID, ids, nil)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Success {
			fmt.Fprintf(r.out, "Applied %s -> %s\n", res.ProposalID, domain.StringValue(res.EntityID))
		} else {
			fmt.Fprintf(r.out, "Failed %s: %s\n", res.ProposalID, domain.StringValue(res.Error))
		}
	}
	return nil
}

func (r *repl) printProposal(p *domain.Proposal) {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		payload = []byte("?")
	}
	fmt.Fprintf(r.out, "  [%s] %s %s %s\n", p.Status, p.Type, p.ID, payload)
}
