// Command convo is a minimal CLI/REPL gateway exercising the runtime end
// to end, analogous to the teacher's cmd/hector: a kong-based CLI with a
// "chat" command that drives one session's turns from stdin and a
// "validate" command that checks a bot-package file without assembling a
// live agent graph against it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kpflow/convoy"
	"github.com/kpflow/convoy/bot"
	"github.com/kpflow/convoy/kb"
	"github.com/kpflow/convoy/session"
)

// CLI mirrors cmd/hector's kong.CLI shape: one struct of subcommands plus
// global flags, which main applies before dispatching to a subcommand.
type CLI struct {
	Chat     ChatCmd     `cmd:"" help:"Start an interactive REPL session against a bot-package file."`
	Validate ValidateCmd `cmd:"" help:"Parse and validate a bot-package file without assembling it."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the module version the way cmd/hector's VersionCmd does.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(convoy.GetVersion().String())
	return nil
}

// ValidateCmd loads and validates a bot-package file, reporting the first
// error without needing live model/tool/KB collaborators (spec §7's
// "Configuration: bot-build fails fast with a typed error before first
// message").
type ValidateCmd struct {
	Bot string `arg:"" type:"path" help:"Path to the bot-package YAML file."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := bot.LoadFile(c.Bot)
	if err != nil {
		return err
	}
	fmt.Printf("OK: %d agent(s), entry point %q\n", len(cfg.Agents), cfg.EntryPoint)
	return nil
}

// ChatCmd loads a bot-package file, assembles its live agent graph, and
// drives an interactive REPL session against it.
type ChatCmd struct {
	Bot       string `arg:"" type:"path" help:"Path to the bot-package YAML file."`
	Session   string `default:"cli-session" help:"Session id to use for this REPL."`
	Qdrant    string `help:"Qdrant host:port for the KB agent's retriever, if the bot declares one." placeholder:"HOST:PORT"`
	EmbedKey  string `name:"embed-key" help:"OpenAI API key for the KB agent's embedder (defaults to OPENAI_API_KEY)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	raw, err := os.ReadFile(c.Bot)
	if err != nil {
		return fmt.Errorf("read bot file: %w", err)
	}

	asm, err := c.buildAssembler()
	if err != nil {
		return err
	}

	mgr := session.NewManager()
	b, err := mgr.Load(context.Background(), "cli", raw, asm)
	if err != nil {
		return fmt.Errorf("load bot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return runREPL(ctx, b, c.Session)
}

func (c *ChatCmd) buildAssembler() (*bot.Assembler, error) {
	asm := &bot.Assembler{}
	if c.Qdrant == "" {
		return asm, nil
	}

	qdrantCfg, err := parseQdrantAddr(c.Qdrant)
	if err != nil {
		return nil, err
	}
	retriever, err := kb.NewQdrantRetriever(qdrantCfg)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	asm.KBRetriever = retriever

	apiKey := c.EmbedKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	embedder, err := kb.NewOpenAIEmbedder(kb.OpenAIEmbedderConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	asm.KBEmbedder = embedder

	return asm, nil
}

func parseQdrantAddr(addr string) (kb.QdrantConfig, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return kb.QdrantConfig{}, fmt.Errorf("invalid --qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return kb.QdrantConfig{}, fmt.Errorf("invalid --qdrant port %q: %w", portStr, err)
	}
	return kb.QdrantConfig{Host: host, Port: port}, nil
}

func runREPL(ctx context.Context, b *session.Bot, sessionID string) error {
	fmt.Printf("convoy REPL — bot %q, session %q. Type /quit to exit.\n", b.Name, sessionID)

	responses, err := b.HandleMessage(ctx, sessionID, "/init", "cli")
	if err != nil {
		return fmt.Errorf("init turn: %w", err)
	}
	printResponses(responses)

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\ngoodbye")
			return nil
		default:
		}

		fmt.Print("you: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil // stdin closed (EOF) ends the REPL cleanly
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			fmt.Println("goodbye")
			return nil
		}

		responses, err := b.HandleMessage(ctx, sessionID, line, "cli")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResponses(responses)
	}
}

func printResponses(responses []string) {
	for _, r := range responses {
		fmt.Printf("bot: %s\n", r)
	}
}

func main() {
	if err := bot.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("convo"),
		kong.Description("Convoy — a multi-agent conversational runtime REPL."),
		kong.UsageOnError(),
	)

	level, err := parseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
