package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chat-cache/internal/analytics"
	"chat-cache/internal/config"
	"chat-cache/internal/conversation"
	"chat-cache/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with a remote model and log every exchange",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.New()
			if err != nil {
				return err
			}
			setupLogging(c.LogLevel)
			if model, _ := cmd.Flags().GetString("model"); model != "" {
				c.Model = model
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				c.Debug = true
			}
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().String("model", "", "override MODEL")
	root.PersistentFlags().Bool("debug", false, "print cache records instead of writing the log file")

	current := func() *config.Config { return cfg }
	root.AddCommand(newChatCmd(current), newAskCmd(current), newStatsCmd(current))
	return root
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func newChatCmd(cfg func() *config.Config) *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			client, err := c.Factory().CreateClient(c.LLMProvider)
			if err != nil {
				return fmt.Errorf("failed to create llm client: %w", err)
			}
			convCfg, err := c.Conversation()
			if err != nil {
				return err
			}

			var m *conversation.Manager
			if resume != "" {
				cache, err := storage.Open(convCfg.CachePath)
				if err != nil {
					return err
				}
				m, err = conversation.Resume(client, cache, convCfg, resume)
				if err != nil {
					_ = cache.Close()
					return err
				}
			} else {
				m, err = conversation.New(client, convCfg)
				if err != nil {
					return err
				}
			}
			defer func() {
				if err := m.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close cache")
				}
			}()

			return repl(cmd.Context(), m, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", "continue the conversation with this id")
	return cmd
}

// repl reads one turn per line until an empty line or EOF.
func repl(ctx context.Context, m *conversation.Manager, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "conversation %s (empty line or Ctrl-D to quit)\n", m.ID())
	s := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !s.Scan() {
			fmt.Fprintln(out)
			return s.Err()
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return nil
		}
		reply, err := m.Submit(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("id", m.ID()).Msg("turn failed")
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

func newAskCmd(cfg func() *config.Config) *cobra.Command {
	var (
		system  string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Send a single query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			client, err := c.Factory().CreateClient(c.LLMProvider)
			if err != nil {
				return fmt.Errorf("failed to create llm client: %w", err)
			}
			path, err := c.CachePath()
			if err != nil {
				return err
			}
			cache, err := storage.Open(path, storage.WithDebugWriter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()

			record := !noCache && !c.Debug
			resp, err := conversation.Ask(cmd.Context(), client, cache, c.Params(), system, strings.Join(args, " "), record)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "do not write the exchange to the log file")
	return cmd
}

func newStatsCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the cache log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cfg().CachePath()
			if err != nil {
				return err
			}
			cache, err := storage.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()

			records, err := cache.Load()
			if err != nil {
				return err
			}
			stats := analytics.Summarize(records)
			if !asJSON {
				fmt.Fprint(cmd.OutOrStdout(), stats.Report())
				return nil
			}
			js, err := stats.ToJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), js)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
