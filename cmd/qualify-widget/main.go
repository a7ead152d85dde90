package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qualify/internal/conversation"
	"qualify/internal/probe"
	"qualify/internal/render"
	"qualify/internal/shell"
	"qualify/internal/widget"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var VERSION = "dev"

type rootOptions struct {
	APIBase  string `env:"QUALIFY_API_BASE" envDefault:"http://localhost:8080"`
	APIKey   string `env:"QUALIFY_API_KEY"`
	PageURL  string `env:"QUALIFY_PAGE_URL" envDefault:"http://localhost/"`
	Storage  string `env:"QUALIFY_STORAGE" envDefault:".qualify-visitor.json"`
	LogLevel string `env:"QUALIFY_LOG_LEVEL" envDefault:"warn"`
}

type simulateOptions struct {
	Answers []string
	Mobile  bool
	Offline bool
	HTML    bool
	Timeout time.Duration
}

var rootOpts rootOptions

var simulateOpts = simulateOptions{
	Timeout: 30 * time.Second,
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return cfg.Build()
}

func navigator(mobile, offline bool) probe.StaticNavigator {
	nav := probe.StaticNavigator{
		UA:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Lang:           "en-US",
		TZ:             "UTC",
		ScreenWidth:    1440,
		ScreenHeight:   900,
		ViewportWidth:  1440,
		ViewportHeight: 789,
		Offline:        offline,
	}
	if mobile {
		nav.UA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
		nav.ScreenWidth, nav.ScreenHeight = 390, 844
		nav.ViewportWidth, nav.ViewportHeight = 390, 664
	}
	return nav
}

func newWidget(host shell.Host, nav probe.StaticNavigator, logger *zap.Logger) *widget.Widget {
	return widget.New(widget.Options{
		APIKey:        rootOpts.APIKey,
		APIBase:       rootOpts.APIBase,
		Host:          host,
		Navigator:     nav,
		Storage:       probe.NewFileStorage(rootOpts.Storage),
		Page:          widget.Page{URL: rootOpts.PageURL, Title: "qualify-widget"},
		AutoOpenDelay: -1,
		Log:           logger,
	})
}

// waitFor polls the widget until cond holds or ctx ends
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

type simulateResult struct {
	VisitorID string  `json:"visitorId"`
	SessionID string  `json:"sessionId"`
	Phase     string  `json:"phase"`
	Score     float64 `json:"score,omitempty"`
	Hidden    bool    `json:"hidden,omitempty"`
	Pending   int     `json:"pending"`
	HTML      string  `json:"html,omitempty"`
}

func simulate(ctx context.Context, logger *zap.Logger) (simulateResult, error) {
	host, err := shell.NewDocumentHost("")
	if err != nil {
		return simulateResult{}, err
	}
	w := newWidget(host, navigator(simulateOpts.Mobile, simulateOpts.Offline), logger)
	if err := w.Start(ctx); err != nil {
		return simulateResult{}, err
	}
	// Unload reports an unfinished conversation as abandoned
	defer w.Unload()

	ctx, cancel := context.WithTimeout(ctx, simulateOpts.Timeout)
	defer cancel()

	if err := waitFor(ctx, func() bool { return host.Click(render.ActionOpen, "") }); err != nil {
		return simulateResult{}, fmt.Errorf("launcher never appeared: %w", err)
	}

	result := simulateResult{VisitorID: w.VisitorID(), SessionID: w.SessionID()}
	for i, answer := range simulateOpts.Answers {
		err := waitFor(ctx, func() bool {
			s := w.State()
			return !w.Mounted() || s.Phase.Terminal() || (s.Phase == conversation.Asking && s.Index == i)
		})
		if err != nil {
			return result, fmt.Errorf("question %d never shown: %w", i+1, err)
		}
		if !w.Mounted() || w.State().Phase != conversation.Asking {
			break
		}
		w.Answer(answer)
	}

	if err := waitFor(ctx, func() bool { return !w.Mounted() || w.State().Phase.Terminal() }); err != nil {
		return result, fmt.Errorf("conversation did not finish (state %s): %w", w.State(), err)
	}

	state := w.State()
	result.Phase = state.Phase.String()
	result.Score = state.Score
	result.Hidden = !w.Mounted() && !state.Phase.Terminal()
	result.Pending = w.Pending()
	if simulateOpts.HTML {
		result.HTML = host.HTML()
	}
	return result, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Execute() {
	if err := env.Parse(&rootOpts); err != nil {
		log.Fatalf("parsing config: %v", err)
	}

	var logger *zap.Logger

	rootCmd := &cobra.Command{
		Use:   "qualify-widget",
		Short: "Run the lead qualification widget against an API server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.APIKey == "" {
				return errors.New("an API key is required (--api-key or QUALIFY_API_KEY)")
			}
			l, err := newLogger(rootOpts.LogLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootOpts.APIBase, "api-base", rootOpts.APIBase, "API server base URL")
	flags.StringVar(&rootOpts.APIKey, "api-key", rootOpts.APIKey, "Account API key")
	flags.StringVar(&rootOpts.PageURL, "page-url", rootOpts.PageURL, "URL of the simulated host page")
	flags.StringVar(&rootOpts.Storage, "storage", rootOpts.Storage, "File keeping the visitor ID between runs")
	flags.StringVar(&rootOpts.LogLevel, "log-level", rootOpts.LogLevel, "Log level: debug, info, warn, error")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Open the widget, answer its questions and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := simulate(ctx, logger)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	sflags := simulateCmd.Flags()
	sflags.StringSliceVar(&simulateOpts.Answers, "answer", nil, "Answer to give, repeat once per question")
	sflags.BoolVar(&simulateOpts.Mobile, "mobile", false, "Present as a mobile device")
	sflags.BoolVar(&simulateOpts.Offline, "offline", false, "Start without connectivity")
	sflags.BoolVar(&simulateOpts.HTML, "html", false, "Include the final widget markup")
	sflags.DurationVar(&simulateOpts.Timeout, "timeout", simulateOpts.Timeout, "Give up after this long")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the installation for the page's domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			host, err := shell.NewDocumentHost("")
			if err != nil {
				return err
			}
			out, err := newWidget(host, navigator(false, false), logger).Verify(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	rootCmd.AddCommand(simulateCmd, verifyCmd, &cobra.Command{
		Use:              "version",
		Short:            "Print the version number",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(VERSION)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
