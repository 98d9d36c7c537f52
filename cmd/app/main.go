package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deckhand/config"
	"deckhand/internal/api"
	"deckhand/internal/attention"
	"deckhand/internal/cli"
	"deckhand/internal/credentials"
	"deckhand/internal/layout"
	"deckhand/internal/logging"
	"deckhand/internal/panel"
	"deckhand/internal/prefs"
	"deckhand/internal/pubsub"
	"deckhand/internal/session"
	"deckhand/internal/stream"
	"deckhand/internal/tui"
	"deckhand/internal/voice"
	"deckhand/version"
)

var (
	cfgFile  string
	settings config.Settings
	logger   *zap.Logger
	logLevel zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Terminal workspace for AI coding agents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, logLevel, err = logging.New(settings.Log.Level, settings.Log.File)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkspace()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("deckhand version %s\n", version.Get())
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the workspace API token in the system keyring",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store the workspace API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.SetAPIToken(args[0]); err != nil {
			return err
		}
		fmt.Println("Token stored.")
		return nil
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored workspace API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := credentials.DeleteAPIToken()
		if errors.Is(err, credentials.ErrNotFound) {
			fmt.Println("No token stored.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("Token removed.")
		return nil
	},
}

var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a workspace API token is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := credentials.HasSecret(credentials.APITokenName)
		if err != nil {
			return err
		}
		if ok {
			fmt.Println("Token is configured.")
		} else {
			fmt.Println("No token configured. Sync and voice parsing run unauthenticated.")
		}
		return nil
	},
}

func runWorkspace() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return err
	}
	store, err := prefs.OpenPath(dbPath)
	if err != nil {
		return fmt.Errorf("open preferences db: %w", err)
	}
	defer store.Close()

	announcements := pubsub.NewBroker[string]()
	defer announcements.Shutdown()

	layoutState := layout.NewState()
	panels := panel.NewStore(tui.BrokerAnnouncer{Broker: announcements})
	cliStore := cli.NewStore()

	sess := session.NewStore()
	defer sess.Close()

	history := prefs.NewHistory(store, cli.MaxHistory)
	cliStore.WithPersistence(history, sess.ID(), logger)
	if entries, err := history.List(ctx, sess.ID()); err == nil {
		cliStore.SeedHistory(entries)
	}

	token, err := credentials.GetAPIToken()
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		logger.Warn("keyring unavailable, continuing unauthenticated", zap.Error(err))
	}
	client := api.NewClient(settings.API.BaseURL, token, logger)
	client.SetTimeout(settings.API.Timeout)

	syncCtl, err := prefs.NewSync(prefs.SyncConfig{
		API:    client,
		Layout: layoutState,
		Panels: panels,
		Store:  store,
		Log:    logger,
	})
	if err != nil {
		return err
	}
	defer syncCtl.Close()

	if err := syncCtl.LoadLocal(ctx); err != nil {
		logger.Warn("local preference load failed", zap.Error(err))
	}
	go func() {
		loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
		defer loadCancel()
		_ = syncCtl.LoadFromServer(loadCtx)
	}()

	// Every layout announcement doubles as a dirty marker for sync.
	go func() {
		for range announcements.Subscribe(ctx) {
			syncCtl.Schedule()
		}
	}()

	attn := attention.NewStore(attentionOpener{panels: panels})
	defer attn.Close()
	actions := &tui.Actions{Layout: layoutState, Panels: panels, CLI: cliStore}

	var voiceCtl *voice.Controller
	streamClient, err := stream.Dial(settings.Stream.Address, token, logger)
	if err != nil {
		logger.Warn("voice channel unavailable", zap.Error(err))
	} else {
		defer streamClient.Close()
		opts := voice.DefaultCaptureOptions()
		if settings.Voice.SampleRate > 0 {
			opts.SampleRate = settings.Voice.SampleRate
		}
		if settings.Voice.ChunkInterval > 0 {
			opts.ChunkInterval = settings.Voice.ChunkInterval
		}
		voiceCtl, err = voice.NewController(voice.Config{
			Recorder:  newRecorder(),
			Options:   opts,
			Uplink:    streamClient,
			Parser:    client,
			Agents:    client,
			Session:   sess,
			Attention: attn,
			UI:        actions,
			Log:       logger,
		})
		if err != nil {
			return err
		}
		defer voiceCtl.Close()
		go voiceCtl.Run(ctx, streamClient.Subscribe(ctx))
	}

	cfgPath := cfgFile
	if cfgPath == "" {
		if cfgPath, err = config.GetConfigFile(); err != nil {
			return err
		}
	}
	go func() {
		err := config.Watch(ctx, cfgPath, logger, func(s config.Settings) {
			logging.SetLevel(logLevel, s.Log.Level)
		})
		if err != nil {
			logger.Warn("config watch stopped", zap.Error(err))
		}
	}()

	model := tui.New(tui.Config{
		Layout:        layoutState,
		Panels:        panels,
		CLI:           cliStore,
		Session:       sess,
		Voice:         voiceController(voiceCtl),
		Actions:       actions,
		Announcements: announcements.Subscribe(ctx),
		OnSubmit:      submitHandler(ctx, voiceCtl, client, sess),
		Log:           logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := syncCtl.Flush(flushCtx); err != nil {
		logger.Warn("final preference sync failed", zap.Error(err))
	}
	return nil
}

// voiceController keeps a typed nil out of the interface value.
func voiceController(ctl *voice.Controller) tui.VoiceController {
	if ctl == nil {
		return nil
	}
	return ctl
}

// submitHandler routes typed input through the same parse-and-dispatch
// pipeline voice commands use.
func submitHandler(ctx context.Context, ctl *voice.Controller, client *api.Client, sess *session.Store) func(string) {
	if ctl == nil {
		return nil
	}
	return func(input string) {
		go func() {
			parseCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			cmd, err := client.ParseVoiceCommand(parseCtx, input, sess.ID())
			if err != nil {
				logger.Warn("command parse failed", zap.Error(err))
				return
			}
			ctl.ExecuteCommand(parseCtx, cmd)
		}()
	}
}

// attentionOpener reveals the notifications panel in the right dock.
type attentionOpener struct {
	panels *panel.Store
}

func (o attentionOpener) OpenAttentionPanel() {
	o.panels.AddPanel(panel.Problems, panel.SideRight)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/deckhand/deckhand.yaml)")
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
	tokenCmd.AddCommand(tokenStatusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
