// ottoclock is a terminal alarm clock and countdown timer.
//
// Usage:
//
//	ottoclock [-verbose] [-quiet] [-no-sound] [-db path] [-import schedule.txt]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/hammamikhairi/ottoclock/internal/alarm"
	"github.com/hammamikhairi/ottoclock/internal/audio"
	"github.com/hammamikhairi/ottoclock/internal/command"
	"github.com/hammamikhairi/ottoclock/internal/config"
	"github.com/hammamikhairi/ottoclock/internal/display"
	"github.com/hammamikhairi/ottoclock/internal/domain"
	"github.com/hammamikhairi/ottoclock/internal/engine"
	"github.com/hammamikhairi/ottoclock/internal/importer"
	"github.com/hammamikhairi/ottoclock/internal/logger"
	"github.com/hammamikhairi/ottoclock/internal/notify"
	"github.com/hammamikhairi/ottoclock/internal/storage"
	"github.com/hammamikhairi/ottoclock/internal/timer"
)

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	// Direct logs to a file by default so the prompt stays clean.
	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" && cfg.LogFile != "stderr" {
		dir := filepath.Dir(cfg.LogFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", cfg.LogFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Third-party libs log through the standard logger; keep them off the
	// terminal too.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(cfg.Level, logOut)

	// Cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: memory store, backed by SQLite unless -db "".
	var db *storage.SQLite
	var storeOpts []storage.Option
	if cfg.DBPath != "" {
		db, err = storage.OpenSQLite(cfg.DBPath, log.Named("db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		storeOpts = append(storeOpts, storage.WithPersister(db))
	}
	store := storage.NewMemoryStore(log.Named("store"), storeOpts...)
	if db != nil {
		if err := seed(ctx, store, db); err != nil {
			log.Error("loading saved state: %v", err)
		}
	}

	// Sound. A volume saved from an earlier run wins over the config.
	volume := cfg.Volume
	if db != nil {
		settings, err := db.LoadSettings(ctx, domain.Settings{Volume: volume})
		if err != nil {
			log.Error("loading settings: %v", err)
		}
		volume = settings.Volume
	}
	var player domain.SoundPlayer = audio.NewSilent(log.Named("audio"))
	if cfg.Sound {
		p, err := audio.NewPlayer(volume, log.Named("audio"))
		if err != nil {
			log.Error("audio player init failed, sound disabled: %v", err)
		} else {
			player = p
		}
	}

	// Notifications: the terminal always, browsers when VAPID keys are set.
	ui := display.NewUI()
	notifiers := notify.Multi{notify.NewCLINotifier(log.Named("notify"), ui.Printf)}
	if cfg.PushEnabled() {
		if db == nil {
			log.Warn("web push needs the database for subscriptions; push disabled")
		} else {
			notifiers = append(notifiers, notify.NewPushNotifier(db, notify.VAPID{
				PublicKey:  cfg.VAPIDPublicKey,
				PrivateKey: cfg.VAPIDPrivateKey,
				Subject:    cfg.VAPIDSubject,
			}, log.Named("push")))
			log.Info("web push enabled")
		}
	}
	if cfg.SubscriptionFile != "" && db != nil {
		if err := registerSubscription(ctx, db, cfg.SubscriptionFile); err != nil {
			log.Error("push subscription: %v", err)
		}
	}

	engineOpts := []engine.Option{
		engine.WithOncePolicy(cfg.Once),
		engine.WithSnoozeMinutes(cfg.SnoozeMinutes),
		engine.WithVolume(volume),
	}
	if db != nil {
		engineOpts = append(engineOpts, engine.WithSettings(db))
	}
	eng := engine.New(store, player, notifiers, log.Named("engine"), engineOpts...)
	defer eng.Close()
	ui.SetSource(eng)

	scheduler := alarm.NewScheduler(store, eng, log.Named("alarm"),
		alarm.WithTickInterval(cfg.AlarmTick),
		alarm.WithMode(cfg.AlarmMode),
	)
	runner := timer.NewRunner(store, eng, log.Named("timer"),
		timer.WithTickInterval(cfg.TimerTick),
	)
	eng.SetWaker(runner)

	imp := importer.New(eng, log.Named("import"))
	if cfg.ImportFile != "" {
		if err := importFile(ctx, imp, cfg.ImportFile, ui); err != nil {
			log.Error("import: %v", err)
		}
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()
	runner.Start(ctx)
	defer runner.Stop()
	defer player.Stop()

	app := &cliApp{
		engine:   eng,
		parser:   command.NewParser(log.Named("command")),
		importer: imp,
		log:      log,
		ui:       ui,
	}

	fmt.Println(display.RenderBanner())
	fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, 'quit' to exit."))
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		app.run(ctx)
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
}

// seed loads the saved collections into the memory store.
func seed(ctx context.Context, store *storage.MemoryStore, db *storage.SQLite) error {
	alarms, err := db.LoadAlarms(ctx)
	if err != nil {
		return fmt.Errorf("alarms: %w", err)
	}
	timers, err := db.LoadTimers(ctx)
	if err != nil {
		return fmt.Errorf("timers: %w", err)
	}
	store.Seed(alarms, timers)
	return nil
}

func registerSubscription(ctx context.Context, subs domain.SubscriptionStore, path string) error {
	sub, err := notify.ReadSubscriptionFile(path)
	if err != nil {
		return err
	}
	return subs.AddSubscription(ctx, sub)
}

func importFile(ctx context.Context, imp *importer.Importer, path string, ui *display.UI) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, n, err := imp.Import(ctx, f)
	if err != nil {
		return err
	}
	ui.PrintChat(fmt.Sprintf("Imported %d alarm(s) from %s.", n, path))
	for _, e := range res.Errors {
		ui.PrintHint(e.Error())
	}
	return nil
}
