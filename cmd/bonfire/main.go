package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bonfire/internal/app"
	"bonfire/internal/config"
	"bonfire/internal/task"
	logx "bonfire/pkg/logx"

	"github.com/joho/godotenv"
)

const usage = `usage: bonfire [command] [flags]

commands:
  run    run the scheduler daemon (default)
  list   print every stored task as JSON lines
  get    print one stored task (-key)

flags:
  -config path   config file (.json, .yaml); default ./config.json
  -env path      dotenv file loaded before the config; default ./.env
`

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = run(args)
	case "list":
		err = list(args, os.Stdout)
	case "get":
		err = get(args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

type common struct {
	cfgPath string
	envPath string
}

func flags(name string, c *common) *flag.FlagSet {
	fl := flag.NewFlagSet(name, flag.ExitOnError)
	fl.StringVar(&c.cfgPath, "config", "./config.json", "path to config file")
	fl.StringVar(&c.envPath, "env", ".env", "dotenv file with BONFIRE_* overrides")
	fl.Usage = func() { fmt.Fprint(fl.Output(), usage) }
	return fl
}

// loadEnv loads the dotenv file; a missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func run(args []string) error {
	var c common
	if err := flags("run", &c).Parse(args); err != nil {
		return err
	}
	if err := loadEnv(c.envPath); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(c.cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	runErr := a.Err()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// taskView is the CLI rendering of a stored record.
type taskView struct {
	Key         string          `json:"key"`
	Tag         string          `json:"tag"`
	ScheduledAt string          `json:"scheduled_at,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Unknown     bool            `json:"unknown,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func viewOf(t task.Task) taskView {
	return taskView{
		Key:         t.Key(),
		Tag:         t.Tag(),
		ScheduledAt: t.ScheduledAt().Format(time.RFC3339Nano),
		Payload:     t.Payload(),
	}
}

func openStore(c common) (*config.Config, func(), storeReader, error) {
	if err := loadEnv(c.envPath); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.NewConfigManager(c.cfgPath).Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log := logx.NewWriter(os.Stderr, "warn")
	store, red, err := app.OpenStore(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, func() { _ = store.Close() }, red, nil
}

func opContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	if d := cfg.Scheduler.OpTimeoutOrDefault(); d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}

func list(args []string, out io.Writer) error {
	var c common
	if err := flags("list", &c).Parse(args); err != nil {
		return err
	}
	cfg, closeFn, red, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := opContext(cfg)
	defer cancel()
	return listTasks(ctx, red, out)
}

func get(args []string, out io.Writer) error {
	var c common
	fl := flags("get", &c)
	key := fl.String("key", "", "task key")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("get: -key is required")
	}
	cfg, closeFn, red, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := opContext(cfg)
	defer cancel()
	return getTask(ctx, red, *key, out)
}
