/**
 * @description
 * scclient hosts the session core outside the mobile shell. Each invocation
 * scans the secure store, optionally resumes the session and runs one
 * command against the backend.
 *
 *	scclient [flags] bootstrap
 *	scclient [flags] login patient|nurse <username>
 *	scclient [flags] logout | settings | dashboard | categories
 *	scclient [flags] biometric enable|disable|status
 */
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/matthew-kal/SC---FRONTEND/internal/app"
	"github.com/matthew-kal/SC---FRONTEND/internal/biometric"
	"github.com/matthew-kal/SC---FRONTEND/internal/cache"
	"github.com/matthew-kal/SC---FRONTEND/internal/config"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
	"github.com/matthew-kal/SC---FRONTEND/internal/session"
	"github.com/matthew-kal/SC---FRONTEND/internal/store"
	"github.com/matthew-kal/SC---FRONTEND/pkg/apiclient"
	"github.com/matthew-kal/SC---FRONTEND/pkg/authclient"
	"github.com/matthew-kal/SC---FRONTEND/pkg/contentclient"
	"github.com/redis/go-redis/v9"
)

type client struct {
	ctrl    *app.Controller
	content *contentclient.Client
	console *console
	out     io.Writer
}

func main() {
	verbose := flag.Bool("v", false, "log to stderr")
	sensor := flag.Bool("sensor", false, "simulate an enrolled fingerprint sensor on the console")
	asRole := flag.String("role", "", "switch to this stored role before running the command")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: scclient [flags] <command> [args]\n\ncommands:\n%s\nflags:\n", commandHelp)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && *verbose {
		fmt.Fprintln(os.Stderr, "no .env file found, using environment variables")
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	cfg, err := config.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := wire(ctx, cfg, logger, *sensor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if *asRole != "" {
		role, err := domain.ParseRole(*asRole)
		if err == nil {
			err = c.ctrl.SwitchRole(ctx, role)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot switch role: %v\n", err)
			os.Exit(1)
		}
	}

	if err := c.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func wire(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, sensor bool) (*client, func(), error) {
	cleanup := func() {}

	var secure store.SecureStore = store.NewMemoryStore()
	if cfg.StoreBackend == "file" {
		key, err := store.DeriveStoreKey(cfg.StoreDeviceSecret, cfg.DeviceID)
		if err != nil {
			return nil, cleanup, err
		}
		fs, err := store.NewFileStore(cfg.StoreDir, key)
		if err != nil {
			return nil, cleanup, err
		}
		secure = fs
	}
	vault := store.NewVault(secure)

	sess := session.New(logger)
	if err := sess.Scan(ctx, vault); err != nil {
		logger.Warn("credential scan failed", "error", err)
	}

	con := newConsole(os.Stdin, os.Stdout)
	nav := consoleNavigator{out: os.Stdout}

	auth := authclient.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout())
	api := apiclient.NewClient(cfg.APIBaseURL, vault, sess, auth, nav, apiclient.Options{
		HTTPClient:      auth.HTTPClient(),
		CoalesceRefresh: cfg.CoalesceRefresh,
		Logger:          logger,
	})

	var hw biometric.Hardware = biometric.Unavailable{}
	if sensor {
		hw = consoleSensor{console: con}
	}
	gate := biometric.NewGatekeeper(secure, vault, hw, logger, biometric.Config{
		MaxAttempts:   cfg.BiometricMaxAttempts,
		LockoutWindow: cfg.LockoutWindow(),
	})

	var contentCache cache.Cache = cache.NewMemoryCache(nil)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis url parse failed; caching in memory", "error", err)
		} else {
			rdb := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			pingErr := rdb.Ping(pingCtx).Err()
			cancel()
			if pingErr != nil {
				logger.Warn("redis ping failed; caching in memory", "error", pingErr)
				_ = rdb.Close()
			} else {
				contentCache = cache.NewRedisCache(rdb, "surgicalm:"+cfg.DeviceID)
				cleanup = func() { _ = rdb.Close() }
			}
		}
	}

	content := contentclient.NewClient(api, contentclient.Options{
		Cache:       contentCache,
		CacheTTL:    cfg.ContentCacheTTL(),
		CachePrefix: cfg.ContentCachePrefix,
		Logger:      logger,
	})

	ctrl := app.NewController(app.Deps{
		Session:                 sess,
		Vault:                   vault,
		Auth:                    auth,
		API:                     api,
		Gate:                    gate,
		Navigator:               nav,
		Prompter:                con,
		Logger:                  logger,
		BootstrapRefreshTimeout: cfg.BootstrapRefreshTimeout(),
	})

	return &client{ctrl: ctrl, content: content, console: con, out: os.Stdout}, cleanup, nil
}

const commandHelp = `  bootstrap                         resume the stored patient session or land on login
  login patient|nurse <username>    log in (password read from the console)
  logout                            log out of the current role
  reset-password <email>            request a password reset email
  settings                          show the signed-in profile
  change-password                   change the password (prompts)
  delete-account                    delete the signed-in account (prompts)
  biometric enable|disable|status   manage biometric login (patients)
  categories                        list content categories
  subcategories <category>          list subcategories
  modules <category> <subcategory>  list modules
  dashboard                         show the patient dashboard
  complete-video <id>               mark a dashboard video as watched
  complete-task <id>                mark a dashboard task as done
  patients text|id <query>          search patients (nurses)
  patient-graph <id>                show a patient's weekly activity (nurses)
  register-patient <username> <email>  create a patient account (nurses)
`

func (c *client) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "bootstrap":
		out := c.ctrl.Bootstrap(ctx)
		fmt.Fprintf(c.out, "screen=%s reason=%s\n", out.Screen, out.Reason)
		return nil
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: login patient|nurse <username>")
		}
		role, err := domain.ParseRole(args[0])
		if err != nil {
			return err
		}
		password, err := c.console.ask(ctx, "Password: ")
		if err != nil {
			return err
		}
		return c.ctrl.Login(ctx, role, args[1], password)
	case "logout":
		return c.ctrl.Logout(ctx)
	case "reset-password":
		if len(args) != 1 {
			return fmt.Errorf("usage: reset-password <email>")
		}
		if err := c.ctrl.RequestPasswordReset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "If an account exists for this email, a reset link has been sent.")
		return nil
	case "settings":
		settings, err := c.ctrl.UserSettings(ctx)
		return c.print(settings, err)
	case "change-password":
		oldPassword, err := c.console.ask(ctx, "Current password: ")
		if err != nil {
			return err
		}
		newPassword, err := c.console.ask(ctx, "New password: ")
		if err != nil {
			return err
		}
		return c.ctrl.ChangePassword(ctx, oldPassword, newPassword)
	case "delete-account":
		password, err := c.console.ask(ctx, "Confirm password to permanently delete this account: ")
		if err != nil {
			return err
		}
		return c.ctrl.DeleteAccount(ctx, password)
	case "biometric":
		return c.runBiometric(ctx, args)
	case "categories":
		categories, err := c.content.Categories(ctx)
		return c.print(categories, err)
	case "subcategories":
		ids, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		subs, err := c.content.Subcategories(ctx, ids[0])
		return c.print(subs, err)
	case "modules":
		ids, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		modules, err := c.content.Modules(ctx, ids[0], ids[1])
		return c.print(modules, err)
	case "dashboard":
		dash, err := c.content.Dashboard(ctx)
		return c.print(dash, err)
	case "complete-video", "complete-task":
		ids, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		if cmd == "complete-video" {
			return c.content.CompleteVideo(ctx, ids[0])
		}
		return c.content.CompleteTask(ctx, ids[0])
	case "patients":
		if len(args) != 2 {
			return fmt.Errorf("usage: patients text|id <query>")
		}
		patients, err := c.content.SearchPatients(ctx, args[0], args[1])
		return c.print(patients, err)
	case "patient-graph":
		ids, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		graph, err := c.content.PatientGraph(ctx, ids[0])
		return c.print(graph, err)
	case "register-patient":
		if len(args) != 2 {
			return fmt.Errorf("usage: register-patient <username> <email>")
		}
		password, err := c.console.ask(ctx, "Initial password: ")
		if err != nil {
			return err
		}
		confirm, err := c.console.ask(ctx, "Confirm password: ")
		if err != nil {
			return err
		}
		return c.content.RegisterPatient(ctx, domain.PatientRegistration{
			Username:  args[0],
			Email:     args[1],
			Password:  password,
			Password2: confirm,
		})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *client) runBiometric(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: biometric enable|disable|status")
	}
	switch args[0] {
	case "enable":
		return c.ctrl.EnableBiometrics(ctx)
	case "disable":
		return c.ctrl.DisableBiometrics(ctx)
	case "status":
		state, err := c.ctrl.BiometricState(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, state)
		return nil
	default:
		return fmt.Errorf("unknown biometric action %q", args[0])
	}
}

func (c *client) print(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intArgs(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numeric argument(s)", n)
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		out[i] = v
	}
	return out, nil
}
