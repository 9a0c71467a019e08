package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/tinyopds/tinyopds/pkg/auth"
	"github.com/tinyopds/tinyopds/pkg/config"
	"github.com/tinyopds/tinyopds/pkg/converter"
	"github.com/tinyopds/tinyopds/pkg/covers"
	"github.com/tinyopds/tinyopds/pkg/crypt"
	"github.com/tinyopds/tinyopds/pkg/epub"
	"github.com/tinyopds/tinyopds/pkg/genres"
	"github.com/tinyopds/tinyopds/pkg/library"
	"github.com/tinyopds/tinyopds/pkg/scanner"
	"github.com/tinyopds/tinyopds/pkg/server"
	"github.com/tinyopds/tinyopds/pkg/version"
	"github.com/tinyopds/tinyopds/pkg/watcher"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	app := &cli.App{
		Name:        "tinyopds",
		Usage:       "personal OPDS e-book catalog server",
		Description: "Indexes FB2 and EPUB books and serves them as an OPDS catalog",
		Version:     version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "tinyopds.yml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "scan the library and serve the OPDS catalog",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "scan the library once and write the catalog database",
				Action: scanOnce,
			},
			{
				Name:      "encred",
				Usage:     "encrypt credentials for the config file",
				ArgsUsage: "user:pass[;user:pass...] [key]",
				Action:    encred,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("tinyopds failed")
	}
}

func serve(c *cli.Context) error {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting tinyopds", logger.Data{"version": version.Version})

	cfg, err := config.New(c.String("config"))
	if err != nil {
		return err
	}

	taxonomy, err := genres.Load()
	if err != nil {
		return err
	}

	lib := library.New(cfg.LibraryPath, cfg.DataDir, cfg.RussianLanguage())
	lib.Load()
	log.Info("catalog loaded", logger.Data{
		"books": lib.Count(),
		"fb2":   lib.FB2Count(),
		"epub":  lib.EPUBCount(),
	})

	parser := epub.NewParser(taxonomy)
	scn := scanner.New(lib, parser)

	if lib.Count() == 0 {
		runScan(lib, scn, log)
	}

	var wtr *watcher.Watcher
	if cfg.WatchLibrary {
		wtr = watcher.New(lib, scn)
		if err := wtr.Start(); err != nil {
			return err
		}
		log.Info("library watcher started", logger.Data{"path": cfg.LibraryPath})
	}

	stats := &auth.Stats{}
	guard, err := newGuard(cfg, stats)
	if err != nil {
		return err
	}

	coverCache, err := covers.New(lib, parser,
		covers.Size{Width: cfg.CoverWidth, Height: cfg.CoverHeight},
		covers.Size{Width: cfg.ThumbnailWidth, Height: cfg.ThumbnailHeight})
	if err != nil {
		return err
	}

	conv := converter.New(cfg.ConvertorPath)
	if conv.Available() {
		log.Info("fb2 converter found", logger.Data{"path": cfg.ConvertorPath})
	}

	srv := server.New(cfg, lib, taxonomy, guard, stats, coverCache, conv)

	graceful := signals.Setup()

	go func() {
		log.Info("server started", logger.Data{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	if err := srv.Shutdown(ctx); err != nil {
		log.Err(err).Error("server shutdown error")
	}

	if wtr != nil {
		wtr.Stop()
		log.Info("library watcher stopped")
	}
	scn.Stop()

	if lib.IsChanged() {
		lib.Save()
		log.Info("catalog saved", logger.Data{"path": lib.DatabasePath()})
	}

	log.Info("session statistics", logger.Data{
		"requests":          stats.Requests(),
		"books_sent":        stats.BooksSent(),
		"images_sent":       stats.ImagesSent(),
		"successful_logins": stats.SuccessfulLogins(),
		"wrong_logins":      stats.WrongLogins(),
		"unique_clients":    guard.UniqueClients(),
	})
	return nil
}

func scanOnce(c *cli.Context) error {
	log := logger.New()

	cfg, err := config.New(c.String("config"))
	if err != nil {
		return err
	}

	taxonomy, err := genres.Load()
	if err != nil {
		return err
	}

	lib := library.New(cfg.LibraryPath, cfg.DataDir, cfg.RussianLanguage())
	lib.Load()

	scn := scanner.New(lib, epub.NewParser(taxonomy))
	runScan(lib, scn, log)

	lib.Save()
	log.Info("catalog saved", logger.Data{"path": lib.DatabasePath()})
	return nil
}

func runScan(lib *library.Library, scn *scanner.Scanner, log logger.Logger) {
	log.Info("scanning library", logger.Data{"path": lib.Path()})

	var found, invalid, skipped int
	for ev := range scn.Scan(lib.Path(), true) {
		switch ev.Type {
		case scanner.BookFound:
			if lib.Add(ev.Book) {
				found++
			}
		case scanner.InvalidBook:
			invalid++
		case scanner.FileSkipped:
			skipped++
		}
	}

	log.Info("scan completed", logger.Data{
		"found":   found,
		"invalid": invalid,
		"skipped": skipped,
		"books":   lib.Count(),
		"fb2":     lib.FB2Count(),
		"epub":    lib.EPUBCount(),
	})
}

func encred(c *cli.Context) error {
	pairs := c.Args().Get(0)
	if pairs == "" || !strings.Contains(pairs, ":") {
		return errors.New("expected credentials in user:pass[;user:pass...] form")
	}
	key := c.Args().Get(1)
	if key == "" {
		key = "tinyopds"
	}

	blob, err := crypt.Encrypt(pairs, key)
	if err != nil {
		return err
	}
	fmt.Println(blob)
	return nil
}

// newGuard decrypts the configured credentials blob and builds the auth
// gate. Auth enabled with no valid credentials is a configuration error.
func newGuard(cfg *config.Config, stats *auth.Stats) (*auth.Guard, error) {
	var creds []auth.Credential
	if cfg.Credentials != "" {
		plain, err := crypt.Decrypt(cfg.Credentials, cfg.CredentialsKey)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt credentials")
		}
		creds = auth.ParseCredentials(plain)
	}
	if cfg.UseHTTPAuth && len(creds) == 0 {
		return nil, errors.New("http auth enabled but no credentials configured")
	}

	return auth.NewGuard(auth.Options{
		Enabled:         cfg.UseHTTPAuth,
		RememberClients: cfg.RememberClients,
		BanClients:      cfg.BanClients,
		BanThreshold:    cfg.WrongAttemptsCount,
		Credentials:     creds,
	}, stats), nil
}
