package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"fknsrs.biz/p/sorm"
	rfccache "github.com/bxcodec/httpcache"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tdewolff/minify"
	"github.com/tdewolff/minify/css"
	"github.com/tdewolff/minify/html"
	"github.com/tdewolff/minify/js"
	"github.com/urfave/negroni/v2"
	"go.etcd.io/bbolt"

	"fknsrs.biz/p/ytmentions/handlers"
	"fknsrs.biz/p/ytmentions/internal/bboltstorage"
	"fknsrs.biz/p/ytmentions/internal/cachepurge"
	"fknsrs.biz/p/ytmentions/internal/config"
	"fknsrs.biz/p/ytmentions/internal/configreader"
	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxconfig"
	"fknsrs.biz/p/ytmentions/internal/ctxdb"
	"fknsrs.biz/p/ytmentions/internal/ctxhttpclient"
	"fknsrs.biz/p/ytmentions/internal/ctxjobqueue"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/ctxprocessing"
	"fknsrs.biz/p/ytmentions/internal/ctxsession"
	"fknsrs.biz/p/ytmentions/internal/ctxtemplate"
	"fknsrs.biz/p/ytmentions/internal/ctxtimer"
	"fknsrs.biz/p/ytmentions/internal/httpcache"
	"fknsrs.biz/p/ytmentions/internal/jobqueue"
	"fknsrs.biz/p/ytmentions/internal/journal"
	"fknsrs.biz/p/ytmentions/internal/logrusstackhook"
	"fknsrs.biz/p/ytmentions/internal/migrate"
	"fknsrs.biz/p/ytmentions/internal/processing"
	"fknsrs.biz/p/ytmentions/internal/queuenames"
	"fknsrs.biz/p/ytmentions/internal/sessions"
	"fknsrs.biz/p/ytmentions/internal/sqlitelogger"
	"fknsrs.biz/p/ytmentions/internal/templatecollection"
	"fknsrs.biz/p/ytmentions/internal/templatefuncs"
	"fknsrs.biz/p/ytmentions/internal/transcriptcheck"
	"fknsrs.biz/p/ytmentions/internal/triage"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type simpleQueryLogger struct {
	logger *logrus.Logger
}

func (s *simpleQueryLogger) LogQuery(query string, args []interface{}) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Info("sorm query start")
}

func (s *simpleQueryLogger) LogQueryAfter(query string, args []interface{}, duration time.Duration, err error) {
	fields := logrus.Fields{
		"db.query":      query,
		"db.duration":   duration,
		"db.error":      err,
		"db.args.count": len(args),
	}

	for i, e := range args {
		fields[fmt.Sprintf("db.args.%d", i)] = e
	}

	s.logger.WithFields(fields).Info("sorm query finish")
}

func readConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("readConfig: could not load .env file: %w", err)
	}

	cfg := config.Defaults()

	for _, configPath := range []string{"config.toml", "config.yaml", "config.yml"} {
		if st, err := os.Stat(configPath); err == nil && st != nil && !st.IsDir() {
			cfg.Config = configPath
		}
	}

	if err := configreader.Read(os.Args[0], os.Args[1:], os.Environ(), &cfg); err != nil {
		return config.Config{}, fmt.Errorf("readConfig: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("readConfig: %w", err)
	}

	return cfg, nil
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = ctxconfig.WithConfig(ctx, cfg)
	ctx = ctxclock.WithClock(ctx, ctxclock.NewRealClock())
	ctx = ctxclock.WithScheduler(ctx, ctxclock.NewRealScheduler())

	logger := logrus.New()

	logger.SetLevel(cfg.LogLevel)
	if len(cfg.LogDebugLevels) > 0 {
		logger.AddHook(logrusstackhook.NewStackHook(cfg.LogDebugLevels, nil))
	}

	logger.WithFields(logrus.Fields{
		"config.config":                  cfg.Config,
		"config.log_level":               cfg.LogLevel,
		"config.log_debug_levels":        cfg.LogDebugLevels,
		"config.log_queries":             cfg.LogQueries,
		"config.log_sorm":                cfg.LogSORM,
		"config.application_addr":        cfg.ApplicationAddr,
		"config.application_cache_path":  cfg.ApplicationCachePath,
		"config.application_database":    cfg.ApplicationDatabase,
		"config.application_minify":      cfg.ApplicationMinify,
		"config.background_workers":      cfg.BackgroundWorkers,
		"config.service_url":             cfg.ServiceURL,
		"config.transcript_service_url":  cfg.TranscriptServiceURL,
		"config.service_timeout":         cfg.ServiceTimeout,
		"config.operator_name":           cfg.OperatorName,
		"config.page_size":               cfg.PageSize,
		"config.ready_limit":             cfg.ReadyLimit,
		"config.refresh_delay":           cfg.RefreshDelay,
		"config.languages":               cfg.Languages,
		"config.thumbnail_cache_max_age": cfg.ThumbnailCacheMaxAge,
	}).Info("program starting")

	if cfg.LogSORM {
		sorm.SetQueryLogger(&simpleQueryLogger{logger})
	}

	ctx = ctxlogger.WithLogger(ctx, logger)

	dbDriver := "sqlite3"

	if !cfg.LogQueries.IsZero() {
		dbDriver = "sqlite3:logged"

		sql.Register(dbDriver, sqlitelogger.New(
			&sqlite3.SQLiteDriver{},
			&sqlitelogger.BasicFilter{
				LogSlowerThan: cfg.LogQueries.SlowerThan,
				IgnorePackageStackFrames: []string{
					// standard library
					"database/sql",
					"net/http",
					"runtime",
					// libraries
					"github.com/gorilla/mux",
					"github.com/shogo82148/go-sql-proxy",
					"github.com/urfave/negroni/v2",
					// middleware
					"fknsrs.biz/p/ytmentions/internal/ctxclock",
					"fknsrs.biz/p/ytmentions/internal/ctxconfig",
					"fknsrs.biz/p/ytmentions/internal/ctxdb",
					"fknsrs.biz/p/ytmentions/internal/ctxjobqueue",
					"fknsrs.biz/p/ytmentions/internal/ctxlogger",
					"fknsrs.biz/p/ytmentions/internal/ctxprocessing",
					"fknsrs.biz/p/ytmentions/internal/ctxsession",
					"fknsrs.biz/p/ytmentions/internal/ctxtemplate",
					"fknsrs.biz/p/ytmentions/internal/ctxtimer",
					"fknsrs.biz/p/ytmentions/internal/sqlitelogger",
					// main
					"main",
				},
				IgnoreFunctionQueries: []string{
					"fknsrs.biz/p/ytmentions/internal/jobqueue.(*Worker).Run",
				},
			},
		))
	}

	db, err := sql.Open(dbDriver, cfg.ApplicationDatabase)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx = ctxdb.WithDB(ctx, db)

	applied, err := migrate.Run(ctx, db)
	if err != nil {
		panic(err)
	}
	logger.WithField("db.migrations_applied", applied).Info("database ready")

	cacheDB, err := bbolt.Open(cfg.ApplicationCachePath, 0600, nil)
	if err != nil {
		panic(err)
	}
	defer cacheDB.Close()

	serviceClient := ctxhttpclient.New(cfg.ServiceTimeout, nil)

	ctx = ctxhttpclient.WithHTTPClient(ctx, serviceClient)

	artifactClient := ctxhttpclient.New(cfg.ServiceTimeout, nil)
	if _, err := rfccache.NewWithCustomStorageCache(artifactClient, true, bboltstorage.New(cacheDB, "")); err != nil {
		panic(err)
	}

	thumbnails := httpcache.NewBBoltStorage(cacheDB, "")

	client := processing.New(cfg.ServiceURL, cfg.TranscriptServiceURL)
	client.ArtifactClient = artifactClient
	client.ThumbnailClient = ctxhttpclient.New(cfg.ServiceTimeout, httpcache.NewTransport(nil, thumbnails, cfg.ThumbnailCacheMaxAge))

	ctx = ctxprocessing.WithClient(ctx, client)

	jobs := jobqueue.NewWorker(nil)
	jobs.SetPriority(queuenames.Priority)
	ctx = ctxjobqueue.WithWorker(ctx, jobs)

	if err := registerJobQueueWorkerFunctions(ctx, client, thumbnails, cfg); err != nil {
		panic(err)
	}

	if _, err := cachepurge.Ensure(ctx); err != nil {
		panic(err)
	}

	registry := sessions.New(ctx, cacheDB, client, triage.Options{
		Operator:          cfg.OperatorName,
		PageSize:          cfg.PageSize,
		ReadyLimit:        cfg.ReadyLimit,
		RefreshDelay:      cfg.RefreshDelay,
		ProcessingOptions: cfg.ProcessingOptions(),
		Journal:           journal.New(),
	})
	defer func() {
		if err := registry.Close(); err != nil {
			logger.WithError(err).Error("could not save sessions")
		}
	}()

	workers := []worker{
		{
			name: "application",
			run: func(ctx context.Context) error {
				return runApplicationWorker(ctx, cfg, registry)
			},
		},
		{
			name: "sessions",
			run:  registry.Run,
		},
	}

	for i := 0; i < cfg.BackgroundWorkers; i++ {
		workers = append(workers, worker{
			name: fmt.Sprintf("job_queue.%d", i),
			run: func(ctx context.Context) error {
				return runJobQueueWorker(ctx)
			},
		})
	}

	if err := runAllWorkers(ctx, workers); err != nil {
		panic(err)
	}

	logger.Info("program stopped")
}

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runAllWorkers keeps every worker running until ctx is done. A failed worker
// cancels the others so they restart together.
func runAllWorkers(ctx context.Context, workers []worker) error {
	done := make(chan error, len(workers))
	cancellers := make([]context.CancelCauseFunc, len(workers))

	var rw sync.RWMutex

	for id, w := range workers {
		go func(id int, w worker) {
			for {
				l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
					"worker.id":   id + 1,
					"worker.name": w.name,
				})

				wctx, cancel := context.WithCancelCause(ctxlogger.WithLogger(ctx, l))

				rw.Lock()
				cancellers[id] = cancel
				rw.Unlock()

				err := w.run(wctx)
				cancel(nil)

				if ctx.Err() != nil {
					l.Info("worker stopped")
					done <- nil
					return
				}

				if err != nil && !errors.Is(err, context.Canceled) {
					l.WithError(err).Error("worker failed")

					rw.RLock()
					for i, fn := range cancellers {
						if fn == nil || i == id {
							continue
						}

						fn(fmt.Errorf("worker %d (%s) failed: %w", id+1, w.name, err))
					}
					rw.RUnlock()
				} else {
					l.Info("worker restarted")
				}

				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}(id, w)
	}

	var errs []error
	for range workers {
		if err := <-done; err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func directoryExists(name string) bool {
	st, err := os.Stat(name)
	if err != nil {
		return false
	}
	return st.IsDir()
}

func skipPrefixes(prefixes []string, fn negroni.HandlerFunc) negroni.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				next(rw, r)
				return
			}
		}

		fn(rw, r, next)
	}
}

func runApplicationWorker(ctx context.Context, cfg config.Config, registry *sessions.Registry) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{
		"args.addr": cfg.ApplicationAddr,
	}).Info("running application worker")

	var templates templatecollection.Collection

	if directoryExists("templates") {
		l.Info("using live filesystem for templates")
		c, err := templatecollection.NewLive(os.DirFS("templates"), templatefuncs.Funcs())
		if err != nil {
			return fmt.Errorf("runApplicationWorker: %w", err)
		}
		templates = c
	} else {
		l.Info("using embedded filesystem for templates")
		c, err := templatecollection.NewCached(templateFS, templatefuncs.Funcs())
		if err != nil {
			return fmt.Errorf("runApplicationWorker: %w", err)
		}
		templates = c
	}

	m := mux.NewRouter()

	m.Methods(http.MethodGet).Path("/").HandlerFunc(handlers.Index)
	m.Methods(http.MethodGet).Path("/videos").HandlerFunc(handlers.Videos)
	m.Methods(http.MethodGet).Path("/videos/updates").HandlerFunc(handlers.VideoUpdates)
	m.Methods(http.MethodPost).Path("/videos/filter").HandlerFunc(handlers.VideosFilter)
	m.Methods(http.MethodPost).Path("/videos/filter/clear").HandlerFunc(handlers.VideosFilterClear)
	m.Methods(http.MethodPost).Path("/videos/page").HandlerFunc(handlers.VideosPage)
	m.Methods(http.MethodPost).Path("/videos/refresh").HandlerFunc(handlers.VideosRefresh)
	m.Methods(http.MethodPost).Path("/videos/select").HandlerFunc(handlers.VideosSelect)
	m.Methods(http.MethodPost).Path("/videos/process-selected").HandlerFunc(handlers.VideosProcessSelected)
	m.Methods(http.MethodPost).Path("/videos/process-ready").HandlerFunc(handlers.VideosProcessReady)
	m.Methods(http.MethodPost).Path("/videos/check-transcripts").HandlerFunc(handlers.VideosCheckTranscripts)
	m.Methods(http.MethodGet).Path("/videos/{video_id}").HandlerFunc(handlers.Video)
	m.Methods(http.MethodPost).Path("/videos/{video_id}/skip").HandlerFunc(handlers.VideoSkip)
	m.Methods(http.MethodPost).Path("/selection/add").HandlerFunc(handlers.SelectionAdd)
	m.Methods(http.MethodPost).Path("/selection/remove").HandlerFunc(handlers.SelectionRemove)
	m.Methods(http.MethodPost).Path("/selection/page").HandlerFunc(handlers.SelectionPage)
	m.Methods(http.MethodPost).Path("/selection/clear").HandlerFunc(handlers.SelectionClear)
	m.Methods(http.MethodPost).Path("/selection/paste").HandlerFunc(handlers.SelectionPaste)
	m.Methods(http.MethodPost).Path("/options").HandlerFunc(handlers.Options)
	m.Methods(http.MethodGet).Path("/thumbnails/{video_id}").HandlerFunc(handlers.Thumbnail)
	m.Methods(http.MethodGet).Path("/journal").HandlerFunc(handlers.Journal)
	m.Methods(http.MethodGet).Path("/jobs").HandlerFunc(handlers.Jobs)
	m.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.Handler())

	if directoryExists("static") {
		l.Info("using live filesystem for static files")
		m.Methods(http.MethodGet).PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	} else {
		l.Info("using embedded filesystem for static files")
		m.Methods(http.MethodGet).PathPrefix("/static/").Handler(http.FileServer(http.FS(staticFS)))
	}

	min := minify.New()
	min.Add("text/html", html.DefaultMinifier)
	min.Add("text/css", css.DefaultMinifier)
	min.Add("application/javascript", js.DefaultMinifier)

	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(ctxtimer.Register(nil))
	n.UseFunc(ctxclock.Register(ctxclock.GetClock(ctx)))
	n.UseFunc(ctxtemplate.Register(templates))
	n.UseFunc(ctxdb.Register(ctxdb.GetDB(ctx)))
	n.UseFunc(ctxjobqueue.Register(ctxjobqueue.GetWorker(ctx)))
	n.UseFunc(ctxconfig.Register(cfg))
	n.UseFunc(ctxhttpclient.Register(ctxhttpclient.GetHTTPClient(ctx)))
	n.UseFunc(ctxprocessing.Register(ctxprocessing.GetClient(ctx)))
	n.UseFunc(skipPrefixes([]string{"/static/", "/metrics"}, ctxsession.Register(registry, cfg.SessionCookie)))
	n.UseFunc(ctxtimer.AddLoggerHooks())
	n.UseFunc(ctxclock.AddLoggerHooks())
	n.UseFunc(ctxlogger.Log("/static/", "/thumbnails/", "/metrics"))

	n.UseFunc(ctxtemplate.RegisterMessages())

	if cfg.ApplicationMinify {
		n.UseFunc(skipPrefixes([]string{"/videos/updates", "/thumbnails/", "/metrics"}, func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
			if strings.ToLower(r.Header.Get("connection")) != "upgrade" && !strings.Contains(r.Header.Get("accept"), "text/event-stream") {
				mw := min.ResponseWriter(rw, r)
				defer mw.Close()
				rw = mw
			}

			next(rw, r)
		}))
	}

	n.UseHandler(m)

	s := &http.Server{
		Addr:        cfg.ApplicationAddr,
		Handler:     n,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		l.Info("starting server")
		errs <- s.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

func registerJobQueueWorkerFunctions(ctx context.Context, client *processing.Client, thumbnails cachepurge.Purger, cfg config.Config) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{}).Info("registering job queue worker functions")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.RegisterAll(map[string]jobqueue.WorkerFunction{
		queuenames.TranscriptCheck: transcriptcheck.WorkerFunction(client),
		queuenames.CachePurge:      cachepurge.WorkerFunction(thumbnails, cfg.ThumbnailCacheMaxAge, cachepurge.DefaultInterval),
	})
}

func runJobQueueWorker(ctx context.Context) error {
	l := ctxlogger.GetLogger(ctx)

	l.WithFields(logrus.Fields{}).Info("running job queue worker")

	w := ctxjobqueue.GetWorker(ctx)
	if w == nil {
		return fmt.Errorf("job queue worker not available in context")
	}

	return w.Run(ctx)
}
