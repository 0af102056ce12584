package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/testprep/internal/exam"
	"github.com/pavelanni/testprep/internal/handler"
	appI18n "github.com/pavelanni/testprep/internal/i18n"
	"github.com/pavelanni/testprep/internal/llm"
	"github.com/pavelanni/testprep/internal/llm/prompts"
	"github.com/pavelanni/testprep/internal/model"
	"github.com/pavelanni/testprep/internal/store"
)

const authCleanupInterval = time.Hour

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "testprep",
		Short: "Language test preparation service: exam sessions, grading and progress",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "testprep.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to question files, JSON or YAML (repeatable)")
	f.StringP("lang", "l", "en", "Default language for API messages (en, ru)")
	f.IntP("num-questions", "n", 0, "Default number of questions per session (0 = all available)")
	f.IntP("difficulty", "d", 0, "Default difficulty filter, 1-3 (0 = all)")
	f.StringP("category", "c", "", "Default category filter")
	f.Bool("shuffle", true, "Randomize question order")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("allow-registration", true, "Allow students to create their own accounts")
	f.Float64("pass-threshold", exam.DefaultPassThreshold, "Essay score counted as correct when the teacher gives no verdict")
	f.String("admin-password", "", "Initial admin password (or set TESTPREP_ADMIN_PASSWORD)")
	f.String("exam-id", "", "Exam identifier stored for exports")
	f.String("subject", "", "Subject name stored for exports")
	f.String("date", "", "Exam date stored for exports (YYYY-MM-DD)")
	f.Bool("llm-enabled", false, "Enable LLM grade suggestions for essays")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export session results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "testprep.db", "SQLite database path")
	f.String("exam-id", "", "Exam identifier for output (default: stored value)")
	f.String("subject", "", "Subject name for output (default: stored value)")
	f.String("date", "", "Exam date for output (default: stored value)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

type flagSet interface {
	String(name, value, usage string) *string
	Int(name string, value int, usage string) *int
}

func addLogFlags(f flagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Write logs to this file with rotation instead of stderr")
	f.Int("log-max-size", 10, "Maximum log file size in megabytes before rotation")
	f.Int("log-max-backups", 3, "Number of rotated log files to keep")
	f.Int("log-max-age", 7, "Days to keep rotated log files")
}

// setupLogging installs the default slog logger. The returned closer flushes
// the log file, if any.
func setupLogging(v *viper.Viper) io.Closer {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.WriteCloser = nopCloser{os.Stderr}
	if path := v.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    v.GetInt("log-max-size"),
			MaxBackups: v.GetInt("log-max-backups"),
			MaxAge:     v.GetInt("log-max-age"),
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
	return out
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TESTPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("testprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/testprep")
	v.AddConfigPath("/etc/testprep")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := loadQuestions(ctx, db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	if err := storeExamInfo(ctx, db, v, promptVariant); err != nil {
		return fmt.Errorf("store exam info: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	passThreshold := v.GetFloat64("pass-threshold")
	if err := exam.ValidatePassThreshold(passThreshold); err != nil {
		return fmt.Errorf("invalid --pass-threshold: %w", err)
	}
	opts := exam.Options{PassThreshold: &passThreshold}
	if v.GetBool("llm-enabled") {
		llmClient, err := llm.New(
			v.GetString("llm-url"),
			v.GetString("llm-key"),
			v.GetString("llm-model"),
			promptVariant,
		)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		opts.Advisor = llmClient.WithPassThreshold(passThreshold)
	}

	examCfg := model.ExamConfig{
		NumQuestions:      v.GetInt("num-questions"),
		Difficulty:        v.GetInt("difficulty"),
		Category:          v.GetString("category"),
		Shuffle:           v.GetBool("shuffle"),
		SecureCookies:     v.GetBool("secure-cookies"),
		AllowRegistration: v.GetBool("allow-registration"),
		PassThreshold:     passThreshold,
		PromptVariant:     promptVariant,
	}
	manager, err := exam.NewManager(db, db, opts)
	if err != nil {
		return fmt.Errorf("create exam manager: %w", err)
	}
	h := handler.New(db, manager, examCfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		IsDevelopment:         !examCfg.SecureCookies,
	}).Handler)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	go cleanupAuthSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"num_questions", examCfg.NumQuestions,
		"difficulty", examCfg.Difficulty,
		"category", examCfg.Category,
		"shuffle", examCfg.Shuffle,
		"pass_threshold", passThreshold,
		"llm_enabled", opts.Advisor != nil,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupAuthSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(authCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.CleanupExpiredSessions(ctx); err != nil {
				slog.Error("failed to clean up auth sessions", "error", err)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	defer setupLogging(v).Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	info, err := db.GetExamInfo(ctx)
	if err != nil {
		return fmt.Errorf("read exam info: %w", err)
	}
	results, err := db.ExportAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.ExamExport{
		ExamID:     firstNonEmpty(v.GetString("exam-id"), info.ExamID),
		Subject:    firstNonEmpty(v.GetString("subject"), info.Subject),
		Date:       firstNonEmpty(v.GetString("date"), info.Date),
		ExportedAt: time.Now().UTC(),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported sessions", "count", len(results), "output", outPath)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

func loadQuestions(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, _, err := db.ImportFile(ctx, path, data); err != nil {
			return err
		}
	}
	count, err := db.QuestionCount(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Warn("question bank is empty; upload questions via /api/admin/questions")
	}
	return nil
}

// storeExamInfo records exam metadata given on the command line. Empty
// flags keep the stored values.
func storeExamInfo(ctx context.Context, db *store.Store, v *viper.Viper, promptVariant string) error {
	info, err := db.GetExamInfo(ctx)
	if err != nil {
		return err
	}
	info.ExamID = firstNonEmpty(v.GetString("exam-id"), info.ExamID)
	info.Subject = firstNonEmpty(v.GetString("subject"), info.Subject)
	info.Date = firstNonEmpty(v.GetString("date"), info.Date)
	info.PromptVariant = promptVariant
	return db.SetExamInfo(ctx, info)
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or TESTPREP_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
