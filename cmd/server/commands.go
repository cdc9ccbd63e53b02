package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"loancounselor-backend/internal/api"
	"loancounselor-backend/internal/config"
	"loancounselor-backend/internal/handlers"
	"loancounselor-backend/internal/integrations"
	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// routerGrace is added to the counselor timeout so the service times out before the router does.
const routerGrace = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				opts.cfg.HTTPPort = port
			}
			return runServer(cmd.Context(), opts.cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides HTTP_PORT)")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	router := api.NewRouter(api.RouterDependencies{
		CounselorHandler: handlers.NewCounselorHandlers(a.counselor),
		LenderHandler:    handlers.NewLenderHandlers(a.counselor),
		AllowedOrigins:   cfg.AllowedOrigins(),
		RequestTimeout:   cfg.RequestTimeout + routerGrace,
	})
	log.Info().Msg("HTTP router configured.")

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// Model calls are slow; the write deadline must outlive the router timeout.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 2*routerGrace,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to listen for OS signals for graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopChan)

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("could not listen on %s: %w", cfg.HTTPPort, err)
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-stopChan:
		log.Info().Msg("Shutdown signal received, initiating graceful shutdown...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server graceful shutdown failed: %w", err)
	}
	log.Info().Msg("Server shutdown complete.")
	return nil
}

func newLendersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "lenders",
		Annotations: map[string]string{annotationNoModel: "true"},
		Short:       "Print the lender catalogue as the counselor sees it",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadLenders(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), lenders.FormatLenders(catalog))
			return nil
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var userID, message, studentFile string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send one message to the counselor and print the JSON response",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := readStudentFile(studentFile)
			if err != nil {
				return err
			}
			req := &models.ChatRequest{Message: &message, StudentDetails: details, UserID: &userID}
			if err := services.ValidateChatRequest(req); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			rec, err := a.counselor.GetLoanRecommendation(cmd.Context(), details, message, userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models.ChatResponse{Response: rec})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "conversation user id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "student message")
	cmd.Flags().StringVar(&studentFile, "student-file", "", "JSON file with student_details (- for stdin)")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("student-file")
	return cmd
}

// readStudentFile decodes a student_details object from path, or stdin when path is "-".
func readStudentFile(path string) (models.StudentDetails, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open student file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeStudentDetails(r)
}

func decodeStudentDetails(r io.Reader) (models.StudentDetails, error) {
	var details models.StudentDetails
	if err := json.NewDecoder(r).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode student details: %w", err)
	}
	if details == nil {
		return nil, errors.New("student details must be a JSON object")
	}
	return details, nil
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:         "check",
		Annotations: map[string]string{annotationNoModel: "true"},
		Short:       "Test the connections to the configured Notion and Slack workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			testers, err := connectionTesters(opts.cfg)
			if err != nil {
				return err
			}
			if len(testers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No external integrations configured.")
				return nil
			}
			return runChecks(cmd.Context(), cmd.OutOrStdout(), testers)
		},
	}
}

// connectionTesters returns every configured integration that supports a connection test, keyed by name.
func connectionTesters(cfg *config.Config) (map[string]integrations.ConnectionTester, error) {
	out := make(map[string]integrations.ConnectionTester)

	registry, err := newSourceRegistry(cfg)
	if err != nil {
		return nil, err
	}
	for _, name := range registry.Names() {
		if t, ok := registry.MustGet(name).(integrations.ConnectionTester); ok {
			out[name] = t
		}
	}

	if cfg.SlackEnabled() {
		n, err := newSlackNotifier(cfg)
		if err != nil {
			return nil, err
		}
		out["slack"] = n
	}
	return out, nil
}

func runChecks(ctx context.Context, w io.Writer, testers map[string]integrations.ConnectionTester) error {
	var failed []string
	for _, name := range sortedKeys(testers) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		res, err := testers[name].TestConnection(ctx)
		cancel()
		switch {
		case err != nil:
			failed = append(failed, name)
			fmt.Fprintf(w, "%-8s FAIL %v\n", name, err)
		case !res.Success:
			failed = append(failed, name)
			fmt.Fprintf(w, "%-8s FAIL %s\n", name, res.Message)
		default:
			fmt.Fprintf(w, "%-8s OK   %s\n", name, res.Message)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("connection check failed for %v", failed)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
