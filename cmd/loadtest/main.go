package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
)

type config struct {
	baseURL     string
	users       []string
	product     string
	quantity    int32
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	jwtSecret   string
	jwtIssuer   string
	outputPath  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "loadtest",
		Usage: "drive cart and checkout scenarios against the checkout HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://localhost:8080", Usage: "HTTP API base URL"},
			&cli.StringFlag{Name: "users", Value: "u1", Usage: "comma-separated user ids present in the catalog"},
			&cli.StringFlag{Name: "product", Value: "P1", Usage: "product id to put into carts"},
			&cli.IntFlag{Name: "quantity", Value: 1, Usage: "quantity per cart line"},
			&cli.IntFlag{Name: "total", Value: 400, Usage: "scenarios in count mode; upper bound in duration mode when set"},
			&cli.DurationFlag{Name: "duration", Usage: "optional time-based run duration (e.g. 10m)"},
			&cli.IntFlag{Name: "concurrency", Value: 40, Usage: "number of concurrent workers"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-scenario timeout"},
			&cli.StringFlag{Name: "mode", Value: string(modeCart), Usage: "load mode: cart | checkout"},
			&cli.StringFlag{Name: "jwt-secret", EnvVars: []string{"CHECKOUT_JWT_SECRET"}, Usage: "HMAC secret to mint bearer tokens"},
			&cli.StringFlag{Name: "jwt-issuer", EnvVars: []string{"CHECKOUT_JWT_ISSUER"}, Usage: "token issuer"},
			&cli.StringFlag{Name: "output", Usage: "optional JSON report output file path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			result, err := run(c.Context, cfg, http.DefaultClient)
			if err != nil {
				return err
			}

			printReport(out, result, cfg)
			if cfg.outputPath != "" {
				if err := writeJSONReport(cfg.outputPath, result); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if result.FailedScenarios > 0 {
				return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
			}
			return nil
		},
	}
}

func readConfig(c *cli.Context) (config, error) {
	cfg := config{
		baseURL:     strings.TrimRight(strings.TrimSpace(c.String("addr")), "/"),
		users:       splitList(c.String("users")),
		product:     strings.TrimSpace(c.String("product")),
		quantity:    int32(c.Int("quantity")),
		total:       c.Int("total"),
		totalSet:    c.IsSet("total"),
		duration:    c.Duration("duration"),
		concurrency: c.Int("concurrency"),
		timeout:     c.Duration("timeout"),
		jwtSecret:   c.String("jwt-secret"),
		jwtIssuer:   c.String("jwt-issuer"),
		outputPath:  c.String("output"),
	}

	mode, err := parseMode(strings.TrimSpace(c.String("mode")))
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("addr is required")
	case len(cfg.users) == 0:
		return cfg, errors.New("at least one user is required")
	case cfg.product == "":
		return cfg, errors.New("product is required")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case strings.TrimSpace(cfg.jwtSecret) == "":
		return cfg, errors.New("jwt-secret (or CHECKOUT_JWT_SECRET) is required")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(chunk); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// run выпускает токены пользователям и гоняет сценарии пулом воркеров.
func run(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	auth := httpapi.NewAuthenticator(cfg.jwtSecret, cfg.jwtIssuer)
	tokenTTL := cfg.duration + cfg.timeout + time.Hour
	tokens := make(map[string]string, len(cfg.users))
	for _, user := range cfg.users {
		token, err := auth.Issue(user, domain.RoleUser, tokenTTL)
		if err != nil {
			return report{}, fmt.Errorf("issue token for %s: %w", user, err)
		}
		tokens[user] = token
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	client := &apiClient{baseURL: cfg.baseURL, http: httpClient, tokens: tokens, col: newCollector()}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(ctx, client, cfg, index, runID)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return client.col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}
