package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/runplan/internal/e2etest"
	"github.com/myrjola/runplan/internal/logging"
	"github.com/myrjola/runplan/internal/testhelpers"
	"golang.org/x/sync/errgroup"
)

const (
	testTimeout                = 10 * time.Second
	userRegistrationTimeout    = 30 * time.Second
	scenarioTimeout            = 30 * time.Second
	maxConcurrentRegistrations = 10
	maxConcurrentOperations    = 20
	successRateThreshold       = 95.0
	expectedArgsCount          = 2
	percentageMultiplier       = 100
	planWeeks                  = "12"
	planDaysPerWeek            = "4"
)

// AuthenticatedUser holds a client with valid session.
type AuthenticatedUser struct {
	Client *e2etest.Client
	UserID string
}

func TestAuth(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()
	var err error

	if _, err = client.Register(ctx); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if _, err = client.Logout(ctx); err != nil {
		return fmt.Errorf("logout user: %w", err)
	}
	if _, err = client.Login(ctx); err != nil {
		return fmt.Errorf("login user: %w", err)
	}
	return nil
}

// RegisterAndAuthenticateUser creates a new user and logs them in.
func RegisterAndAuthenticateUser(
	ctx context.Context,
	url, hostname string,
	userIndex int,
	logger *slog.Logger,
) (*AuthenticatedUser, error) {
	// Create a new client for this user (each needs their own session)
	client, err := e2etest.NewClient(url, hostname, url)
	if err != nil {
		return nil, fmt.Errorf("creating client for user %d: %w", userIndex, err)
	}

	// Register the user
	if _, err = client.Register(ctx); err != nil {
		return nil, fmt.Errorf("registering user %d: %w", userIndex, err)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "User registered and authenticated",
		slog.Int("user_index", userIndex))

	return &AuthenticatedUser{
		Client: client,
		UserID: fmt.Sprintf("user_%d", userIndex),
	}, nil
}

// SetupUsers registers and authenticates the specified number of users.
func SetupUsers(
	ctx context.Context,
	url, hostname string,
	numUsers int,
	logger *slog.Logger,
) ([]*AuthenticatedUser, error) {
	logger.LogAttrs(ctx, slog.LevelInfo, "Starting user registration", slog.Int("num_users", numUsers))

	var (
		users    = make([]*AuthenticatedUser, 0, numUsers)
		usersMu  sync.Mutex
		wg       sync.WaitGroup
		errCh    = make(chan error, numUsers)
		failures = make([]error, 0, numUsers)
	)

	// Limit concurrency to avoid overwhelming the server
	semaphore := make(chan struct{}, maxConcurrentRegistrations)

	for i := range numUsers {
		wg.Add(1)
		go func(userIndex int) {
			defer wg.Done()

			// Acquire semaphore
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// Create context with timeout for this user
			userCtx, cancel := context.WithTimeout(ctx, userRegistrationTimeout)
			defer cancel()

			user, err := RegisterAndAuthenticateUser(userCtx, url, hostname, userIndex, logger)
			if err != nil {
				errCh <- fmt.Errorf("user %d: %w", userIndex, err)
				return
			}

			usersMu.Lock()
			users = append(users, user)
			usersMu.Unlock()
		}(i)
	}

	// Wait for all goroutines to complete
	wg.Wait()
	close(errCh)

	// Check for errors
	for err := range errCh {
		failures = append(failures, err)
	}

	if len(failures) > 0 {
		logger.LogAttrs(ctx, slog.LevelError, "Some user registrations failed",
			slog.Int("failed_count", len(failures)),
			slog.Int("successful_count", len(users)))

		return users, fmt.Errorf("registration failures: %w", failures[0])
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "All users registered successfully",
		slog.Int("total_users", len(users)))

	return users, nil
}

// findFirstRunLink picks the first uncompleted run of the current week.
func findFirstRunLink(doc *goquery.Document) string {
	var href string
	doc.Find("ul.day-list li:not(.completed) a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if link, exists := s.Attr("href"); exists {
			href = link
			return false
		}
		return true
	})
	return href
}

// TrainingScenario represents a complete training flow for stress testing:
// configure the plan, open the current week, and complete one session.
func TrainingScenario(ctx context.Context, user *AuthenticatedUser, logger *slog.Logger) error {
	client := user.Client

	// Configure the training plan
	doc, err := client.GetDoc(ctx, "/preferences")
	if err != nil {
		return fmt.Errorf("failed to get preferences: %w", err)
	}

	formData := map[string]string{
		"Plan length":            planWeeks,
		"Training days per week": planDaysPerWeek,
		"Plan start date":        time.Now().Format(time.DateOnly),
		"Preferred unit":         "metric",
	}
	if doc, err = client.SubmitForm(ctx, doc, "/preferences", formData); err != nil {
		return fmt.Errorf("failed to submit preferences: %w", err)
	}

	// The home page shows the current week with its run sessions.
	runLink := findFirstRunLink(doc)
	if runLink == "" {
		return errors.New("no run session found on the dashboard")
	}

	// Open the session, which also exercises the workout guide path.
	if doc, err = client.GetDoc(ctx, runLink); err != nil {
		return fmt.Errorf("failed to get session page: %w", err)
	}

	// Complete the session.
	if _, err = client.SubmitForm(ctx, doc, runLink+"/complete", nil); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	// Fetch the program overview which is a common operation after a run.
	if _, err = client.GetDoc(ctx, "/program"); err != nil {
		return fmt.Errorf("failed to get program page: %w", err)
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "Training scenario completed",
		slog.String("user_id", user.UserID),
		slog.String("session", runLink))

	return nil
}

// RunLoadTest performs the actual load testing with authenticated users.
func RunLoadTest(ctx context.Context, users []*AuthenticatedUser, logger *slog.Logger) error {
	userCount := len(users)
	logger.LogAttrs(ctx, slog.LevelInfo, "Starting load test", slog.Int("num_users", userCount))

	// Counters for success/failure tracking
	var successCount, failureCount int64

	// Create errgroup with context and limit concurrency
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)

	// Launch all scenarios
	for _, user := range users {
		g.Go(func() error {
			// Create context with timeout for this scenario
			scenarioCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
			defer cancel()

			if err := TrainingScenario(scenarioCtx, user, logger); err != nil {
				atomic.AddInt64(&failureCount, 1)
				// Log individual failures but don't stop the entire test
				logger.LogAttrs(scenarioCtx, slog.LevelWarn, "Scenario failed",
					slog.String("user_id", user.UserID),
					slog.Any("error", err))
				return nil // Don't propagate error to avoid stopping other scenarios
			}

			atomic.AddInt64(&successCount, 1)
			return nil
		})
	}

	// Wait for all scenarios to complete
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load test failed: %w", err)
	}

	// Report results
	successRate := float64(successCount) / float64(userCount) * percentageMultiplier

	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed",
		slog.Int64("successful", successCount),
		slog.Int64("failed", failureCount),
		slog.Float64("success_rate", successRate))

	// Consider test failed if success rate is too low
	if successRate < successRateThreshold {
		return fmt.Errorf("load test failed: success rate %.1f%% below threshold", successRate)
	}

	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) != expectedArgsCount {
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		numUsers = 10
		start    = time.Now()
	)

	ctx = logging.WithAttrs(ctx, slog.String("hostname", hostname))

	// First, run the original smoke test to ensure basic functionality
	logger.LogAttrs(ctx, slog.LevelInfo, "Running smoke test first...")
	url := "https://" + hostname
	if strings.Contains(hostname, "localhost") {
		url = "http://" + hostname
		hostname = "localhost"
	}
	client, err := e2etest.NewClient(url, hostname, url)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", slog.Any("error", err))
		os.Exit(1)
	}

	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready in time", slog.Any("error", err))
		os.Exit(1)
	}

	if err = TestAuth(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "smoke test failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test passed")

	// Setup users for load testing
	setupStart := time.Now()
	users, err := SetupUsers(ctx, url, hostname, numUsers, logger)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failed to setup users", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "User setup completed",
		slog.Duration("setup_duration", time.Since(setupStart)),
		slog.Int("authenticated_users", len(users)))

	// Run load test
	loadTestStart := time.Now()
	if err = RunLoadTest(ctx, users, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "load test failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Load test completed successfully 🙌",
		slog.Duration("total_duration", time.Since(start)),
		slog.Duration("load_test_duration", time.Since(loadTestStart)),
		slog.Int("users_tested", len(users)))
}
