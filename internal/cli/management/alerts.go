package management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/andrew/mentor-gateway/internal/auth"
	"github.com/andrew/mentor-gateway/internal/database/models"
)

// Store is the persistence the manager operates on
type Store interface {
	ListQuotaAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.QuotaAlert, error)
	AcknowledgeQuotaAlert(ctx context.Context, id int64) error
	GetUsageStats(ctx context.Context, since *time.Time) (*models.UsageStats, error)
}

const listLimit = 200

// AlertManager handles quota alert review from the terminal
type AlertManager struct {
	store Store
	out   io.Writer
}

// NewAlertManager creates a new alert manager writing to out
func NewAlertManager(store Store, out io.Writer) *AlertManager {
	return &AlertManager{store: store, out: out}
}

// Run starts the interactive TUI
func (am *AlertManager) Run(ctx context.Context) error {
	for {
		var action string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Mentor Gateway - Quota Alerts").
					Options(
						huh.NewOption("List open alerts", "list"),
						huh.NewOption("Acknowledge alerts", "ack"),
						huh.NewOption("Usage summary (today)", "usage"),
						huh.NewOption("Generate admin token", "token"),
						huh.NewOption("Exit", "exit"),
					).
					Value(&action),
			),
		)

		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(am.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		var err error
		switch action {
		case "list":
			err = am.listAlertsInteractive(ctx)
		case "ack":
			err = am.acknowledgeInteractive(ctx)
		case "usage":
			err = am.usageInteractive(ctx)
		case "token":
			err = am.tokenInteractive()
		case "exit":
			fmt.Fprintln(am.out, "\nGoodbye!")
			return nil
		}
		if err != nil {
			fmt.Fprintf(am.out, "Error: %v\n", err)
		}
	}
}

// ListAlertsOutput represents JSON output for the alerts list command
type ListAlertsOutput struct {
	Success bool                `json:"success"`
	Alerts  []models.QuotaAlert `json:"alerts,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// AcknowledgeOutput represents JSON output for the ack command
type AcknowledgeOutput struct {
	Success      bool    `json:"success"`
	Acknowledged []int64 `json:"acknowledged,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// UsageOutput represents JSON output for the usage command
type UsageOutput struct {
	Success bool               `json:"success"`
	Since   *time.Time         `json:"since,omitempty"`
	Stats   *models.UsageStats `json:"stats,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// TokenOutput represents JSON output for the token command
type TokenOutput struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListAlertsJSON prints alerts as JSON; all includes acknowledged ones
func (am *AlertManager) ListAlertsJSON(ctx context.Context, all bool) error {
	alerts, err := am.store.ListQuotaAlerts(ctx, !all, listLimit)
	if err != nil {
		am.printJSON(ListAlertsOutput{Success: false, Error: fmt.Sprintf("failed to list alerts: %v", err)})
		return err
	}
	am.printJSON(ListAlertsOutput{Success: true, Alerts: alerts})
	return nil
}

// AcknowledgeJSON acknowledges the given alerts and prints the result as JSON
func (am *AlertManager) AcknowledgeJSON(ctx context.Context, ids []int64) error {
	acked := make([]int64, 0, len(ids))
	for _, id := range ids {
		if err := am.store.AcknowledgeQuotaAlert(ctx, id); err != nil {
			am.printJSON(AcknowledgeOutput{
				Success:      false,
				Acknowledged: acked,
				Error:        fmt.Sprintf("failed to acknowledge alert %d: %v", id, err),
			})
			return err
		}
		acked = append(acked, id)
	}
	am.printJSON(AcknowledgeOutput{Success: true, Acknowledged: acked})
	return nil
}

// UsageJSON prints usage statistics as JSON
func (am *AlertManager) UsageJSON(ctx context.Context, since *time.Time) error {
	stats, err := am.store.GetUsageStats(ctx, since)
	if err != nil {
		am.printJSON(UsageOutput{Success: false, Error: fmt.Sprintf("failed to load usage: %v", err)})
		return err
	}
	am.printJSON(UsageOutput{Success: true, Since: since, Stats: stats})
	return nil
}

// TokenJSON generates a new admin token and prints it as JSON
func (am *AlertManager) TokenJSON() error {
	token, err := auth.GenerateToken()
	if err != nil {
		am.printJSON(TokenOutput{Success: false, Error: err.Error()})
		return err
	}
	am.printJSON(TokenOutput{Success: true, Token: token})
	return nil
}

func (am *AlertManager) printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(am.out, string(data))
}

func (am *AlertManager) listAlertsInteractive(ctx context.Context) error {
	alerts, err := am.store.ListQuotaAlerts(ctx, true, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Fprintln(am.out, "\nNo open alerts.")
		return nil
	}

	fmt.Fprintln(am.out, "\n=== Open Quota Alerts ===")
	for _, a := range alerts {
		fmt.Fprintf(am.out, "\nID: %d | %s\n", a.ID, a.Provider)
		fmt.Fprintf(am.out, "   Threshold:  %g%%\n", a.Threshold)
		fmt.Fprintf(am.out, "   Used:       %.1f%%\n", a.PercentUsed)
		fmt.Fprintf(am.out, "   Fired:      %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(am.out)

	return nil
}

func (am *AlertManager) acknowledgeInteractive(ctx context.Context) error {
	alerts, err := am.store.ListQuotaAlerts(ctx, true, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Fprintln(am.out, "\nNo open alerts.")
		return nil
	}

	options := make([]huh.Option[int64], 0, len(alerts))
	for _, a := range alerts {
		label := fmt.Sprintf("%s crossed %g%% (%.1f%% used, ID: %d)", a.Provider, a.Threshold, a.PercentUsed, a.ID)
		options = append(options, huh.NewOption(label, a.ID))
	}

	var selected []int64
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int64]().
				Title("Select Alerts to Acknowledge").
				Description("Use space to select, enter to confirm").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return err
	}

	if len(selected) == 0 {
		fmt.Fprintln(am.out, "\nCancelled.")
		return nil
	}

	for _, id := range selected {
		if err := am.store.AcknowledgeQuotaAlert(ctx, id); err != nil {
			return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
		}
	}

	fmt.Fprintf(am.out, "\n✅ Acknowledged %d alert(s).\n\n", len(selected))
	return nil
}

func (am *AlertManager) usageInteractive(ctx context.Context) error {
	now := time.Now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	stats, err := am.store.GetUsageStats(ctx, &since)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	fmt.Fprintln(am.out, "\n=== Usage Today ===")
	fmt.Fprintf(am.out, "   Requests: %d\n", stats.TotalRequests)
	fmt.Fprintf(am.out, "   Tokens:   %d\n", stats.TotalTokens)
	for _, p := range stats.ByProvider {
		fmt.Fprintf(am.out, "\n   %s\n", p.Provider)
		fmt.Fprintf(am.out, "      Requests:     %d (%d failed)\n", p.Requests, p.Failures)
		fmt.Fprintf(am.out, "      Tokens:       %d\n", p.Tokens)
		fmt.Fprintf(am.out, "      Success rate: %.1f%%\n", p.SuccessRate)
		fmt.Fprintf(am.out, "      Avg latency:  %.0f ms\n", p.AvgLatencyMs)
	}
	fmt.Fprintln(am.out)

	return nil
}

func (am *AlertManager) tokenInteractive() error {
	token, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Fprintln(am.out)
	fmt.Fprintf(am.out, "   Admin token: %s\n", token)
	fmt.Fprintln(am.out)
	fmt.Fprintln(am.out, "⚠️  Export it as MENTOR_ADMIN_TOKEN before starting the server.")
	fmt.Fprintln(am.out)

	return nil
}
