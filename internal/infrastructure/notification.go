package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

// NotificationService sends desktop notifications about batch progress
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification with the configured method
func (n *NotificationService) Send(title, message string) error {
	if n == nil || !n.config.Enabled {
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptString(message), appleScriptString(title))
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Warn("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent", zap.String("title", title), zap.String("message", message))
	return nil
}

// NotifyBatchStarted sends notification when a batch begins downloading
func (n *NotificationService) NotifyBatchStarted(pageURL string, selected int) {
	n.Send("Batch Started", fmt.Sprintf("%d video(s) from %s", selected, truncateString(pageURL, 40)))
}

// NotifyItemFailed sends notification when one item fails
func (n *NotificationService) NotifyItemFailed(outcome domain.DownloadOutcome) {
	label := outcome.Item.Title
	if label == "" {
		label = fmt.Sprintf("item %d", outcome.Item.Ordinal)
	}
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(label, 40), outcome.Reason))
}

// NotifyBatchCompleted sends notification with the batch tally
func (n *NotificationService) NotifyBatchCompleted(result *domain.BatchResult) {
	n.Send("Batch Completed", fmt.Sprintf("%d succeeded, %d failed", result.Succeeded(), result.Failed()))
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// truncateString truncates a string to maxLen runes
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
