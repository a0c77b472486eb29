package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull recent Slack history into local storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Syncing the last %d hours...", hours)
		resp, err := client.post(cmd.Context(), "/api/slack/sync", map[string]int{"window_hours": hours})
		if err != nil {
			return err
		}

		var result struct {
			ChannelsProcessed int `json:"channels_processed"`
			ChannelsFailed    int `json:"channels_failed"`
			MessagesStored    int `json:"messages_stored"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored %d new messages from %d channels", result.MessagesStored, result.ChannelsProcessed)
		if result.ChannelsFailed > 0 {
			printWarning("%d channels failed to sync", result.ChannelsFailed)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("hours", 24, "how far back to sync")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Generate summaries from stored messages",
}

var summaryEODCmd = &cobra.Command{
	Use:   "eod",
	Short: "Generate an end-of-day summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateSummary(cmd, "EOD")
	},
}

var summaryEOWCmd = &cobra.Command{
	Use:   "eow",
	Short: "Generate an end-of-week summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateSummary(cmd, "EOW")
	},
}

var summaryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently generated summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/summary/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Summaries []struct {
				ID           string    `json:"id"`
				Type         string    `json:"type"`
				Preview      string    `json:"preview"`
				MessageCount int       `json:"message_count"`
				GeneratedAt  time.Time `json:"generated_at"`
			} `json:"summaries"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Summaries) == 0 {
			fmt.Println("No summaries yet.")
			return nil
		}
		for _, s := range result.Summaries {
			fmt.Printf("%s  %s  %s  (%d messages)\n",
				colorize(colorCyan, s.ID[:8]),
				s.GeneratedAt.Local().Format("2006-01-02 15:04"),
				colorize(colorBold, s.Type),
				s.MessageCount,
			)
			fmt.Printf("  %s\n", s.Preview)
		}
		return nil
	},
}

func generateSummary(cmd *cobra.Command, summaryType string) error {
	style, _ := cmd.Flags().GetString("style")
	prompt, _ := cmd.Flags().GetString("prompt")
	channelsStr, _ := cmd.Flags().GetString("channels")

	var channels []string
	if channelsStr != "" {
		channels = strings.Split(channelsStr, ",")
		for i := range channels {
			channels[i] = strings.TrimSpace(channels[i])
		}
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := map[string]any{"type": summaryType}
	if style != "" {
		req["style"] = style
	}
	if prompt != "" {
		req["custom_prompt"] = prompt
	}
	if channels != nil {
		req["channels"] = channels
	}

	printStep("Generating %s summary...", summaryType)
	resp, err := client.post(cmd.Context(), "/api/summary/generate", req)
	if err != nil {
		return err
	}

	var result struct {
		ID           string `json:"id"`
		SummaryText  string `json:"summary_text"`
		MessageCount int    `json:"message_count"`
		PDFURL       string `json:"pdf_url"`
		Message      string `json:"message"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if result.ID == "" {
		printWarning("%s", result.Message)
		return nil
	}

	fmt.Println(result.SummaryText)
	printSuccess("Summarized %d messages (summary %s)", result.MessageCount, result.ID[:8])
	if result.PDFURL != "" {
		printStatus("PDF", "%s%s", client.baseURL, result.PDFURL)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{summaryEODCmd, summaryEOWCmd} {
		c.Flags().String("style", "", "summary style: technical, executive, or detailed")
		c.Flags().String("prompt", "", "custom prompt instead of the standard summary")
		c.Flags().String("channels", "", "comma-separated channel IDs to restrict the summary to")
	}
	summaryHistoryCmd.Flags().Int("limit", 10, "maximum number of summaries to list")

	summaryCmd.AddCommand(summaryEODCmd)
	summaryCmd.AddCommand(summaryEOWCmd)
	summaryCmd.AddCommand(summaryHistoryCmd)
}

// --- channels ---

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List Slack channels the bot can read",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/slack/channels")
		if err != nil {
			return err
		}

		var result struct {
			Channels []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				IsPrivate bool   `json:"is_private"`
			} `json:"channels"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Channels) == 0 {
			fmt.Println("No channels visible.")
			return nil
		}
		for _, ch := range result.Channels {
			marker := "#"
			if ch.IsPrivate {
				marker = "🔒"
			}
			fmt.Printf("%s  %s%s\n", colorize(colorCyan, ch.ID), marker, ch.Name)
		}
		return nil
	},
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List rendered PDF reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		download, _ := cmd.Flags().GetString("download")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if download != "" {
			return downloadReport(cmd.Context(), client, download)
		}

		resp, err := client.get(cmd.Context(), "/api/reports")
		if err != nil {
			return err
		}

		var result struct {
			Reports []struct {
				ID          string    `json:"id"`
				Type        string    `json:"type"`
				GeneratedAt time.Time `json:"generated_at"`
				PDFURL      string    `json:"pdf_url"`
			} `json:"reports"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Reports) == 0 {
			fmt.Println("No reports yet.")
			return nil
		}
		for _, r := range result.Reports {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				r.GeneratedAt.Local().Format("2006-01-02 15:04"),
				colorize(colorBold, r.Type),
			)
		}
		return nil
	},
}

func downloadReport(ctx context.Context, client *apiClient, id string) error {
	resp, err := client.get(ctx, fmt.Sprintf("/api/reports/%s/pdf", id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	out := id + ".pdf"
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	printSuccess("Saved %s", out)
	return nil
}

func init() {
	reportsCmd.Flags().String("download", "", "download the report with the given summary ID")
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or update summarization preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current preferences as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/preferences")
		if err != nil {
			return err
		}

		var prefs any
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prefs)
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference field",
	Long: `Set a preference field.

Keys: summary_style, include_threads, filter_channels (comma-separated),
report_frequency, slack_user_id, notification_channel.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		body := map[string]any{}
		switch key {
		case "include_threads":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("include_threads must be true or false")
			}
			body[key] = b
		case "filter_channels":
			var channels []string
			if value != "" {
				channels = strings.Split(value, ",")
				for i := range channels {
					channels[i] = strings.TrimSpace(channels[i])
				}
			} else {
				channels = []string{}
			}
			body[key] = channels
		case "summary_style", "report_frequency", "slack_user_id", "notification_channel":
			body[key] = value
		default:
			return fmt.Errorf("unknown preference key %q", key)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/api/preferences", body)
		if err != nil {
			return err
		}
		var out any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}
