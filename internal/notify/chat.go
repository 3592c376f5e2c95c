// Package notify posts run summaries and failures to a Google Chat incoming
// webhook. Delivery is best-effort: failures are logged and never returned
// to the caller's control flow.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/search-harvest/internal/model"
	"github.com/sells-group/search-harvest/internal/pipeline"
)

const (
	successIcon = "https://fonts.gstatic.com/s/i/short-term/release/googlesymbols/check_circle/default/48px.svg"
	errorIcon   = "https://fonts.gstatic.com/s/i/short-term/release/googlesymbols/error/default/48px.svg"
)

// Config configures the notifier.
type Config struct {
	WebhookURL string
	OnSuccess  bool
	OnError    bool
	Mentions   []string
	Title      string
}

// Message is a Google Chat card message.
type Message struct {
	Text  string `json:"text,omitempty"`
	Cards []Card `json:"cards"`
}

// Card is a single card.
type Card struct {
	Header   Header    `json:"header"`
	Sections []Section `json:"sections"`
}

// Header is the card header.
type Header struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ImageStyle string `json:"imageStyle,omitempty"`
}

// Section groups widgets.
type Section struct {
	Widgets []Widget `json:"widgets"`
}

// Widget holds a text paragraph.
type Widget struct {
	TextParagraph TextParagraph `json:"textParagraph"`
}

// TextParagraph is formatted card text.
type TextParagraph struct {
	Text string `json:"text"`
}

// Notifier sends cards to the configured webhook.
type Notifier struct {
	cfg     Config
	client  *http.Client
	printer *message.Printer
	nowFunc func() time.Time
	loc     *time.Location
}

// New creates a Notifier. Timestamps are rendered in loc.
func New(cfg Config, loc *time.Location) *Notifier {
	if cfg.Title == "" {
		cfg.Title = "Search harvest"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		printer: message.NewPrinter(language.English),
		nowFunc: time.Now,
		loc:     loc,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

// RunSucceeded sends the per-date summary of a finished run. It returns
// whether a card was delivered.
func (n *Notifier) RunSucceeded(ctx context.Context, sum *pipeline.Summary) bool {
	if !n.Enabled() || !n.cfg.OnSuccess || sum == nil {
		return false
	}
	return n.deliver(ctx, "success", n.SuccessMessage(sum))
}

// RunFinished reports a run that returned normally: a failures card when
// any date failed or the breaker opened, then the per-date summary card
// whatever the final state. It returns the number of cards delivered.
func (n *Notifier) RunFinished(ctx context.Context, sum *pipeline.Summary) int {
	sent := 0
	if n.DateFailures(ctx, sum) {
		sent++
	}
	if n.RunSucceeded(ctx, sum) {
		sent++
	}
	return sent
}

// RunFailed sends an error card. errorType names the failure class and
// fields add context lines.
func (n *Notifier) RunFailed(ctx context.Context, errorType string, err error, fields map[string]string) bool {
	if !n.Enabled() || !n.cfg.OnError || err == nil {
		return false
	}
	return n.deliver(ctx, "error", n.ErrorMessage(errorType, err, fields))
}

// DateFailures sends one error card listing every failed date of sum, if any.
func (n *Notifier) DateFailures(ctx context.Context, sum *pipeline.Summary) bool {
	if sum == nil {
		return false
	}
	failures := sum.Failures()
	if len(failures) == 0 && sum.StoppedBy != "circuit_open" {
		return false
	}

	var b strings.Builder
	for _, f := range failures {
		fmt.Fprintf(&b, "%s at offset %d [%s]: %s\n", model.FormatDay(f.Date), f.Offset, f.ErrorKind, f.Error)
	}
	fields := map[string]string{
		"run_id":     sum.RunID.String(),
		"mode":       string(sum.Mode),
		"calls_used": n.printer.Sprintf("%d / %d", sum.CallsUsed, sum.Budget),
	}
	if sum.StoppedBy != "" {
		fields["stopped_by"] = sum.StoppedBy
	}
	kind := "date_failures"
	if len(failures) > 0 {
		kind = failures[0].ErrorKind
	}
	return n.RunFailed(ctx, kind, eris.New(strings.TrimSpace(b.String())), fields)
}

// SuccessMessage builds the summary card for sum. The header reflects the
// final state; counts are aggregated rows written next to raw rows fetched.
func (n *Notifier) SuccessMessage(sum *pipeline.Summary) Message {
	ts := n.nowFunc().In(n.loc).Format("2006-01-02 15:04:05")

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Run finished: %s</b>\n", sum.State)
	b.WriteString("\n<b>Rows per date:</b>\n")
	var fetched int64
	for _, d := range sum.Dates {
		fetched += d.Fetched
		switch d.Status {
		case pipeline.DateCompleted, pipeline.DatePartial:
			b.WriteString(n.printer.Sprintf("- %s: %d aggregated rows from %d fetched (%s)\n",
				model.FormatDay(d.Date), d.Records, d.Fetched, d.Status))
		default:
			fmt.Fprintf(&b, "- %s: %s\n", model.FormatDay(d.Date), d.Status)
		}
	}
	b.WriteString(n.printer.Sprintf("\n<b>Total:</b> %d aggregated rows from %d fetched\n", sum.TotalRecords(), fetched))

	b.WriteString("\n<b>Run:</b>\n")
	fields := map[string]string{
		"run_id":     sum.RunID.String(),
		"mode":       string(sum.Mode),
		"calls_used": n.printer.Sprintf("%d / %d", sum.CallsUsed, sum.Budget),
		"elapsed":    sum.Elapsed.Round(time.Second).String(),
	}
	if sum.StoppedBy != "" {
		fields["stopped_by"] = sum.StoppedBy
	}
	writeFields(&b, fields)

	title, icon := n.cfg.Title+" succeeded", successIcon
	switch sum.State {
	case pipeline.StateExhausted:
		title = n.cfg.Title + " finished (budget exhausted)"
	case pipeline.StateError:
		title, icon = n.cfg.Title+" finished with errors", errorIcon
	}

	return Message{Cards: []Card{{
		Header: Header{
			Title:      title,
			Subtitle:   "Finished at " + ts,
			ImageURL:   icon,
			ImageStyle: "IMAGE",
		},
		Sections: []Section{{Widgets: []Widget{{TextParagraph: TextParagraph{Text: b.String()}}}}},
	}}}
}

// ErrorMessage builds an error card. Configured mentions go in the message
// text so Chat notifies the users.
func (n *Notifier) ErrorMessage(errorType string, err error, fields map[string]string) Message {
	if errorType == "" {
		errorType = "unknown"
	}
	ts := n.nowFunc().In(n.loc).Format("2006-01-02 15:04:05")

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Error:</b>\n%s\n", err.Error())
	fmt.Fprintf(&b, "\n<b>Type:</b> %s\n", errorType)
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", ts)
	if len(fields) > 0 {
		b.WriteString("\n<b>Context:</b>\n")
		writeFields(&b, fields)
	}

	msg := Message{Cards: []Card{{
		Header: Header{
			Title:      n.cfg.Title + " failed",
			Subtitle:   errorType,
			ImageURL:   errorIcon,
			ImageStyle: "IMAGE",
		},
		Sections: []Section{{Widgets: []Widget{{TextParagraph: TextParagraph{Text: b.String()}}}}},
	}}}
	if len(n.cfg.Mentions) > 0 {
		mentions := make([]string, len(n.cfg.Mentions))
		for i, id := range n.cfg.Mentions {
			mentions[i] = "<users/" + strings.TrimPrefix(id, "users/") + ">"
		}
		msg.Text = strings.Join(mentions, " ")
	}
	return msg
}

func writeFields(b *strings.Builder, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %s\n", k, fields[k])
	}
}

func (n *Notifier) deliver(ctx context.Context, kind string, msg Message) bool {
	log := zap.L().With(zap.String("component", "notify"), zap.String("kind", kind))
	if err := n.post(ctx, msg); err != nil {
		log.Error("notify: failed to send card", zap.Error(err))
		return false
	}
	log.Info("notify: card sent")
	return true
}

func (n *Notifier) post(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
