package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/Actionflow/internal/mq"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Report выводит отчёт о проходе: таблицу результатов и итог в stderr.
func (o *Output) Report(report *ReportResponse) {
	headers := []string{"ACTION", "STATUS", "DURATION", "DETAIL"}
	rows := make([][]string, len(report.Results))

	counts := make(map[string]int)
	for i, r := range report.Results {
		counts[r.Status]++
		detail := r.Error
		if detail == "" {
			detail = r.Reason
		}
		rows[i] = []string{r.ActionID, r.Status, formatDuration(r.DurationMs), detail}
	}

	o.Print(headers, rows, report)

	summary := fmt.Sprintf("%d succeeded, %d failed, %d skipped",
		counts["succeeded"], counts["failed"], counts["skipped"])
	if report.Cancelled {
		summary += " (cancelled)"
	}
	o.Success(summary)
}

// Statuses выводит статусы action.
func (o *Output) Statuses(statuses []ActionStatusResponse, jsonData any) {
	headers := []string{"ACTION", "STATUS", "PLAYABLE", "ATTEMPTS", "DURATION", "DETAIL"}
	rows := make([][]string, len(statuses))
	for i, st := range statuses {
		rows[i] = []string{
			st.ActionID,
			st.Status,
			strconv.FormatBool(st.Playable),
			strconv.Itoa(st.Attempts),
			formatDuration(st.DurationMs),
			statusDetail(st),
		}
	}
	o.Print(headers, rows, jsonData)
}

// Values выводит Value Bag, ключи по алфавиту.
func (o *Output) Values(values map[string]any, jsonData any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, truncate(formatValue(values[k]), 80)}
	}
	o.Print([]string{"KEY", "VALUE"}, rows, jsonData)
}

// Event выводит событие брокера одной строкой (или JSON в режиме --json).
func (o *Output) Event(msg *mq.Message) {
	if o.jsonMode {
		enc := json.NewEncoder(o.w)
		enc.Encode(msg)
		return
	}
	fmt.Fprintln(o.w, FormatEvent(msg))
}

// FormatEvent форматирует событие: "15:04:05 app1 action.status outline loading".
func FormatEvent(msg *mq.Message) string {
	parts := []string{msg.Timestamp.Local().Format("15:04:05"), msg.AppID, string(msg.Type)}

	switch msg.Type {
	case mq.MessageTypeActionStatus:
		if p, err := mq.ParsePayload[mq.ActionStatusPayload](msg); err == nil {
			parts = append(parts, p.ActionID, p.Status)
			if p.Error != "" {
				parts = append(parts, strconv.Quote(p.Error))
			}
		}
	case mq.MessageTypeValueChanged:
		if p, err := mq.ParsePayload[mq.ValueChangedPayload](msg); err == nil {
			parts = append(parts, p.Key)
			if p.Deleted {
				parts = append(parts, "deleted")
			}
		}
	case mq.MessageTypeStateSaved:
		if p, err := mq.ParsePayload[mq.StateSavedPayload](msg); err == nil {
			parts = append(parts, p.Path, strconv.Itoa(p.Bytes)+"B")
			if p.Error != "" {
				parts = append(parts, strconv.Quote(p.Error))
			}
		}
	case mq.MessageTypeRunFinished:
		if p, err := mq.ParsePayload[mq.RunFinishedPayload](msg); err == nil {
			parts = append(parts, p.RunID, strconv.Quote(p.Summary))
		}
	}

	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.ReplaceAll(val, "\n", " ")
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
