package notifier

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"
)

const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的推送：标题、表格、段落、页脚。
type StructuredMessage struct {
	Icon      string
	Title     string
	Header    []string
	Rows      [][]string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，表格放在代码块内保持对齐。
// 超长时丢弃末尾的行并在代码块内注明 "+N more"，代码块始终闭合。
func (m StructuredMessage) RenderMarkdown() string {
	keep := m.fitRows()
	return clip(m.render(m.Rows[:keep], len(m.Rows)-keep))
}

// RenderPages splits the table rows across as many messages as needed. Every
// page carries the header, a complete code fence and the footer; the title
// gets a "(i/n)" suffix when there is more than one page.
func (m StructuredMessage) RenderPages() []string {
	if m.fitRows() == len(m.Rows) {
		return []string{m.RenderMarkdown()}
	}
	sizing := m
	sizing.Title = m.Title + " (9999/9999)"
	var chunks [][][]string
	for rest := m.Rows; len(rest) > 0; {
		sizing.Rows = rest
		n := max(sizing.fitRows(), 1)
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	pages := make([]string, 0, len(chunks))
	for i, rows := range chunks {
		page := m
		page.Title = fmt.Sprintf("%s (%d/%d)", m.Title, i+1, len(chunks))
		page.Rows = rows
		pages = append(pages, clip(page.render(rows, 0)))
	}
	return pages
}

// fitRows 返回在长度上限内能完整渲染的最大行数。
func (m StructuredMessage) fitRows() int {
	total := len(m.Rows)
	if len(m.render(m.Rows, 0)) <= maxStructuredMessageLen {
		return total
	}
	lo, hi := 0, total-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if len(m.render(m.Rows[:mid], total-mid)) <= maxStructuredMessageLen {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (m StructuredMessage) render(rows [][]string, more int) string {
	var b strings.Builder
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		b.WriteString(header + "\n\n")
	}
	if len(rows) > 0 || more > 0 {
		b.WriteString("```\n")
		b.WriteString(sanitize(renderTable(m.Header, rows)))
		if more > 0 {
			fmt.Fprintf(&b, "... +%d more\n", more)
		}
		b.WriteString("```\n\n")
	}
	for _, sec := range m.Sections {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString("*" + sanitize(title) + "*\n")
		}
		for _, line := range lines {
			b.WriteString("- " + sanitize(line) + "\n")
		}
		b.WriteString("\n")
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer) + "\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("time: " + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	return strings.TrimSpace(b.String())
}

// clip 只在表格之外仍然超长时生效（例如段落过多），截断点不会落在代码块内部。
func clip(body string) string {
	if len(body) <= maxStructuredMessageLen {
		return body
	}
	cut := maxStructuredMessageLen
	if end := strings.LastIndex(body, "```"); end >= cut {
		return body
	}
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}

// RenderTable aligns Header and Rows into plain-text columns.
func (m StructuredMessage) RenderTable() string {
	return renderTable(m.Header, m.Rows)
}

func renderTable(header []string, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	if len(header) > 0 {
		_, _ = w.Write([]byte(strings.Join(header, "\t") + "\n"))
	}
	for _, row := range rows {
		_, _ = w.Write([]byte(strings.Join(row, "\t") + "\n"))
	}
	_ = w.Flush()
	return b.String()
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
