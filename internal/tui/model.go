package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rubberbot/internal/domain"
	"rubberbot/internal/textutil"
)

// ChatPort is the TUI-facing subset of the chat engine.
type ChatPort interface {
	Answer(ctx context.Context, query, sessionID string) domain.ChatResponse
	Welcome() domain.ChatResponse
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	service   ChatPort
	sessionID string
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	response  domain.ChatResponse
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a chat model bound to one session. timeout bounds each answer;
// zero means no bound.
func New(service ChatPort, sessionID string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about rubber cultivation and press Enter"
	ti.Focus()
	ti.CharLimit = 1000
	vp := viewport.New(0, 0)
	return Model{
		service:   service,
		sessionID: sessionID,
		timeout:   timeout,
		input:     ti,
		viewport:  vp,
		response:  service.Welcome(),
		status:    "Up/Down pick a suggestion, Tab copies it, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around answer and query boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResponse())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.ask(q)
				m.input.SetValue("")
				return m, nil
			}
		case "down":
			if n := len(m.response.SuggestedTopics); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderResponse())
				return m, nil
			}
		case "up":
			if n := len(m.response.SuggestedTopics); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderResponse())
				return m, nil
			}
		case "tab":
			if len(m.response.SuggestedTopics) > 0 {
				m.input.SetValue(m.response.SuggestedTopics[m.cursor])
				m.input.CursorEnd()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) ask(q string) {
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	m.response = m.service.Answer(ctx, q, m.sessionID)
	m.lastQuery = q
	m.cursor = 0
	m.status = fmt.Sprintf("Answered %q with %s confidence (%.2f)", q, m.response.ConfidenceLevel, m.response.Confidence)
	m.viewport.SetContent(m.renderResponse())
	m.viewport.GotoTop()
}

// View renders the TUI layout and the current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RubberBot 🌿")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderResponse() string {
	r := m.response
	var b strings.Builder
	b.WriteString(tierBadge(r.ConfidenceLevel))
	b.WriteString("  ")
	b.WriteString(categoryStyle.Render(r.Category))
	b.WriteString("\n\n")
	if r.ConfidenceLevel == domain.TierHigh && m.lastQuery != "" {
		b.WriteString(highlightBestSentence(r.Reply, m.lastQuery))
	} else {
		b.WriteString(r.Reply)
	}
	if len(r.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sectionStyle.Render("Sources"))
		for _, s := range r.Sources {
			fmt.Fprintf(&b, "\n  %.3f  %s %s", s.Score, domain.Category(s.Category).Icon(), s.Question)
		}
	}
	if len(r.SuggestedTopics) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sectionStyle.Render("Related"))
		for i, topic := range r.SuggestedTopics {
			if i == m.cursor {
				b.WriteString("\n" + highlightStyle.Render("› "+topic))
			} else {
				b.WriteString("\n  " + topic)
			}
		}
	}
	return b.String()
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	categoryStyle  = lipgloss.NewStyle().Italic(true)
	sectionStyle   = lipgloss.NewStyle().Underline(true)
	badgeStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))
	tierColors     = map[domain.Tier]lipgloss.Color{
		domain.TierHigh:   lipgloss.Color("10"),
		domain.TierMedium: lipgloss.Color("11"),
		domain.TierLow:    lipgloss.Color("9"),
	}
)

func tierBadge(t domain.Tier) string {
	return badgeStyle.Background(tierColors[t]).Render(strings.ToUpper(string(t)))
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
