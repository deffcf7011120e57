package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/chartbracket/internal/client"
	"github.com/raphaelgruber/chartbracket/internal/dexscreener"
	"github.com/raphaelgruber/chartbracket/internal/models"
)

const requestTimeout = 30 * time.Second

var (
	playTickers  []string
	playTop      int
	playTrending bool
	playInterval string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Rate charts green or red, then play the bracket",
	Long: `Start a session on the server and play it in the terminal.

Charts come from the trending list unless --tickers, --top or
--trending-tickers selects a ticker board. Rate each chart with g (green)
or r (red); f finishes rating early. The green charts are then paired up:
press 1 or ← for the left chart, 2 or → for the right one.

Examples:
  chartbracket play
  chartbracket play --tickers PEPEUSDT,WIFSOL,BONKUSDT
  chartbracket play --top 16
  chartbracket play --trending-tickers --interval 4h`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringSliceVar(&playTickers, "tickers", nil, "rate these tickers (e.g. PEPEUSDT,WIFSOL)")
	playCmd.Flags().IntVar(&playTop, "top", 0, "rate the N largest coins by market cap")
	playCmd.Flags().BoolVar(&playTrending, "trending-tickers", false, "rate trending tickers resolved from the metadata cache")
	playCmd.Flags().StringVar(&playInterval, "interval", "", "chart interval for links: 15m, 30m, 1h, 4h, 1d, 1w")
}

func runPlay(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("play needs an interactive terminal")
	}

	interval := playInterval
	if interval == "" {
		interval = cfg.ChartInterval
	}

	m := newPlayModel(defaultTheme, interval)
	m.start = func(ctx context.Context) (*client.Session, error) {
		return createSession(ctx, apiClient)
	}
	m.rate = func(ctx context.Context, sessionID string, index int, v models.Verdict) (bool, error) {
		p, err := apiClient.RecordChoice(ctx, sessionID, index, v)
		return p.Done, err
	}
	m.finish = func(ctx context.Context, sessionID string) error {
		_, err := apiClient.Finish(ctx, sessionID)
		return err
	}
	m.begin = func(ctx context.Context, sessionID string) (arena, *models.SessionResult, error) {
		if _, err := apiClient.StartTournament(ctx, sessionID); err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Code == "insufficient_seed" {
				return nil, apiErr.Summary, nil
			}
			return nil, nil, err
		}
		return remoteArena{client: apiClient, sessionID: sessionID}, nil, nil
	}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return fmt.Errorf("play UI error: %w", err)
	}
	if pm, ok := final.(playModel); ok && pm.err != nil {
		return pm.err
	}
	return nil
}

// createSession picks the chart list from the play flags.
func createSession(ctx context.Context, c *client.Client) (*client.Session, error) {
	in := client.CreateSessionInput{}
	switch {
	case len(playTickers) > 0:
		in.Tickers = playTickers
	case playTop > 0:
		tickers, err := c.TopTickers(ctx, playTop)
		if err != nil {
			return nil, fmt.Errorf("top tickers: %w", err)
		}
		in.Tickers = tickers
	case playTrending:
		tickers, metadataID, err := c.TrendingTickers(ctx)
		if err != nil {
			return nil, fmt.Errorf("trending tickers: %w", err)
		}
		in.Tickers = tickers
		in.MetadataID = metadataID
	}
	return c.CreateSession(ctx, in)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type stage int

const (
	stageLoading stage = iota
	stageRating
	stageTournament
	stageDone
)

type sessionMsg struct {
	sess *client.Session
	err  error
}

type ratedMsg struct {
	verdict models.Verdict
	done    bool
	err     error
}

type beganMsg struct {
	arena   arena
	summary *models.SessionResult
	err     error
}

type standingMsg struct {
	st  standing
	err error
}

// playModel is the bubbletea model for a full session: rating, then the bracket.
// The server calls are injected so the offline bracket command can reuse it.
type playModel struct {
	start  func(ctx context.Context) (*client.Session, error)
	rate   func(ctx context.Context, sessionID string, index int, v models.Verdict) (bool, error)
	finish func(ctx context.Context, sessionID string) error
	begin  func(ctx context.Context, sessionID string) (arena, *models.SessionResult, error)

	theme    Theme
	interval string
	progress progress.Model

	stage     stage
	sessionID string
	charts    []client.Chart
	verdicts  []models.Verdict
	pending   bool

	arena    arena
	standing standing
	summary  *models.SessionResult
	notice   string

	quitting bool
	err      error
}

func newPlayModel(theme Theme, interval string) playModel {
	width := 40
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 && w-20 < width {
		width = w - 20
	}
	return playModel{
		theme:    theme,
		interval: interval,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(width)),
	}
}

func (m playModel) Init() tea.Cmd {
	if m.arena != nil {
		return m.fetchStanding()
	}
	return tea.Batch(m.startSession(), m.progress.Init())
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg.String())

	case sessionMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("start session: %w", msg.err)
			return m, tea.Quit
		}
		m.sessionID = msg.sess.ID
		m.charts = msg.sess.Charts
		m.stage = stageRating
		return m, nil

	case ratedMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		m.verdicts = append(m.verdicts, msg.verdict)
		m.notice = ""
		if msg.done {
			m.pending = true
			return m, m.beginTournament()
		}
		return m, nil

	case beganMsg:
		m.pending = false
		if msg.err != nil {
			m.err = fmt.Errorf("start tournament: %w", msg.err)
			return m, tea.Quit
		}
		if msg.arena == nil {
			m.summary = msg.summary
			m.stage = stageDone
			return m, tea.Quit
		}
		m.arena = msg.arena
		return m, m.fetchStanding()

	case standingMsg:
		m.pending = false
		if msg.err != nil {
			if m.stage == stageTournament {
				m.notice = msg.err.Error()
				return m, nil
			}
			m.err = msg.err
			return m, tea.Quit
		}
		m.notice = ""
		m.standing = msg.st
		m.stage = stageTournament
		if msg.st.done() {
			m.stage = stageDone
			return m, tea.Quit
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m playModel) handleKey(key string) (tea.Model, tea.Cmd) {
	if key == "ctrl+c" || key == "q" {
		m.quitting = true
		return m, tea.Quit
	}
	if m.pending {
		return m, nil
	}

	switch m.stage {
	case stageRating:
		switch key {
		case "g", "up", "k":
			m.pending = true
			return m, m.recordVerdict(models.VerdictGreen)
		case "r", "down", "j":
			m.pending = true
			return m, m.recordVerdict(models.VerdictRed)
		case "f":
			m.pending = true
			return m, m.finishEarly()
		}

	case stageTournament:
		var pick *contender
		switch key {
		case "1", "left", "h":
			pick = m.standing.Left
		case "2", "right", "l":
			pick = m.standing.Right
		}
		if pick != nil {
			m.pending = true
			return m, m.report(m.standing.Round, pick.ID)
		}
	}
	return m, nil
}

func (m playModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m playModel) renderContent() string {
	if m.quitting {
		if m.sessionID != "" {
			return m.theme.hintStyle().Render(fmt.Sprintf("\nSession %s left unfinished.\n", m.sessionID))
		}
		return ""
	}
	if m.err != nil {
		return m.theme.redStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	var b strings.Builder
	switch m.stage {
	case stageLoading:
		b.WriteString("Loading charts...\n")
	case stageRating:
		m.renderRating(&b)
	case stageTournament:
		m.renderTournament(&b)
	case stageDone:
		m.renderDone(&b)
	}
	if m.notice != "" {
		b.WriteString("\n" + m.theme.redStyle().Render(m.notice) + "\n")
	}
	return b.String()
}

func (m playModel) renderRating(b *strings.Builder) {
	idx := len(m.verdicts)
	total := len(m.charts)
	if idx >= total {
		b.WriteString("Seeding the bracket...\n")
		return
	}

	var pct float64
	if total > 0 {
		pct = float64(idx) / float64(total)
	}
	fmt.Fprintf(b, "%s %s %d/%d charts\n\n",
		m.theme.statusStyle().Render("[rating]"), m.progress.ViewAs(pct), idx, total)

	ch := m.charts[idx]
	b.WriteString(m.theme.titleStyle().Render(ch.Symbol()) + "\n")
	b.WriteString(m.theme.chartLine(ch.Chart) + "\n")
	b.WriteString(m.theme.hintStyle().Render(dexscreener.ChartURL(ch.Chart, m.interval)) + "\n\n")

	if idx > 0 {
		prev := m.charts[idx-1]
		fmt.Fprintf(b, "previous: %s %s\n\n", prev.Symbol(), m.theme.verdict(m.verdicts[idx-1]))
	}
	b.WriteString(m.theme.hintStyle().Render("g green · r red · f finish rating · q quit") + "\n")
}

func (m playModel) renderTournament(b *strings.Builder) {
	st := m.standing
	fmt.Fprintf(b, "%s round %d · winners %d · losers %d · out %d\n\n",
		m.theme.statusStyle().Render("["+string(st.Phase)+"]"), st.Round, st.Winners, st.Losers, st.Eliminated)

	if st.Left == nil || st.Right == nil {
		b.WriteString("Waiting for the next matchup...\n")
		return
	}
	left := m.theme.cardStyle(false).Render("1  " + m.contenderText(st.Left))
	right := m.theme.cardStyle(false).Render("2  " + m.contenderText(st.Right))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  vs  ", right) + "\n\n")
	b.WriteString(m.theme.hintStyle().Render("1/← left · 2/→ right · q quit") + "\n")
}

func (m playModel) contenderText(c *contender) string {
	if c.Chart == nil {
		return m.theme.titleStyle().Render(c.Label)
	}
	return m.theme.titleStyle().Render(c.Label) + "\n" +
		"$" + c.Chart.PriceUSD.String() + "  " + m.theme.change(c.Chart.Change24h)
}

func (m playModel) renderDone(b *strings.Builder) {
	if m.summary != nil {
		b.WriteString(m.theme.titleStyle().Render("Rating complete") + "\n\n")
		fmt.Fprintf(b, "  Charts rated: %d\n", m.summary.TotalCharts)
		fmt.Fprintf(b, "  Green:        %s\n", m.theme.greenStyle().Render(fmt.Sprint(m.summary.GreenCount)))
		fmt.Fprintf(b, "  Red:          %s\n", m.theme.redStyle().Render(fmt.Sprint(m.summary.RedCount)))
		b.WriteString("\n" + m.theme.hintStyle().Render("At least two green charts are needed for a tournament.") + "\n")
		return
	}

	b.WriteString(m.theme.titleStyle().Render("🏆 Final ranking") + "\n\n")
	for i, name := range m.standing.Podium {
		fmt.Fprintf(b, "  %d. %s\n", i+1, name)
	}
	if m.sessionID != "" {
		b.WriteString("\n" + m.theme.hintStyle().Render("chartbracket results "+m.sessionID) + "\n")
	}
}

func (m playModel) startSession() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		sess, err := m.start(ctx)
		return sessionMsg{sess: sess, err: err}
	}
}

func (m playModel) recordVerdict(v models.Verdict) tea.Cmd {
	index := len(m.verdicts)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		done, err := m.rate(ctx, m.sessionID, index, v)
		return ratedMsg{verdict: v, done: done, err: err}
	}
}

func (m playModel) finishEarly() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.finish(ctx, m.sessionID); err != nil {
			return beganMsg{err: err}
		}
		a, summary, err := m.begin(ctx, m.sessionID)
		return beganMsg{arena: a, summary: summary, err: err}
	}
}

func (m playModel) beginTournament() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		a, summary, err := m.begin(ctx, m.sessionID)
		return beganMsg{arena: a, summary: summary, err: err}
	}
}

func (m playModel) fetchStanding() tea.Cmd {
	a := m.arena
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := a.Standing(ctx)
		return standingMsg{st: st, err: err}
	}
}

func (m playModel) report(round int, winnerID string) tea.Cmd {
	a := m.arena
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := a.Pick(ctx, round, winnerID)
		return standingMsg{st: st, err: err}
	}
}
