package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cn-chinese-link/internal/db/sqlite"
	"cn-chinese-link/internal/domain/persona"
	"cn-chinese-link/internal/domain/stats"
)

const barWidth = 20

var (
	primary = lipgloss.Color("#e63946")
	dim     = lipgloss.Color("#6e7681")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primary)
	labelStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 2)
)

func newRootCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:           "report",
		Short:         "CN Chinese Link 后端数据报告",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.OpenExisting(dbPath)
			if err != nil {
				return fmt.Errorf("%w\n请先运行应用并注册用户后再查看数据", err)
			}
			defer sqlite.Close(db)
			return writeReport(cmd.Context(), cmd.OutOrStdout(), db, time.Now())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", defaultDBPath(), "SQLite数据库路径")
	return cmd
}

// defaultDBPath 环境变量 SQLITE_PATH 优先
func defaultDBPath() string {
	if p := strings.TrimSpace(os.Getenv("SQLITE_PATH")); p != "" {
		return p
	}
	return sqlite.DefaultConfig().Path
}

func writeReport(ctx context.Context, w io.Writer, db *gorm.DB, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc := stats.NewService(db)

	summary, err := svc.Summary(ctx, now)
	if err != nil {
		return err
	}
	users, err := svc.Users(ctx, now)
	if err != nil {
		return err
	}
	roleScenes, err := svc.RoleScenes(ctx)
	if err != nil {
		return err
	}
	vocab, err := svc.Vocab(ctx, 0)
	if err != nil {
		return err
	}
	events, err := svc.Events(ctx, stats.DefaultEventLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, headerStyle.Render("CN Chinese Link (中国缘) - 后端数据报告"))
	renderSummary(w, summary)
	renderUsers(w, users)
	renderRoleScenes(w, roleScenes)
	renderVocab(w, vocab)
	renderEvents(w, events)
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render("报告生成完毕！"))
	return nil
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(title))
	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("─", 60)))
}

// bar 每5%一格
func bar(pct float64) string {
	n := int(pct / 5)
	if n < 0 {
		n = 0
	}
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

func renderSummary(w io.Writer, s *stats.Summary) {
	lines := []string{
		labelStyle.Render("CN Chinese Link 数据报告"),
		dimStyle.Render("生成时间: " + s.GeneratedAt.Format("2006-01-02 15:04:05")),
		"",
		fmt.Sprintf("👥 注册用户数:   %6d 人", s.Users),
		fmt.Sprintf("📊 埋点事件总数: %6d 条", s.Events),
		fmt.Sprintf("📚 生词总数:     %6d 个", s.VocabTotal),
		fmt.Sprintf("✅ 已掌握生词:   %6d 个", s.VocabMastered),
		fmt.Sprintf("📅 今日事件数:   %6d 条", s.EventsToday),
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

func renderUsers(w io.Writer, u *stats.UserStats) {
	section(w, "👥 用户列表 Users")
	if u.Total == 0 {
		fmt.Fprintln(w, "暂无用户注册")
		return
	}
	fmt.Fprintf(w, "总用户数: %d 人  本月活跃: %d 人  总对话数: %d\n\n", u.Total, u.ActiveThisMonth, u.TotalConversations)
	for _, user := range u.Users {
		nickname := user.Nickname
		if nickname == "" {
			nickname = "未设置"
		}
		lastLogin := "从未登录"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "ID: %d\n", user.ID)
		fmt.Fprintf(w, "  邮箱 Email: %s\n", user.Email)
		fmt.Fprintf(w, "  昵称 Nickname: %s\n", nickname)
		fmt.Fprintf(w, "  HSK等级: %d\n", user.HSKLevel)
		fmt.Fprintf(w, "  对话数 Conversations: %d\n", user.TotalConversations)
		fmt.Fprintf(w, "  学习生词数 Words: %d\n", user.TotalWordsLearned)
		fmt.Fprintf(w, "  注册时间: %s\n", user.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  最后登录: %s\n", lastLogin)
	}
}

func renderCounts(w io.Writer, title string, counts []stats.Count) {
	fmt.Fprintln(w, labelStyle.Render(title))
	for i, c := range counts {
		fmt.Fprintf(w, "  %d. %s: %d次 (%.1f%%) %s\n", i+1, c.Name, c.Count, c.Percent, bar(c.Percent))
	}
	fmt.Fprintln(w)
}

func renderRoleScenes(w io.Writer, rs *stats.RoleSceneStats) {
	section(w, "🎭 角色 & 场景统计 Role & Scene Analysis")
	if rs.Total == 0 {
		fmt.Fprintln(w, "暂无对话数据")
		return
	}
	fmt.Fprintf(w, "📊 总对话次数: %d 次\n\n", rs.Total)
	renderCounts(w, "🏆 角色人气排名 (Most Popular Roles):", rs.Roles)
	renderCounts(w, "🏆 场景人气排名 (Most Popular Scenes):", rs.Scenes)

	fmt.Fprintln(w, labelStyle.Render("📈 用户HSK等级分布 (HSK Level Distribution):"))
	catalog := persona.Default()
	for _, h := range rs.HSK {
		fmt.Fprintf(w, "  %s: %d次 (%.1f%%) %s\n", catalog.HSKLabel(h.Level), h.Count, h.Percent, bar(h.Percent))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, labelStyle.Render("🔗 热门角色+场景组合 (Popular Combinations):"))
	for i, p := range rs.Pairs {
		fmt.Fprintf(w, "  %d. %s: %d次\n", i+1, p.Name, p.Count)
	}
}

func renderVocab(w io.Writer, v *stats.VocabStats) {
	section(w, "📚 生词本 Vocabulary")
	if v.Total == 0 {
		fmt.Fprintln(w, "暂无生词记录")
		return
	}
	fmt.Fprintf(w, "总生词数: %d 个\n已掌握: %d 个\n待学习: %d 个\n\n", v.Total, v.Mastered, v.Pending)
	for _, row := range v.Words {
		status := "📖待学习"
		if row.Mastered {
			status = "✅已掌握"
		}
		fmt.Fprintf(w, "%s %s - %s\n", status, row.Word, row.Meaning)
		fmt.Fprintf(w, "       用户: %s | 添加时间: %s\n", row.User, row.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func renderEvents(w io.Writer, e *stats.EventStats) {
	section(w, "📊 埋点事件 Events")
	if e.Total == 0 {
		fmt.Fprintln(w, "暂无事件记录")
		return
	}
	fmt.Fprintf(w, "总事件数: %d 条\n\n事件类型统计:\n", e.Total)
	for _, c := range e.Counts {
		fmt.Fprintf(w, "  - %s: %d 次\n", c.Name, c.Count)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, labelStyle.Render("最近事件详情:"))
	for _, ev := range e.Recent {
		fmt.Fprintf(w, "[%s] %s\n", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.EventName)
		fmt.Fprintf(w, "  用户: %s\n", ev.User)
		if ev.Data != stats.Placeholder {
			fmt.Fprintf(w, "  数据: %s\n", ev.Data)
		}
	}
}
