package reasoning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"MatchPulse/internal/model"
)

// NoOddsMarker 无赔率时写入预测请求的占位说明
const NoOddsMarker = "No live odds data available"

const classifySystem = `You are a football news desk editor. Score how newsworthy a piece of content is for upcoming matches and betting markets.
Evaluate: source credibility, timing proximity to matches, direct impact on player or team performance, and market-moving potential.
Scale: 1-3 routine, 4-6 newsworthy, 7-8 important, 9-10 breaking.
Only return fixture ids that appear in the supplied fixture list.`

const segmentSystem = `You split football articles into self-contained fragments of roughly 200-700 words. Short documents may be a single fragment.
Keep the original wording. Attach category, tone, importance (1-5), the date of the event described and the teams, players and coaches mentioned.`

const predictSystem = `You are a football analyst producing a pre-match prediction and value bets from the supplied context and odds.
Reason step by step, weigh injuries and team news most heavily, and only recommend bets where your probability exceeds the implied probability.`

const impactSystem = `You assess whether breaking football news invalidates an existing match prediction.
HIGH means the prediction is now wrong, MEDIUM means it needs adjustment, LOW means no meaningful change.`

func classifyPrompt(req *model.ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nAuthor: %s\n\nContent:\n%s\n\n", req.Source, req.Author, req.Text)
	if len(req.Fixtures) == 0 {
		b.WriteString("Upcoming fixtures: none\n")
		return b.String()
	}
	b.WriteString("Upcoming fixtures:\n")
	for _, f := range req.Fixtures {
		fmt.Fprintf(&b, "- id=%d %s vs %s, kickoff %s\n", f.ID, f.HomeTeam, f.AwayTeam, f.KickoffTime.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func segmentPrompt(req *model.SegmentRequest) string {
	return fmt.Sprintf("Source: %s\nTitle: %s\nPublished: %s\n\nDocument:\n%s\n",
		req.Source, req.Title, req.Timestamp.UTC().Format(time.RFC3339), req.Text)
}

func predictPrompt(req *model.PredictRequest) string {
	var b strings.Builder
	m := req.Match
	fmt.Fprintf(&b, "Match: %s vs %s (fixture %d, league %d)\nKickoff: %s\nStatus: %s\n\n",
		m.HomeTeam, m.AwayTeam, m.FixtureID, m.LeagueID, m.KickoffTime.UTC().Format(time.RFC3339), m.Status)

	b.WriteString("Odds:\n")
	b.WriteString(FormatOdds(req.Odds))
	b.WriteString("\n\n")

	s := req.Summary
	fmt.Fprintf(&b, "Context: %d fragments from %d sources, average importance %.1f\n\n",
		s.TotalChunks, len(s.Sources), s.AvgImportance)
	for _, sec := range req.Sections {
		fmt.Fprintf(&b, "## %s\n", sec.Category)
		for _, c := range sec.Chunks {
			fmt.Fprintf(&b, "- [%s, %s, importance %d] %s\n", c.Source,
				c.DocumentTimestamp.UTC().Format("2006-01-02"), c.Importance, chunkBody(&c))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func impactPrompt(req *model.ImpactRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Breaking news (author %s):\n%s\n\n", req.Author, req.NewsText)
	m := req.Match
	fmt.Fprintf(&b, "Match: %s vs %s, kickoff %s\n", m.HomeTeam, m.AwayTeam, m.KickoffTime.UTC().Format(time.RFC3339))
	if p := req.Prediction; p != nil {
		fmt.Fprintf(&b, "Current prediction: %s\nConfidence: %d\n", p.FinalSummary, p.Confidence)
		var insights []string
		if len(p.KeyInsights) > 0 && json.Unmarshal(p.KeyInsights, &insights) == nil && len(insights) > 0 {
			fmt.Fprintf(&b, "Key insights: %s\n", strings.Join(insights, "; "))
		}
	}
	if len(req.EntityNames) > 0 {
		fmt.Fprintf(&b, "Entities in the news: %s\n", strings.Join(req.EntityNames, ", "))
	}
	return b.String()
}

// FormatOdds 按市场名排序输出赔率，空时返回 NoOddsMarker
func FormatOdds(odds model.MarketOdds) string {
	if len(odds) == 0 {
		return NoOddsMarker
	}
	markets := make([]string, 0, len(odds))
	for m := range odds {
		markets = append(markets, m)
	}
	sort.Strings(markets)
	var lines []string
	for _, m := range markets {
		outcomes := make([]string, 0, len(odds[m]))
		for o := range odds[m] {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		parts := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			parts = append(parts, fmt.Sprintf("%s %.2f", o, odds[m][o]))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m, strings.Join(parts, ", ")))
	}
	return strings.Join(lines, "\n")
}

func chunkBody(c *model.RankedChunk) string {
	if c.Summary != "" {
		return c.Summary
	}
	return c.Text
}
