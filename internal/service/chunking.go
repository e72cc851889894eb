package service

import (
	"strings"

	"MatchPulse/internal/model"
)

// WordCount 以空白分隔的词数
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// NormalizeSegments 保证切块大小约束：
// 少于 shortDocWords 词的文档合并为一个切块（元数据取最重要的切块，实体名取并集）；
// 超过 maxWords 词的切块按句子边界拆分，拆分后的每块共享原元数据。
func NormalizeSegments(docText string, segments []model.Segment, shortDocWords, maxWords int) []model.Segment {
	if len(segments) == 0 {
		return nil
	}
	if WordCount(docText) < shortDocWords {
		return []model.Segment{mergeSegments(docText, segments)}
	}
	out := make([]model.Segment, 0, len(segments))
	for _, seg := range segments {
		if WordCount(seg.Text) <= maxWords {
			out = append(out, seg)
			continue
		}
		for _, piece := range SplitSentences(seg.Text, maxWords) {
			s := seg
			s.Text = piece
			out = append(out, s)
		}
	}
	return out
}

func mergeSegments(docText string, segments []model.Segment) model.Segment {
	best := 0
	for i := range segments {
		if segments[i].Importance > segments[best].Importance {
			best = i
		}
	}
	merged := segments[best]
	merged.Text = strings.TrimSpace(docText)
	if merged.Text == "" {
		texts := make([]string, 0, len(segments))
		for _, s := range segments {
			texts = append(texts, s.Text)
		}
		merged.Text = strings.Join(texts, "\n\n")
	}
	merged.LinkedTeamNames = nil
	merged.LinkedPlayerNames = nil
	merged.LinkedCoachNames = nil
	for _, s := range segments {
		merged.LinkedTeamNames = unionNames(merged.LinkedTeamNames, s.LinkedTeamNames)
		merged.LinkedPlayerNames = unionNames(merged.LinkedPlayerNames, s.LinkedPlayerNames)
		merged.LinkedCoachNames = unionNames(merged.LinkedCoachNames, s.LinkedCoachNames)
	}
	return merged
}

func unionNames(dst, src []string) []string {
	for _, n := range src {
		dup := false
		for _, d := range dst {
			if strings.EqualFold(d, n) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, n)
		}
	}
	return dst
}

// SplitSentences 按句子边界把文本打包成不超过 maxWords 词的片段；单句超长时按词硬切
func SplitSentences(text string, maxWords int) []string {
	if maxWords <= 0 {
		return []string{text}
	}
	var sentences [][]string
	var cur []string
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		if endsSentence(w) {
			sentences = append(sentences, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		sentences = append(sentences, cur)
	}

	var pieces []string
	var piece []string
	flush := func() {
		if len(piece) > 0 {
			pieces = append(pieces, strings.Join(piece, " "))
			piece = nil
		}
	}
	for _, s := range sentences {
		if len(s) > maxWords {
			flush()
			for start := 0; start < len(s); start += maxWords {
				end := start + maxWords
				if end > len(s) {
					end = len(s)
				}
				pieces = append(pieces, strings.Join(s[start:end], " "))
			}
			continue
		}
		if len(piece)+len(s) > maxWords {
			flush()
		}
		piece = append(piece, s...)
	}
	flush()
	return pieces
}

func endsSentence(word string) bool {
	w := strings.TrimRight(word, `"'”’)]`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
}
