package nlp

import (
	"strings"
	"unicode"

	"MatchPulse/internal/interfaces"

	"github.com/jdkato/prose/v2"
	"github.com/sirupsen/logrus"
)

// 句首常见大写词，不作为实体
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "breaking": {}, "update": {}, "news": {}, "report": {}, "reports": {},
	"exclusive": {}, "official": {}, "confirmed": {}, "today": {}, "tonight": {}, "yesterday": {},
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
	"he": {}, "she": {}, "they": {}, "it": {}, "we": {}, "i": {}, "star": {}, "quick": {},
}

// ProseExtractor 基于 prose 的命名实体识别，人名/机构/地名都作为候选名称交给实体链接器
type ProseExtractor struct {
	logger *logrus.Logger
}

func NewProseExtractor(logger *logrus.Logger) *ProseExtractor {
	return &ProseExtractor{logger: logger}
}

var _ interfaces.EntityExtractor = (*ProseExtractor)(nil)

// ExtractNames NER 结果与连续专有名词短语的并集，大小写不敏感去重，保持首次出现顺序
func (e *ProseExtractor) ExtractNames(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var names []string
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		e.logger.WithError(err).Warn("prose 解析失败，仅使用大写短语规则")
	} else {
		for _, ent := range doc.Entities() {
			switch ent.Label {
			case "PERSON", "GPE", "ORG":
				names = append(names, ent.Text)
			}
		}
		names = append(names, properNounRuns(doc.Tokens())...)
	}
	names = append(names, CapitalizedPhrases(text)...)
	return Dedup(names)
}

// properNounRuns 连续 NNP/NNPS 词组成的短语
func properNounRuns(tokens []prose.Token) []string {
	var out []string
	var run []string
	flush := func() {
		if len(run) > 0 {
			out = append(out, strings.Join(run, " "))
			run = nil
		}
	}
	for _, tok := range tokens {
		if tok.Tag == "NNP" || tok.Tag == "NNPS" {
			run = append(run, tok.Text)
			continue
		}
		flush()
	}
	flush()
	return out
}

// CapitalizedPhrases 连续首字母大写词组成的短语；停用词会打断短语，所有格在链接时处理
func CapitalizedPhrases(text string) []string {
	var out []string
	var run []string
	flush := func() {
		if len(run) > 0 {
			out = append(out, strings.Join(run, " "))
			run = nil
		}
	}
	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’' && r != '-' && r != '.'
		})
		word = strings.TrimRight(word, ".")
		if !isCapitalized(word) {
			flush()
			continue
		}
		if _, stop := stopWords[strings.ToLower(word)]; stop {
			flush()
			continue
		}
		run = append(run, word)
		if endsClause(raw) {
			flush()
		}
	}
	flush()
	return out
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func endsClause(raw string) bool {
	return strings.HasSuffix(raw, ",") || strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, ":") ||
		strings.HasSuffix(raw, ";") || strings.HasSuffix(raw, "!") || strings.HasSuffix(raw, "?")
}

// Dedup 大小写不敏感去重，保持顺序
func Dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
