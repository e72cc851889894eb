package linker

import (
	"context"
	"fmt"
	"strings"

	"MatchPulse/internal/model"
	"MatchPulse/internal/retry"
)

// EntityLookup 按名称做不区分大小写的子串匹配，结果按 id 升序
type EntityLookup interface {
	FindCandidates(ctx context.Context, kind model.EntityKind, name string) ([]model.EntityCandidate, error)
}

// Linker 把自由文本中的实体名解析为注册表 ID
type Linker struct {
	lookup EntityLookup
}

func NewLinker(lookup EntityLookup) *Linker {
	return &Linker{lookup: lookup}
}

// Link 解析单个名称；无匹配返回 nil, nil。
// 球队：精确匹配优先于子串匹配。球员/教练：去掉所有格后，优先选当前或历史所属球队在 teamContext 中的候选。
func (l *Linker) Link(ctx context.Context, name string, kind model.EntityKind, teamContext []uint64) (*uint64, error) {
	if !kind.Valid() {
		return nil, retry.Permanent(fmt.Errorf("未知实体类型: %q", kind))
	}
	name = strings.TrimSpace(name)
	if kind != model.EntityTeam {
		name = StripPossessive(name)
	}
	if name == "" {
		return nil, nil
	}

	candidates, err := l.lookup.FindCandidates(ctx, kind, name)
	if err != nil {
		return nil, fmt.Errorf("查询%s候选失败: %w", kind, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if kind == model.EntityTeam {
		for i := range candidates {
			if strings.EqualFold(candidates[i].Name, name) {
				return &candidates[i].ID, nil
			}
		}
		return &candidates[0].ID, nil
	}

	if len(teamContext) > 0 {
		inContext := make(map[uint64]struct{}, len(teamContext))
		for _, id := range teamContext {
			inContext[id] = struct{}{}
		}
		for i := range candidates {
			if belongsTo(&candidates[i], inContext) {
				return &candidates[i].ID, nil
			}
		}
	}
	return &candidates[0].ID, nil
}

// LinkAll 批量解析，忽略无匹配项，结果去重并保持首次出现顺序
func (l *Linker) LinkAll(ctx context.Context, names []string, kind model.EntityKind, teamContext []uint64) ([]uint64, error) {
	var ids []uint64
	seen := make(map[uint64]struct{}, len(names))
	for _, n := range names {
		id, err := l.Link(ctx, n, kind, teamContext)
		if err != nil {
			return nil, err
		}
		if id == nil {
			continue
		}
		if _, ok := seen[*id]; ok {
			continue
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	return ids, nil
}

func belongsTo(c *model.EntityCandidate, teams map[uint64]struct{}) bool {
	if c.CurrentTeamID != nil {
		if _, ok := teams[*c.CurrentTeamID]; ok {
			return true
		}
	}
	for _, t := range c.SeasonTeamIDs {
		if _, ok := teams[t]; ok {
			return true
		}
	}
	return false
}

// StripPossessive 去掉末尾的 's 或 '（含弯引号）
func StripPossessive(name string) string {
	for _, suffix := range []string{"'s", "’s", "'S", "’S", "'", "’"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(name, suffix))
		}
	}
	return name
}
