package interfaces

// EntityExtractor 从正文中抽取候选实体名（通用 NLP，不依赖推理服务）
type EntityExtractor interface {
	ExtractNames(text string) []string
}
