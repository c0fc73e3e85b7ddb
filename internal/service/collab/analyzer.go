package collab

import (
	collabSvc "collabsync/internal/domain/services/collab"
	"collabsync/internal/utils"
)

type contentAnalyzer struct{}

// NewContentAnalyzer creates the analyzer used to fill in missing counts
func NewContentAnalyzer() collabSvc.ContentAnalyzer {
	return &contentAnalyzer{}
}

// Analyze returns word and character counts of the text inside content
func (a *contentAnalyzer) Analyze(content []byte) (int, int) {
	return utils.CountContent(content)
}
