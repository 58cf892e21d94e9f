package remote

import "gagyebu/internal/core"

// Default reference lists for a fresh household ledger.
var (
	DefaultCategories = []string{"식비", "교통", "주거", "생활용품", "문화", "의료"}
	DefaultMethods    = []string{"카드", "현금", "계좌이체"}
)

// DefaultLabels returns the seed labels of a reference kind.
func DefaultLabels(kind core.ReferenceKind) []string {
	if kind == core.KindMethod {
		return DefaultMethods
	}
	return DefaultCategories
}
