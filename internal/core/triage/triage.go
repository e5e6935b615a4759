// Package triage decides, per story path, whether a run must re-check it.
// Both functions are pure: categorization against a loaded cache state, then
// a mode filter over the category.
package triage

import (
	"github.com/fableworks/continuity/internal/core/cache"
	"github.com/fableworks/continuity/internal/core/model"
)

// Categorize classifies a path id against the cache. Because ids are derived
// from content, an edited path simply shows up under a fresh id: no diffing,
// no history walk. The old entry stays validated forever, which is harmless.
//
// An entry missing a usable validated flag counts as new — malformed state is
// never trusted as "already reviewed".
func Categorize(id string, st *cache.State) model.Category {
	entry, present := st.Entry(id)
	if !present {
		return model.CategoryNew
	}
	validated, ok := entry.Validated()
	if !ok {
		return model.CategoryNew
	}
	if validated {
		return model.CategoryUnchanged
	}
	return model.CategoryModified
}

// ShouldCheck applies the requested scope:
//
//	            new    modified  unchanged
//	new-only    yes    no        no
//	modified    yes    yes       no
//	all         yes    yes       yes
//
// Mode validity is enforced at parse time (model.ParseMode); an unknown mode
// reaching this point selects nothing.
func ShouldCheck(cat model.Category, mode model.Mode) bool {
	switch mode {
	case model.ModeNewOnly:
		return cat == model.CategoryNew
	case model.ModeModified:
		return cat == model.CategoryNew || cat == model.CategoryModified
	case model.ModeAll:
		return cat == model.CategoryNew || cat == model.CategoryModified || cat == model.CategoryUnchanged
	}
	return false
}
