package model

// StoryPath is one full traversal of the branching narrative, from the start
// passage to a terminal passage, materialized as flat text by the build
// pipeline. Identity is the content digest, never the file name: two renders
// that read identically are the same path, and any passage edit anywhere in
// the traversal yields a different ID.
type StoryPath struct {
	ID      string
	Name    string
	Content string
}

// Category classifies a path against the validation cache. It is derived at
// run time, never stored.
type Category string

const (
	CategoryNew       Category = "new"
	CategoryModified  Category = "modified"
	CategoryUnchanged Category = "unchanged"
)
