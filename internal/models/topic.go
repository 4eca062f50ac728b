package models

import (
	"time"
)

// Engagement holds the public interaction counters of a post
type Engagement struct {
	Likes    int `json:"likes" yaml:"likes"`
	Comments int `json:"comments" yaml:"comments"`
	Collects int `json:"collects" yaml:"collects"`
}

// Total returns the raw sum of all counters
func (e Engagement) Total() int {
	return e.Likes + e.Comments + e.Collects
}

// Topic is a collected post considered for engagement.
// Topics are never modified after collection.
type Topic struct {
	ExternalID     string      `json:"external_id" yaml:"-"` // Hash of source + URL
	Title          string      `json:"title" yaml:"title"`
	Body           string      `json:"body" yaml:"body"`
	URL            string      `json:"url" yaml:"url"`
	Author         string      `json:"author,omitempty" yaml:"author"`
	Tags           StringSlice `json:"tags,omitempty" yaml:"tags"`
	Engagement     Engagement  `json:"engagement" yaml:"engagement"`
	CommentsSample StringSlice `json:"comments_sample,omitempty" yaml:"comments"`
	SourceType     string      `json:"source_type" yaml:"-"` // page, rss, file
	SourceName     string      `json:"source_name" yaml:"-"`
	CollectedAt    time.Time   `json:"collected_at" yaml:"-"`
}
