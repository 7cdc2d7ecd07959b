package api

import (
	"github.com/wgomg/tably/internal/semantic"
	"github.com/wgomg/tably/internal/utils"
)

// TabInput uses pointers so a missing field can be told apart from an empty
// one.
type TabInput struct {
	Title *string `json:"title" yaml:"title"`
	URL   *string `json:"url" yaml:"url"`
	Text  *string `json:"text" yaml:"text"`
	HTML  *string `json:"html" yaml:"html"`
}

type AnalyzeRequest struct {
	Tabs []TabInput `json:"tabs" yaml:"tabs"`
}

type StatusResponse struct {
	Status      string             `json:"status"`
	Version     string             `json:"version"`
	Embedder    semantic.Status    `json:"embedder"`
	MemoryCache *utils.CacheStats  `json:"memory_cache,omitempty"`
	DiskCache   *DiskCacheResponse `json:"disk_cache,omitempty"`
}

type DiskCacheResponse struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}
