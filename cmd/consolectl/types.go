package main

import "encoding/json"

// Wire types mirroring the server's versioning API responses.

type versionSummary struct {
	ID             string `json:"id"`
	EventNo        string `json:"eventNo"`
	VersionCode    string `json:"versionCode"`
	VersionDesc    string `json:"versionDesc,omitempty"`
	Status         string `json:"status"`
	IsCurrent      bool   `json:"isCurrent"`
	CreatedBy      string `json:"createdBy"`
	CreatedAt      string `json:"createdAt"`
	LastModifiedBy string `json:"lastModifiedBy,omitempty"`
	PublishedAt    string `json:"publishedAt,omitempty"`
}

type timelineResponse struct {
	EventNo       string           `json:"eventNo"`
	Versions      []versionSummary `json:"versions"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
	TotalSize     int              `json:"totalSize"`
}

type draftResponse struct {
	ID                string                     `json:"id"`
	EventNo           string                     `json:"eventNo"`
	VersionCode       string                     `json:"versionCode"`
	Status            string                     `json:"status"`
	Payload           map[string]json.RawMessage `json:"payload"`
	HasUnsavedChanges bool                       `json:"hasUnsavedChanges"`
	LastModifiedBy    string                     `json:"lastModifiedBy,omitempty"`
	LastModifiedAt    string                     `json:"lastModifiedAt,omitempty"`
}

type sectionDiff struct {
	Section string `json:"section"`
	Change  string `json:"change"`
	Ops     int    `json:"ops,omitempty"`
}

type diffResponse struct {
	VersionA string        `json:"versionA"`
	VersionB string        `json:"versionB"`
	Sections []sectionDiff `json:"sections"`
}

type auditEvent struct {
	ID        string `json:"ID"`
	EventType string `json:"EventType"`
	Actor     string `json:"Actor"`
	EventNo   string `json:"EventNo"`
	VersionID string `json:"VersionID"`
	Action    string `json:"Action"`
	Outcome   string `json:"Outcome"`
	Reason    string `json:"Reason"`
	CreatedAt string `json:"CreatedAt"`
}

type auditListing struct {
	Events        []auditEvent `json:"events"`
	NextPageToken string       `json:"nextPageToken,omitempty"`
	TotalSize     int          `json:"totalSize"`
}
