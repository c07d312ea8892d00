package iam

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -build_flags=--mod=mod -package iam -destination ./mock_client.go -source=./client.go

// ErrTruncatedWithoutMarker is returned when the service claims more pages
// exist but gives no marker to fetch them with.
var ErrTruncatedWithoutMarker = errors.New("iam: truncated page without a marker")

// Member is one user record of a group
type Member struct {
	UserName   string
	UserID     string
	Path       string
	Arn        string
	CreateDate time.Time
}

// Page is a single response of a paginated group listing
type Page struct {
	Members     []Member
	IsTruncated bool
	Marker      string
}

// Client lists the members of a group, one page at a time. An empty marker
// requests the first page. Implementations must be safe for concurrent use.
type Client interface {
	GetGroupPage(ctx context.Context, groupName, marker string) (*Page, error)
}
