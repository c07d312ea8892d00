package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/glauth/iamldap/pkg/config"
	"github.com/glauth/iamldap/pkg/iam"
	"github.com/glauth/iamldap/pkg/stats"
)

var (
	// ErrUnavailable means the directory could not be resolved for this request
	ErrUnavailable = errors.New("directory unavailable")
	// ErrInsufficientAccess means the caller may not search the directory
	ErrInsufficientAccess = errors.New("insufficient access rights")
)

// memberSet accumulates the entries of a single request, keyed by username
type memberSet struct {
	users  map[string]DirectoryEntry
	marker string
	pages  int
}

func newMemberSet() *memberSet {
	return &memberSet{users: make(map[string]DirectoryEntry)}
}

// add sorts a page by creation date and overwrites entries sharing a username
func (s *memberSet) add(members []iam.Member, dir *config.Directory) {
	page := append([]iam.Member(nil), members...)
	sort.SliceStable(page, func(i, j int) bool {
		return page[i].CreateDate.Before(page[j].CreateDate)
	})

	for _, m := range page {
		if e, ok := newDirectoryEntry(m, dir); ok {
			s.users[e.CN] = e
		}
	}
}

// entries returns the accumulated entries ordered by username
func (s *memberSet) entries() []DirectoryEntry {
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DirectoryEntry, 0, len(names))
	for _, name := range names {
		out = append(out, s.users[name])
	}
	return out
}

// fetchMembers walks every page of the configured group. Any failure discards
// what was gathered so far.
func (h *iamHandler) fetchMembers(ctx context.Context, dir *config.Directory) (*memberSet, error) {
	ctx, span := h.tracer.Start(ctx, "handler.iamHandler.fetchMembers")
	defer span.End()

	set := newMemberSet()
	if dir.GroupName == "" {
		return set, nil
	}

	maxPages := dir.MaxPages
	if maxPages <= 0 {
		maxPages = config.DefaultMaxPages
	}

	for {
		if set.pages >= maxPages {
			h.log.Error().Str("group", dir.GroupName).Int("maxpages", maxPages).Msg("group listing exceeds page limit")
			return nil, fmt.Errorf("%w: more than %d pages for group %s", ErrUnavailable, maxPages, dir.GroupName)
		}

		page, err := h.getGroupPage(ctx, dir.GroupName, set.marker)
		if err != nil {
			h.log.Error().Err(err).Str("group", dir.GroupName).Int("page", set.pages+1).Msg("unable to list group members")
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		set.pages++
		set.add(page.Members, dir)

		if !page.IsTruncated {
			break
		}
		set.marker = page.Marker
	}

	span.SetAttributes(
		attribute.Int("iam.pages", set.pages),
		attribute.Int("iam.users", len(set.users)),
	)

	return set, nil
}

func (h *iamHandler) getGroupPage(ctx context.Context, group, marker string) (page *iam.Page, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			stats.Backend.Add("iam_errors", 1)
		}
		h.monitor.SetBackendResponseTimeMetric(
			map[string]string{"backend": "iam", "operation": "getgroup", "status": status},
			time.Since(start).Seconds(),
		)
	}()

	stats.Backend.Add("iam_calls", 1)

	page, err = h.client.GetGroupPage(ctx, group, marker)
	if err != nil {
		return nil, err
	}
	stats.Backend.Add("iam_pages", 1)

	return page, nil
}
